package mfa

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment is the per-user MFA configuration. The shared secret is held
// encrypted; plaintext exists only transiently in memory.
type Enrollment struct {
	gorm.Model
	UserID               uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	Method               string `json:"method" gorm:"size:16;not null;default:totp"`
	Contact              string `json:"-"`
	SecretCiphertext     []byte `json:"-" gorm:"not null"`
	Enabled              bool   `json:"enabled" gorm:"not null;default:false"`
	ConfirmedAt          *time.Time
	DisabledAt           *time.Time
	BackupCodesRemaining int `json:"backup_codes_remaining" gorm:"not null;default:0"`
}

// BackupCode holds only a bcrypt hash. Rows are hard-deleted on use, so a
// matched code can never verify twice.
type BackupCode struct {
	ID        uint   `gorm:"primarykey"`
	UserID    uint   `gorm:"index;not null"`
	CodeHash  string `gorm:"not null"`
	CreatedAt time.Time
}

// Attempt is an immutable record of a failed verification, feeding the
// sliding-window rate limit. Successes are not recorded here.
type Attempt struct {
	ID         uint `gorm:"primarykey"`
	UserID     uint `gorm:"index;not null"`
	Success    bool `gorm:"not null"`
	SourceAddr string
	CreatedAt  time.Time `gorm:"index"`
}

func (Attempt) TableName() string {
	return "mfa_attempts"
}
