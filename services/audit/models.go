package audit

import (
	"time"
)

type Action string

const (
	ActionMFAEnabled             Action = "mfa_enabled"
	ActionMFAVerified            Action = "mfa_verified"
	ActionMFADisabled            Action = "mfa_disabled"
	ActionMFAFailed              Action = "mfa_verification_failed"
	ActionMFARateLimited         Action = "mfa_rate_limited"
	ActionBackupCodesRegenerated Action = "backup_codes_regenerated"
	ActionSMSSent                Action = "sms_sent"
)

// Event rows are append-only; nothing in this package updates or deletes them.
type Event struct {
	ID         string `gorm:"primarykey;size:36"`
	UserID     uint   `gorm:"index;not null"`
	Action     Action `gorm:"size:64;not null"`
	Detail     string
	SourceAddr string
	UserAgent  string
	Device     string
	CreatedAt  time.Time `gorm:"index"`
}

func (Event) TableName() string {
	return "audit_events"
}
