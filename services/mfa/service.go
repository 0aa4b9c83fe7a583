package mfa

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/services/audit"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotConfigured  = errors.New("MFA is not configured for user")
	ErrNotEnabled     = errors.New("MFA is not enabled for user")
	ErrAlreadyEnabled = errors.New("MFA is already enabled for user")
)

// Notifier delivers security notices and one-time codes. Dispatch is
// fire-and-forget; the engine never waits on delivery.
type Notifier interface {
	SendSecurityNotice(to, subject, body string) error
	SendLoginCode(to, code string) error
}

type SetupResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

type StatusInfo struct {
	Enabled        bool       `json:"enabled"`
	Method         string     `json:"method"`
	SetupAt        time.Time  `json:"setup_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	HasBackupCodes bool       `json:"has_backup_codes"`
}

type Service struct {
	config   *config.Config
	db       *gorm.DB
	aead     cipher.AEAD
	audit    *audit.Service
	notifier Notifier
	logger   *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, auditSvc *audit.Service, logger *logging.Service) (*Service, error) {
	aead, err := newAEAD(cfg.MFA.EncryptionKey)
	if err != nil {
		if logger != nil {
			logger.Error("MFA service initialization failed", zap.Error(err))
		}
		return nil, err
	}

	if logger != nil {
		logger.Info("initializing MFA service",
			zap.String("issuer", cfg.MFA.Issuer),
			zap.Int("max_attempts", cfg.MFA.MaxAttempts),
			zap.Duration("attempt_window", cfg.MFA.AttemptWindow))
	}

	return &Service{
		config: cfg,
		db:     db,
		aead:   aead,
		audit:  auditSvc,
		logger: logger,
	}, nil
}

func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) issuer() string {
	if s.config.MFA.Issuer != "" {
		return s.config.MFA.Issuer
	}
	return s.config.App.Name
}

// Setup generates a fresh secret and backup codes for a user. Plaintext
// codes and secret are returned exactly once and never persisted or logged.
// The enrollment stays disabled until Confirm sees a valid code.
func (s *Service) Setup(userID uint, contact string) (*SetupResult, error) {
	if s.logger != nil {
		s.logger.Info("starting MFA enrollment", zap.Uint("user_id", userID))
	}

	var existing Enrollment
	err := s.db.Where("user_id = ?", userID).First(&existing).Error
	switch {
	case err == nil:
		if existing.Enabled {
			if s.logger != nil {
				s.logger.Warn("MFA enrollment rejected - already enabled",
					zap.Uint("user_id", userID))
			}
			return nil, ErrAlreadyEnabled
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fresh enrollment
	default:
		return nil, fmt.Errorf("failed to check existing enrollment: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer(),
		AccountName: contact,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to generate TOTP key",
				zap.Error(err),
				zap.Uint("user_id", userID))
		}
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	ciphertext, err := sealSecret(s.aead, key.Secret())
	if err != nil {
		return nil, err
	}

	codes, err := generateBackupCodes(s.config.MFA.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := hashBackupCode(code, s.config.MFA.BcryptCost)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if existing.ID != 0 {
			// unconfirmed re-enrollment replaces the previous secret and codes
			if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
				return fmt.Errorf("failed to clear previous backup codes: %w", err)
			}
			existing.Contact = contact
			existing.SecretCiphertext = ciphertext
			existing.Enabled = false
			existing.ConfirmedAt = nil
			existing.DisabledAt = nil
			existing.BackupCodesRemaining = len(hashes)
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("failed to update enrollment: %w", err)
			}
		} else {
			enrollment := &Enrollment{
				UserID:               userID,
				Method:               "totp",
				Contact:              contact,
				SecretCiphertext:     ciphertext,
				Enabled:              false,
				BackupCodesRemaining: len(hashes),
			}
			if err := tx.Create(enrollment).Error; err != nil {
				return fmt.Errorf("failed to store enrollment: %w", err)
			}
		}

		for _, hash := range hashes {
			if err := tx.Create(&BackupCode{UserID: userID, CodeHash: hash}).Error; err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}
		return nil
	})
	if txErr != nil {
		if s.logger != nil {
			s.logger.Error("MFA enrollment persistence failed",
				zap.Error(txErr),
				zap.Uint("user_id", userID))
		}
		return nil, txErr
	}

	if s.logger != nil {
		s.logger.Info("MFA enrollment created, pending confirmation",
			zap.Uint("user_id", userID))
	}

	return &SetupResult{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

// Confirm validates the user's first code after Setup and flips the
// enrollment to enabled.
func (s *Service) Confirm(userID uint, code string, meta audit.Meta) (*Verdict, error) {
	enrollment, err := s.getEnrollment(userID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return notConfiguredVerdict(), nil
		}
		return nil, err
	}

	valid, err := s.validateTOTP(enrollment, code)
	if err != nil {
		return nil, err
	}

	if !valid {
		if s.logger != nil {
			s.logger.Warn("MFA confirmation failed - invalid code",
				zap.Uint("user_id", userID))
		}
		if err := s.audit.Record(userID, audit.ActionMFAFailed, "enrollment confirmation failed", meta); err != nil {
			return nil, err
		}
		return &Verdict{Result: ResultInvalidCode, Message: "invalid code"}, nil
	}

	if !enrollment.Enabled {
		now := time.Now()
		enrollment.Enabled = true
		enrollment.ConfirmedAt = &now
		enrollment.DisabledAt = nil
		if err := s.db.Save(enrollment).Error; err != nil {
			return nil, fmt.Errorf("failed to enable MFA: %w", err)
		}

		if err := s.audit.Record(userID, audit.ActionMFAEnabled, "TOTP enrollment confirmed", meta); err != nil {
			return nil, err
		}

		s.notifySecurity(enrollment.Contact, "Two-factor authentication enabled",
			"Two-factor authentication was enabled on your account. If this wasn't you, contact your administrator immediately.")

		if s.logger != nil {
			s.logger.Info("MFA enabled", zap.Uint("user_id", userID))
		}
	}

	return successVerdict(), nil
}

// Verify checks a login-time code: rate limit first, then TOTP, then the
// backup-code fallback. The failure message never reveals which pass failed.
func (s *Service) Verify(userID uint, code string, meta audit.Meta) (*Verdict, error) {
	enrollment, err := s.getEnrollment(userID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return notConfiguredVerdict(), nil
		}
		return nil, err
	}

	if !enrollment.Enabled {
		return notEnabledVerdict(), nil
	}

	recent, err := s.recentFailures(userID)
	if err != nil {
		return nil, err
	}

	if recent >= int64(s.config.MFA.MaxAttempts) {
		if s.logger != nil {
			s.logger.Warn("MFA verification rate limited",
				zap.Uint("user_id", userID),
				zap.Int64("recent_failures", recent))
		}
		if err := s.audit.Record(userID, audit.ActionMFARateLimited,
			fmt.Sprintf("%d failed attempts within window", recent), meta); err != nil {
			return nil, err
		}
		return rateLimitedVerdict(), nil
	}

	valid, err := s.validateTOTP(enrollment, code)
	if err != nil {
		return nil, err
	}

	if valid {
		if err := s.audit.Record(userID, audit.ActionMFAVerified, "TOTP code accepted", meta); err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.Info("MFA verification succeeded", zap.Uint("user_id", userID))
		}
		return successVerdict(), nil
	}

	matched, err := s.consumeBackupCode(userID, code)
	if err != nil {
		return nil, err
	}

	if matched {
		if err := s.audit.Record(userID, audit.ActionMFAVerified, "backup code accepted", meta); err != nil {
			return nil, err
		}
		if s.logger != nil {
			s.logger.Info("MFA verification succeeded via backup code",
				zap.Uint("user_id", userID))
		}
		return successVerdict(), nil
	}

	attempt := &Attempt{
		UserID:     userID,
		Success:    false,
		SourceAddr: meta.SourceAddr,
	}
	if err := s.db.Create(attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	if err := s.audit.Record(userID, audit.ActionMFAFailed, "verification failed", meta); err != nil {
		return nil, err
	}

	remaining := s.config.MFA.MaxAttempts - int(recent) - 1
	if remaining < 0 {
		remaining = 0
	}

	if s.logger != nil {
		s.logger.Warn("MFA verification failed",
			zap.Uint("user_id", userID),
			zap.Int("remaining_attempts", remaining))
	}

	return invalidCodeVerdict(remaining), nil
}

// RegenerateBackupCodes invalidates every outstanding code and issues a
// fresh batch, returned in plaintext exactly once.
func (s *Service) RegenerateBackupCodes(userID uint, meta audit.Meta) ([]string, error) {
	enrollment, err := s.getEnrollment(userID)
	if err != nil {
		return nil, err
	}
	if !enrollment.Enabled {
		return nil, ErrNotEnabled
	}

	codes, err := generateBackupCodes(s.config.MFA.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(codes))
	for _, code := range codes {
		hash, err := hashBackupCode(code, s.config.MFA.BcryptCost)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to invalidate backup codes: %w", err)
		}
		for _, hash := range hashes {
			if err := tx.Create(&BackupCode{UserID: userID, CodeHash: hash}).Error; err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}
		return tx.Model(&Enrollment{}).Where("user_id = ?", userID).
			UpdateColumn("backup_codes_remaining", len(hashes)).Error
	})
	if txErr != nil {
		return nil, txErr
	}

	if err := s.audit.Record(userID, audit.ActionBackupCodesRegenerated,
		fmt.Sprintf("%d new backup codes issued", len(codes)), meta); err != nil {
		return nil, err
	}

	s.notifySecurity(enrollment.Contact, "Backup codes regenerated",
		"Your two-factor backup codes were regenerated. Previous codes no longer work.")

	if s.logger != nil {
		s.logger.Info("backup codes regenerated", zap.Uint("user_id", userID))
	}

	return codes, nil
}

// Disable clears the enabled flag. An administrator acting on behalf of the
// user is recorded distinctly from self-service disable.
func (s *Service) Disable(userID uint, actingAdminID *uint, meta audit.Meta) error {
	enrollment, err := s.getEnrollment(userID)
	if err != nil {
		return err
	}

	now := time.Now()
	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		enrollment.Enabled = false
		enrollment.DisabledAt = &now
		enrollment.BackupCodesRemaining = 0
		if err := tx.Save(enrollment).Error; err != nil {
			return fmt.Errorf("failed to disable MFA: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to clear backup codes: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	detail := "disabled by account owner"
	if actingAdminID != nil {
		detail = fmt.Sprintf("disabled by administrator %d", *actingAdminID)
	}
	if err := s.audit.Record(userID, audit.ActionMFADisabled, detail, meta); err != nil {
		return err
	}

	s.notifySecurity(enrollment.Contact, "Two-factor authentication disabled",
		"Two-factor authentication was disabled on your account. If this wasn't you, contact your administrator immediately.")

	if s.logger != nil {
		s.logger.Info("MFA disabled",
			zap.Uint("user_id", userID),
			zap.Bool("by_admin", actingAdminID != nil))
	}

	return nil
}

// Status is a read-only projection; it never exposes the secret or hashes.
func (s *Service) Status(userID uint) (*StatusInfo, error) {
	enrollment, err := s.getEnrollment(userID)
	if err != nil {
		return nil, err
	}

	return &StatusInfo{
		Enabled:        enrollment.Enabled,
		Method:         enrollment.Method,
		SetupAt:        enrollment.CreatedAt,
		ConfirmedAt:    enrollment.ConfirmedAt,
		HasBackupCodes: enrollment.BackupCodesRemaining > 0,
	}, nil
}

// SendLoginCode computes the current time-based code and dispatches it to
// the user's contact address. Delivery is fire-and-forget.
func (s *Service) SendLoginCode(userID uint, meta audit.Meta) error {
	enrollment, err := s.getEnrollment(userID)
	if err != nil {
		return err
	}
	if !enrollment.Enabled {
		return ErrNotEnabled
	}

	secret, err := openSecret(s.aead, enrollment.SecretCiphertext)
	if err != nil {
		return err
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate login code: %w", err)
	}

	if s.notifier != nil {
		contact := enrollment.Contact
		go func() {
			_ = s.notifier.SendLoginCode(contact, code)
		}()
	}

	if err := s.audit.Record(userID, audit.ActionSMSSent, "login code dispatched", meta); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("login code dispatched", zap.Uint("user_id", userID))
	}

	return nil
}

func (s *Service) getEnrollment(userID uint) (*Enrollment, error) {
	var enrollment Enrollment
	if err := s.db.Where("user_id = ?", userID).First(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return &enrollment, nil
}

func (s *Service) validateTOTP(enrollment *Enrollment, code string) (bool, error) {
	secret, err := openSecret(s.aead, enrollment.SecretCiphertext)
	if err != nil {
		return false, err
	}

	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      s.config.MFA.ValidationSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// pquerna/otp reports malformed input as an error; treat as no match
		return false, nil
	}

	return valid, nil
}

// consumeBackupCode deletes the matched hash and decrements the counter in
// one transaction, making the code single-use.
func (s *Service) consumeBackupCode(userID uint, code string) (bool, error) {
	var stored []BackupCode
	if err := s.db.Where("user_id = ?", userID).Find(&stored).Error; err != nil {
		return false, fmt.Errorf("failed to load backup codes: %w", err)
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	for _, bc := range stored {
		if !matchBackupCode(bc.CodeHash, normalized) {
			continue
		}

		consumed := false
		err := s.db.Transaction(func(tx *gorm.DB) error {
			res := tx.Delete(&BackupCode{}, bc.ID)
			if res.Error != nil {
				return fmt.Errorf("failed to consume backup code: %w", res.Error)
			}
			// a concurrent verify may have spent this code already
			if res.RowsAffected == 0 {
				return nil
			}
			consumed = true
			return tx.Model(&Enrollment{}).Where("user_id = ? AND backup_codes_remaining > 0", userID).
				UpdateColumn("backup_codes_remaining", gorm.Expr("backup_codes_remaining - 1")).Error
		})
		if err != nil {
			return false, err
		}
		if consumed {
			return true, nil
		}
	}

	return false, nil
}

func (s *Service) recentFailures(userID uint) (int64, error) {
	cutoff := time.Now().Add(-s.config.MFA.AttemptWindow)

	var count int64
	if err := s.db.Model(&Attempt{}).
		Where("user_id = ? AND success = ? AND created_at > ?", userID, false, cutoff).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count recent attempts: %w", err)
	}
	return count, nil
}

func (s *Service) notifySecurity(contact, subject, body string) {
	if s.notifier == nil || !s.config.MFA.NotifyOnSecurity || contact == "" {
		return
	}
	go func() {
		_ = s.notifier.SendSecurityNotice(contact, subject, body)
	}()
}
