package testutils

import (
	"time"

	"github.com/safetrack/trustsync/config"
	"golang.org/x/crypto/bcrypt"
)

// TestEncryptionKey is 32 bytes of hex, valid for AES-256.
const TestEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "SafeTrack Test",
			URL:  "http://localhost:8080",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
		MFA: config.MFAConfig{
			Issuer:           "SafeTrack Test",
			EncryptionKey:    TestEncryptionKey,
			MaxAttempts:      5,
			AttemptWindow:    15 * time.Minute,
			BackupCodeCount:  10,
			ValidationSkew:   2,
			BcryptCost:       bcrypt.MinCost,
			NotifyOnSecurity: true,
		},
		Challenge: config.ChallengeConfig{
			SecretKey: "test-secret-key-32-chars-long!!!",
			Issuer:    "trustsync-test",
			Expiry:    5 * time.Minute,
		},
		Notifier: config.NotifierConfig{
			Host:        "localhost",
			Port:        1025,
			Encryption:  "none",
			FromAddress: "security@safetrack.test",
			FromName:    "SafeTrack Security",
		},
		Sync: config.SyncConfig{
			DSN:          ":memory:",
			MaxRetries:   3,
			PollInterval: 30 * time.Second,
		},
	}
}
