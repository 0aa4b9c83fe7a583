package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig       `envPrefix:"TRUSTSYNC_APP_"`
	Server    ServerConfig    `envPrefix:"TRUSTSYNC_SERVER_"`
	Log       LogConfig       `envPrefix:"TRUSTSYNC_LOG_"`
	Database  DatabaseConfig  `envPrefix:"TRUSTSYNC_DATABASE_"`
	MFA       MFAConfig       `envPrefix:"TRUSTSYNC_MFA_"`
	Challenge ChallengeConfig `envPrefix:"TRUSTSYNC_CHALLENGE_"`
	Notifier  NotifierConfig  `envPrefix:"TRUSTSYNC_NOTIFIER_"`
	Sync      SyncConfig      `envPrefix:"TRUSTSYNC_SYNC_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"SafeTrack"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"json"`
	OutputPath string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"trustsync.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type MFAConfig struct {
	Issuer           string        `env:"ISSUER"`
	EncryptionKey    string        `env:"ENCRYPTION_KEY"`
	MaxAttempts      int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	AttemptWindow    time.Duration `env:"ATTEMPT_WINDOW" envDefault:"15m"`
	BackupCodeCount  int           `env:"BACKUP_CODE_COUNT" envDefault:"10"`
	ValidationSkew   uint          `env:"VALIDATION_SKEW" envDefault:"2"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`
	NotifyOnSecurity bool          `env:"NOTIFY_ON_SECURITY" envDefault:"true"`
}

type ChallengeConfig struct {
	SecretKey string        `env:"SECRET_KEY"`
	Issuer    string        `env:"ISSUER" envDefault:"trustsync"`
	Expiry    time.Duration `env:"EXPIRY" envDefault:"5m"`
}

type NotifierConfig struct {
	Host        string `env:"HOST"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Encryption  string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress string `env:"FROM_ADDRESS"`
	FromName    string `env:"FROM_NAME" envDefault:"SafeTrack Security"`
}

type SyncConfig struct {
	DSN           string        `env:"DSN" envDefault:"trustsync-device.db"`
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"3"`
	RemoteBaseURL string        `env:"REMOTE_BASE_URL"`
	RemoteToken   string        `env:"REMOTE_TOKEN"`
	HealthURL     string        `env:"HEALTH_URL"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
