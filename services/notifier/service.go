package notifier

import (
	"fmt"

	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type Service struct {
	config *config.NotifierConfig
	client *mail.Client
	logger *logging.Service
}

func NewService(cfg *config.NotifierConfig, logger *logging.Service) (*Service, error) {
	if logger != nil {
		logger.Info("initializing notifier service",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
			zap.String("encryption", cfg.Encryption),
			zap.String("from_address", cfg.FromAddress))
	}

	if cfg.FromAddress == "" {
		if logger != nil {
			logger.Error("notifier initialization failed: FROM_ADDRESS is required")
		}
		return nil, fmt.Errorf("TRUSTSYNC_NOTIFIER_FROM_ADDRESS is required")
	}

	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username))
	}
	if cfg.Password != "" {
		clientOpts = append(clientOpts, mail.WithPassword(cfg.Password))
	}

	switch cfg.Encryption {
	case "tls", "starttls":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		if logger != nil {
			logger.Error("failed to create mail client",
				zap.Error(err),
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port))
		}
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	return &Service{
		config: cfg,
		client: client,
		logger: logger,
	}, nil
}

// SendSecurityNotice delivers a plain-text security notification. Callers
// treat delivery as fire-and-forget; a failure is logged, never retried here.
func (s *Service) SendSecurityNotice(to, subject, body string) error {
	return s.send(to, subject, body)
}

// SendLoginCode delivers a one-time login code to the user's contact
// address (email, or an email-to-SMS gateway address).
func (s *Service) SendLoginCode(to, code string) error {
	body := fmt.Sprintf("Your %s verification code is: %s\n\nThis code expires shortly. If you did not request it, secure your account.", s.config.FromName, code)
	return s.send(to, "Your verification code", body)
}

func (s *Service) send(to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(s.config.FromName, s.config.FromAddress); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := s.client.DialAndSend(msg); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send notification",
				zap.Error(err),
				zap.String("to", to),
				zap.String("subject", subject))
		}
		return fmt.Errorf("failed to send notification: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("notification sent",
			zap.String("to", to),
			zap.String("subject", subject))
	}

	return nil
}
