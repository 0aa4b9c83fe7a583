package audit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

// Meta carries request-scoped context the caller wants attached to an event.
type Meta struct {
	SourceAddr string
	UserAgent  string
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

func (s *Service) Record(userID uint, action Action, detail string, meta Meta) error {
	event := &Event{
		ID:         uuid.New().String(),
		UserID:     userID,
		Action:     action,
		Detail:     detail,
		SourceAddr: meta.SourceAddr,
		UserAgent:  meta.UserAgent,
		Device:     describeDevice(meta.UserAgent),
	}

	if err := s.db.Create(event).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to record audit event",
				zap.Error(err),
				zap.Uint("user_id", userID),
				zap.String("action", string(action)))
		}
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("audit event recorded",
			zap.Uint("user_id", userID),
			zap.String("action", string(action)),
			zap.String("source_addr", meta.SourceAddr))
	}

	return nil
}

func (s *Service) ListForUser(userID uint, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []Event
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to list audit events",
				zap.Error(err),
				zap.Uint("user_id", userID))
		}
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	return events, nil
}

func describeDevice(rawUA string) string {
	if rawUA == "" {
		return ""
	}

	ua := useragent.Parse(rawUA)

	var parts []string
	if ua.Name != "" {
		if ua.VersionNo.Major > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", ua.Name, ua.VersionNo.Major))
		} else {
			parts = append(parts, ua.Name)
		}
	}
	if ua.OS != "" {
		parts = append(parts, "on "+ua.OS)
	}

	if len(parts) == 0 {
		return "unknown device"
	}

	return strings.Join(parts, " ")
}
