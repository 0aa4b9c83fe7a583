package mfa

import (
	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/services/audit"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(cfg *config.Config, db *gorm.DB, auditSvc *audit.Service, logger *logging.Service) (*Service, error) {
	return NewService(cfg, db, auditSvc, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
