package database

import (
	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(ProvideDatabaseFx),
)

func ProvideDatabaseFx(cfg *config.Config, modelsOpt *ModelsOption, logger *logging.Service) (*gorm.DB, error) {
	return Open(cfg.Database, modelsOpt, logger)
}
