package challenge

import (
	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/fx"
)

func NewProvider(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(&cfg.Challenge, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
