package logging

import (
	"github.com/safetrack/trustsync/config"
	"go.uber.org/fx"
)

func NewProvider(cfg *config.Config) (*Service, error) {
	return NewService(cfg.Log)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
