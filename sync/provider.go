package sync

import (
	"context"

	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/database"
	"github.com/safetrack/trustsync/services/logging"
	"go.uber.org/fx"
)

// NewProvider opens the device-local store and wires the queue to a polling
// connectivity monitor. The device database is private to the queue; it is
// never the application's primary *gorm.DB.
func NewProvider(lc fx.Lifecycle, cfg *config.Config, logger *logging.Service) (*Queue, error) {
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    cfg.Sync.DSN,
	}, nil, logger)
	if err != nil {
		return nil, err
	}

	remote := NewHTTPRemote(cfg.Sync.RemoteBaseURL, cfg.Sync.RemoteToken)

	queue, err := NewQueue(db, remote, cfg.Sync.MaxRetries, logger)
	if err != nil {
		return nil, err
	}

	monitor := NewPollingMonitor(cfg.Sync.HealthURL, cfg.Sync.PollInterval, logger)
	monitor.OnTransition(queue.SetOnline)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			monitor.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			monitor.Stop()
			return queue.Close()
		},
	})

	return queue, nil
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
