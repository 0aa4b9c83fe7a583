package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safetrack/trustsync/config"
	"github.com/safetrack/trustsync/database"
	"github.com/safetrack/trustsync/server"
	"github.com/safetrack/trustsync/services/audit"
	"github.com/safetrack/trustsync/services/challenge"
	"github.com/safetrack/trustsync/services/logging"
	"github.com/safetrack/trustsync/services/mfa"
	"github.com/safetrack/trustsync/services/notifier"
	"github.com/safetrack/trustsync/sync"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
	db     *gorm.DB
	server *server.Server
	queue  *sync.Queue
}

// New assembles the full application graph. Passing a nil config loads it
// from the environment.
func New(customConfig *config.Config, extraOptions ...fx.Option) *App {
	app := &App{}

	options := []fx.Option{
		config.NewProvider(customConfig),
		logging.Module,
		fx.Supply(database.WithModels(
			&mfa.Enrollment{},
			&mfa.BackupCode{},
			&mfa.Attempt{},
			&audit.Event{},
		)),
		database.Module,
		audit.Module,
		notifier.Module,
		challenge.Module,
		mfa.Module,
		sync.Module,
		server.Module,
		fx.Invoke(func(mfaSvc *mfa.Service, notifierSvc *notifier.Service) {
			mfaSvc.SetNotifier(notifierSvc)
		}),
		fx.Populate(&app.config, &app.logger, &app.db, &app.server, &app.queue),
		fx.NopLogger,
	}
	options = append(options, extraOptions...)

	app.fx = fx.New(options...)
	return app
}

func (a *App) Start() error {
	return a.fx.Start(context.Background())
}

func (a *App) Run() {
	if err := a.Start(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	if a.logger != nil {
		a.logger.Info("Received shutdown signal, stopping gracefully...")
	}

	a.Stop()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("Failed to stop application gracefully")
		} else {
			log.Printf("Failed to stop application gracefully: %v", err)
		}
	}
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Server() *server.Server {
	return a.server
}

func (a *App) Queue() *sync.Queue {
	return a.queue
}
