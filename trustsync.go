// Package trustsync is the trust and sync core for SafeTrack: multi-factor
// credential verification for the backend and an offline mutation queue for
// field devices with intermittent connectivity.
package trustsync

import (
	"github.com/safetrack/trustsync/app"
	"github.com/safetrack/trustsync/config"
	"go.uber.org/fx"
)

type App = app.App

func New(cfg *config.Config, extraOptions ...fx.Option) *App {
	return app.New(cfg, extraOptions...)
}
