package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
)

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Provide(NewHandler),
		fx.Invoke(func(lc fx.Lifecycle, srv *Server, handler *Handler) {
			handler.RegisterRoutes(srv)

			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go func() {
						if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							if srv.logger != nil {
								srv.logger.Errorf("server stopped: %v", err)
							}
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}

var Module = NewProvider()
