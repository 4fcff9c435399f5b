package okx_websocket

import (
	"context"

	"go.uber.org/fx"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/okx_websocket/service"
)

func Module() fx.Option {
	return fx.Module("okx_websocket",
		fx.Provide(
			service.NewClient, // *service.Client
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, feed *service.Client) {
			runCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						defer close(done)
						feed.Run(runCtx, cfg.Symbols)
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					// отмена гасит и reconnect-попытки
					cancel()
					select {
					case <-done:
					case <-ctx.Done():
					}
					return nil
				},
			})
		}),
	)
}
