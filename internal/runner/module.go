package runner

import (
	"context"

	"go.uber.org/fx"

	"spot_bot/internal/modules/config"
	okx "spot_bot/internal/modules/okx_client/service"
	okxws "spot_bot/internal/modules/okx_websocket/service"
	strategy "spot_bot/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(cfg *config.Config, cl *okx.Client, j Journal, n Notifier) *Manager {
				return NewManager(cfg, cl, j, n)
			},
			func(cfg *config.Config, cl *okx.Client, feed *okxws.Client, eng strategy.Engine, mgr *Manager, n Notifier) *Runner {
				return New(cfg, cl, feed, eng, mgr, n)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, r *Runner) {
			done := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						defer close(done)
						r.Start(context.Background())
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					// даём текущему циклу дозавершить in-flight ордера
					r.Stop()
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
