package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/health"
	"spot_bot/internal/modules/okx_client"
	"spot_bot/internal/modules/okx_websocket"
	"spot_bot/internal/modules/postgres"
	"spot_bot/internal/modules/strategy"
	"spot_bot/internal/notify"
	"spot_bot/internal/runner"
	"spot_bot/pkg/logger"
	"spot_bot/pkg/tracing"
)

func main() {
	logger.SetServiceName("spot_bot")
	tracing.SetServiceName("spot_bot")
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		okx_client.Module(),
		okx_websocket.Module(),
		strategy.Module(),
		postgres.Module(),
		notify.Module(),
		runner.Module(),
		health.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			tracer, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Service.JaegerHost,
				Port: cfg.Service.JaegerPort,
			})
			if err != nil {
				logger.Warn("[TRACING] jaeger недоступен: %v", err)
				return
			}
			_ = tracer
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
		}),
	)

	// Run сам дождётся SIGINT/SIGTERM и мягко погасит модули:
	// цикл дозавершит ордера, фид перестанет переподключаться
	app.Run()
}
