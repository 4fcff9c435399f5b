package okx_client

import (
	"spot_bot/internal/modules/okx_client/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("okx_client",
		fx.Provide(
			service.NewClient, // *service.Client
		),
	)
}
