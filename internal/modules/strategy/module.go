package strategy

import (
	"go.uber.org/fx"

	"spot_bot/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			service.NewComposite, // *service.Composite
			func(c *service.Composite) service.Engine { return c },
		),
	)
}
