package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"spot_bot/internal/journal"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/runner"
	"spot_bot/pkg/db"
	"spot_bot/pkg/logger"
)

// Module отдаёт runner.Journal: pg-журнал при заданном DSN, иначе no-op.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, lc fx.Lifecycle, cfg *config.Config) (runner.Journal, error) {
				if cfg.DB == "" {
					logger.Info("[JOURNAL] db_dsn не задан — журнал сделок выключен")
					return journal.Noop{}, nil
				}

				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				if err = poolMaster.Ping(ctx); err != nil {
					return nil, err
				}

				txm := db.NewPgTxManager(poolMaster)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						txm.Close()
						return nil
					},
				})

				j, err := journal.NewPg(ctx, txm)
				if err != nil {
					return nil, err
				}
				return j, nil
			},
		),
	)
}
