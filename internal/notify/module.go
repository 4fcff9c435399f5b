package notify

import (
	"go.uber.org/fx"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/runner"
	"spot_bot/pkg/logger"
)

// Module отдаёт runner.Notifier: telegram при заданном токене, иначе лог.
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) (runner.Notifier, error) {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Info("[NOTIFY] telegram не настроен — сводки только в лог")
					return Log{}, nil
				}
				t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
				if err != nil {
					return nil, err
				}
				return t, nil
			},
		),
	)
}
