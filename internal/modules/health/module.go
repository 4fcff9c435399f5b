package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/health/service"
	okxws "spot_bot/internal/modules/okx_websocket/service"
	"spot_bot/internal/runner"
)

func NewMux(state *service.State, feed *okxws.Client, mgr *runner.Manager) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: фид подключался и цикл запущен
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// сводка цикла: баланс позиций, статистика сделок, состояние фида
		h := feed.Health()
		stats := mgr.Stats()

		positions := make([]map[string]any, 0)
		for _, p := range mgr.OpenPositions() {
			positions = append(positions, map[string]any{
				"symbol":   p.Symbol,
				"qty":      p.Qty.String(),
				"entry":    p.Entry.String(),
				"invested": p.Invested.String(),
				"heldSec":  int64(time.Since(p.EntryTime).Seconds()),
			})
		}

		resp := map[string]any{
			"ready":     state.Ready(),
			"uptimeSec": int64(state.Uptime().Seconds()),

			"openPositions": positions,
			"trades":        stats.Trades,
			"wins":          stats.Wins,
			"winRate":       stats.WinRate(),
			"pnlUSDT":       stats.PnL.String(),

			"feed": map[string]any{
				"connected":  h.Connected,
				"messages":   h.Messages,
				"reconnects": h.Reconnects,
				"latencyMs":  float64(h.AvgLatency.Microseconds()) / 1000.0,
				"lastUpdateUnix": func() int64 {
					if h.LastUpdate.IsZero() {
						return 0
					}
					return h.LastUpdate.Unix()
				}(),
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, state *service.State, mux *http.ServeMux) {
	addr := fmt.Sprintf("%s:%d", cfg.Service.Host, cfg.Service.AdminPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			state.SetReady(true)
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			state.SetReady(false)
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
