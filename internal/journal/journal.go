package journal

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"spot_bot/internal/models"
	"spot_bot/pkg/db"
)

// Pg — журнал закрытых сделок в Postgres. Поднимается только при заданном
// DSN; торговля от журнала не зависит — ошибка записи лишь логируется выше.
type Pg struct {
	tx db.TxManager
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS closed_trades (
	id         BIGSERIAL PRIMARY KEY,
	symbol     TEXT        NOT NULL,
	qty        NUMERIC     NOT NULL,
	entry_px   NUMERIC     NOT NULL,
	exit_px    NUMERIC     NOT NULL,
	invested   NUMERIC     NOT NULL,
	pnl        NUMERIC     NOT NULL,
	reason     TEXT        NOT NULL,
	order_id   TEXT        NOT NULL,
	opened_at  TIMESTAMPTZ NOT NULL,
	closed_at  TIMESTAMPTZ NOT NULL
)`

const insertTradeSQL = `
INSERT INTO closed_trades
	(symbol, qty, entry_px, exit_px, invested, pnl, reason, order_id, opened_at, closed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

func NewPg(ctx context.Context, tx db.TxManager) (*Pg, error) {
	j := &Pg{tx: tx}
	err := tx.RunMaster(ctx, func(ctxTx context.Context, t pgx.Tx) error {
		_, err := t.Exec(ctxTx, createTableSQL)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create closed_trades")
	}
	return j, nil
}

func (j *Pg) Record(ctx context.Context, tr models.ClosedTrade) error {
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, t pgx.Tx) error {
		// NUMERIC принимает текстовое представление, кодек для decimal не нужен
		_, err := t.Exec(ctxTx, insertTradeSQL,
			tr.Symbol, tr.Qty.String(), tr.Entry.String(), tr.Exit.String(),
			tr.Invested.String(), tr.PnL.String(),
			string(tr.Reason), tr.OrderID, tr.OpenedAt, tr.ClosedAt,
		)
		return errors.Wrap(err, "insert closed trade")
	})
}

// Noop — журнал по умолчанию, когда Postgres не настроен.
type Noop struct{}

func (Noop) Record(context.Context, models.ClosedTrade) error { return nil }
