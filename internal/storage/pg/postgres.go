package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/pvzzle/txconfirm/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

func (r *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS tracked_tx (
  hash TEXT PRIMARY KEY,
  tracking_id UUID NOT NULL,
  chain_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  params JSONB NOT NULL DEFAULT '{}'::jsonb,

  status TEXT NOT NULL, -- pending|confirmed|reverted|unknown|canceled
  block_number BIGINT NULL,
  confirmations BIGINT NOT NULL DEFAULT 0,
  attempts INT NOT NULL DEFAULT 0,
  fee_wei NUMERIC(78,0) NULL,

  submitted_at TIMESTAMPTZ NOT NULL,
  resolved_at  TIMESTAMPTZ NULL,
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS tracked_tx_status_idx ON tracked_tx(status);

CREATE TABLE IF NOT EXISTS chat_tx (
  chat_id BIGINT NOT NULL,
  tx_hash TEXT NOT NULL REFERENCES tracked_tx(hash) ON DELETE CASCADE,
  event_type TEXT NOT NULL, -- track|confirmed|failed
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (chat_id, tx_hash, event_type)
);

CREATE INDEX IF NOT EXISTS chat_tx_chat_created_idx ON chat_tx(chat_id, created_at DESC);
`
	_, err := r.pool.Exec(ctx, ddl)
	return err
}

func (r *Postgres) UpsertTx(ctx context.Context, tx storage.TxRecord) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		blockNum   any = nil
		feeWei     any = nil
		resolvedAt any = nil
	)
	if tx.BlockNum != nil {
		blockNum = int64(*tx.BlockNum)
	}
	if tx.FeeWei != nil {
		feeWei = *tx.FeeWei
	}
	if tx.ResolvedAt != nil {
		resolvedAt = *tx.ResolvedAt
	}

	params := tx.Params
	if params == nil {
		params = map[string]string{}
	}

	q := `
INSERT INTO tracked_tx(
  hash, tracking_id, chain_id, kind, params,
  status, block_number, confirmations, attempts, fee_wei,
  submitted_at, resolved_at
) VALUES (
  $1, $2, $3, $4, $5,
  $6, $7, $8, $9, $10::numeric,
  $11, $12
)
ON CONFLICT(hash) DO UPDATE SET
  tracking_id   = EXCLUDED.tracking_id,
  chain_id      = EXCLUDED.chain_id,
  kind          = EXCLUDED.kind,
  params        = EXCLUDED.params,
  status        = EXCLUDED.status,
  block_number  = COALESCE(EXCLUDED.block_number, tracked_tx.block_number),
  confirmations = EXCLUDED.confirmations,
  attempts      = EXCLUDED.attempts,
  fee_wei       = COALESCE(EXCLUDED.fee_wei, tracked_tx.fee_wei),
  submitted_at  = EXCLUDED.submitted_at,
  resolved_at   = EXCLUDED.resolved_at,
  updated_at    = now()
`
	_, err := r.pool.Exec(cctx, q,
		tx.Hash, tx.TrackingID, tx.ChainID, tx.Kind, params,
		tx.Status, blockNum, int64(tx.Confirmations), tx.Attempts, feeWei,
		tx.SubmittedAt, resolvedAt,
	)
	return err
}

func (r *Postgres) MarkCanceled(ctx context.Context, hash string, at time.Time) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := r.pool.Exec(cctx, `
UPDATE tracked_tx SET
  status      = 'canceled',
  resolved_at = $2,
  updated_at  = now()
WHERE hash = $1 AND status = 'pending'`,
		hash, at,
	)
	return err
}

func (r *Postgres) SetStatus(ctx context.Context, hash string, upd storage.StatusUpdate) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		blockNum   any = nil
		feeWei     any = nil
		resolvedAt any = nil
	)
	if upd.BlockNum != nil {
		blockNum = int64(*upd.BlockNum)
	}
	if upd.FeeWei != nil {
		feeWei = *upd.FeeWei
	}
	if upd.ResolvedAt != nil {
		resolvedAt = *upd.ResolvedAt
	}

	tag, err := r.pool.Exec(cctx, `
UPDATE tracked_tx SET
  status        = $2,
  block_number  = COALESCE($3, block_number),
  confirmations = $4,
  attempts      = $5,
  fee_wei       = COALESCE($6::numeric, fee_wei),
  resolved_at   = COALESCE($7, resolved_at),
  updated_at    = now()
WHERE hash = $1`,
		hash, upd.Status, blockNum, int64(upd.Confirmations), upd.Attempts, feeWei, resolvedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set status %s: %w", hash, storage.ErrNotFound)
	}
	return nil
}

func (r *Postgres) AddChatEvent(ctx context.Context, chatID int64, txHash string, eventType storage.TxEventType) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := r.pool.Exec(cctx,
		`INSERT INTO chat_tx(chat_id, tx_hash, event_type) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		chatID, txHash, string(eventType),
	)
	return err
}

func (r *Postgres) ListHistory(ctx context.Context, chatID int64, limit int) ([]storage.HistoryItem, error) {
	if limit <= 0 {
		limit = 10
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	q := `
SELECT
  c.created_at,
  c.event_type,
  t.hash,
  t.chain_id,
  t.kind,
  t.status,
  t.block_number,
  t.confirmations,
  t.fee_wei::text
FROM chat_tx c
JOIN tracked_tx t ON t.hash = c.tx_hash
WHERE c.chat_id = $1
ORDER BY c.created_at DESC
LIMIT $2
`
	rows, err := r.pool.Query(cctx, q, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.HistoryItem
	for rows.Next() {
		var (
			at       time.Time
			etype    string
			hash     string
			chainID  string
			kind     string
			status   string
			blockNum *int64
			confs    int64
			feeWei   *string
		)

		if err := rows.Scan(&at, &etype, &hash, &chainID, &kind, &status, &blockNum, &confs, &feeWei); err != nil {
			return nil, err
		}

		var bn *uint64
		if blockNum != nil {
			u := uint64(*blockNum)
			bn = &u
		}

		out = append(out, storage.HistoryItem{
			At: at, EventType: storage.TxEventType(etype),
			Hash: hash, ChainID: chainID, Kind: kind, Status: status,
			BlockNum: bn, Confirmations: uint64(confs), FeeWei: feeWei,
		})
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return out, nil
}

func (r *Postgres) String() string { return fmt.Sprintf("pgrepo(%p)", r.pool) }
