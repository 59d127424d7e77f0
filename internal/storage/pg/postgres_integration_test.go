//go:build integration

package pg_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pvzzle/txconfirm/internal/storage"
	"github.com/pvzzle/txconfirm/internal/storage/pg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newRepo(t *testing.T) (*pg.Postgres, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = os.Getenv("PG_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_PG_DSN/PG_DSN is not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	repo := pg.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	// чистим после миграций (быстро и предсказуемо)
	_, _ = pool.Exec(ctx, "TRUNCATE chat_tx, tracked_tx RESTART IDENTITY CASCADE")
	return repo, pool
}

func TestRepo_TrackConfirmAndHistory(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	tx := storage.TxRecord{
		TrackingID:  uuid.NewString(),
		Hash:        "0x" + strings.Repeat("1", 64),
		ChainID:     "1",
		Kind:        "mint",
		Params:      map[string]string{"tokenId": "42"},
		Status:      "pending",
		SubmittedAt: time.Now().UTC(),
	}

	if err := repo.UpsertTx(ctx, tx); err != nil {
		t.Fatalf("UpsertTx: %v", err)
	}

	chatID := int64(42)
	if err := repo.AddChatEvent(ctx, chatID, tx.Hash, storage.EventTrack); err != nil {
		t.Fatalf("AddChatEvent: %v", err)
	}

	bn := uint64(123)
	fee := "21000000000000"
	now := time.Now().UTC()
	err := repo.SetStatus(ctx, tx.Hash, storage.StatusUpdate{
		Status:        "confirmed",
		BlockNum:      &bn,
		Confirmations: 3,
		Attempts:      3,
		FeeWei:        &fee,
		ResolvedAt:    &now,
	})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := repo.AddChatEvent(ctx, chatID, tx.Hash, storage.EventConfirmed); err != nil {
		t.Fatalf("AddChatEvent: %v", err)
	}

	h, err := repo.ListHistory(ctx, chatID, 10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(h) != 2 {
		t.Fatalf("expected 2 history items, got=%d", len(h))
	}
	for _, it := range h {
		if it.Hash != tx.Hash || it.Status != "confirmed" {
			t.Fatalf("unexpected item: %+v", it)
		}
		if it.BlockNum == nil || *it.BlockNum != bn {
			t.Fatalf("expected block %d, got=%v", bn, it.BlockNum)
		}
		if it.FeeWei == nil || *it.FeeWei != fee {
			t.Fatalf("expected fee %s, got=%v", fee, it.FeeWei)
		}
	}
}

func TestRepo_SetStatusUnknownHash(t *testing.T) {
	repo, _ := newRepo(t)

	err := repo.SetStatus(context.Background(), "0x"+strings.Repeat("2", 64), storage.StatusUpdate{Status: "unknown"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got=%v", err)
	}
}

func TestRepo_MarkCanceledKeepsFinalRecord(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()
	chatID := int64(7)

	done := storage.TxRecord{
		TrackingID:  uuid.NewString(),
		Hash:        "0x" + strings.Repeat("3", 64),
		ChainID:     "1",
		Kind:        "bid",
		Status:      "pending",
		SubmittedAt: time.Now().UTC(),
	}
	open := done
	open.TrackingID = uuid.NewString()
	open.Hash = "0x" + strings.Repeat("4", 64)

	for _, tx := range []storage.TxRecord{done, open} {
		if err := repo.UpsertTx(ctx, tx); err != nil {
			t.Fatalf("UpsertTx: %v", err)
		}
		if err := repo.AddChatEvent(ctx, chatID, tx.Hash, storage.EventTrack); err != nil {
			t.Fatalf("AddChatEvent: %v", err)
		}
	}

	bn := uint64(77)
	err := repo.SetStatus(ctx, done.Hash, storage.StatusUpdate{
		Status:        "confirmed",
		BlockNum:      &bn,
		Confirmations: 2,
		Attempts:      4,
	})
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	now := time.Now().UTC()
	for _, h := range []string{done.Hash, open.Hash} {
		if err := repo.MarkCanceled(ctx, h, now); err != nil {
			t.Fatalf("MarkCanceled %s: %v", h, err)
		}
	}

	items, err := repo.ListHistory(ctx, chatID, 10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 history items, got=%d", len(items))
	}
	for _, it := range items {
		switch it.Hash {
		case done.Hash:
			if it.Status != "confirmed" || it.Confirmations != 2 {
				t.Fatalf("final record changed by cancel: %+v", it)
			}
		case open.Hash:
			if it.Status != "canceled" {
				t.Fatalf("expected canceled, got=%+v", it)
			}
		}
	}
}
