package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("tx not found")

type Repository interface {
	EnsureSchema(ctx context.Context) error

	UpsertTx(ctx context.Context, tx TxRecord) error
	SetStatus(ctx context.Context, hash string, upd StatusUpdate) error
	// MarkCanceled трогает только status/resolved_at и только у pending записи.
	MarkCanceled(ctx context.Context, hash string, at time.Time) error
	AddChatEvent(ctx context.Context, chatID int64, txHash string, eventType TxEventType) error

	ListHistory(ctx context.Context, chatID int64, limit int) ([]HistoryItem, error)
}
