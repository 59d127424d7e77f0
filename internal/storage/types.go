package storage

import "time"

type TxRecord struct {
	TrackingID string
	Hash       string
	ChainID    string
	Kind       string
	Params     map[string]string
	Status     string // pending|confirmed|reverted|unknown|canceled

	BlockNum      *uint64
	Confirmations uint64
	Attempts      int
	FeeWei        *string // gasUsed * effectiveGasPrice, если есть receipt

	SubmittedAt time.Time
	ResolvedAt  *time.Time
}

type StatusUpdate struct {
	Status        string
	BlockNum      *uint64
	Confirmations uint64
	Attempts      int
	FeeWei        *string
	ResolvedAt    *time.Time
}

type TxEventType string

const (
	EventTrack     TxEventType = "track"
	EventConfirmed TxEventType = "confirmed"
	EventFailed    TxEventType = "failed"
)

type HistoryItem struct {
	At        time.Time
	EventType TxEventType

	Hash          string
	ChainID       string
	Kind          string
	Status        string
	BlockNum      *uint64
	Confirmations uint64
	FeeWei        *string
}
