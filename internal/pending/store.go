package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReverted  Status = "reverted"
	StatusUnknown   Status = "unknown"
	StatusCanceled  Status = "canceled"
)

func (s Status) Final() bool { return s != StatusPending }

type Transaction struct {
	ID      string
	Hash    common.Hash
	ChainID uint64
	Kind    Kind
	Params  map[string]string
	ChatID  int64

	Confirmed    bool
	Status       Status
	Loading      bool
	ModalVisible bool

	SubmittedAt time.Time
	ResolvedAt  *time.Time
}

// Store — ожидающие подтверждения транзакции, по ключу hash.
// Одна запись на hash, повторный Handle перезаписывает.
type Store struct {
	mu   sync.RWMutex
	data map[common.Hash]*Transaction
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: make(map[common.Hash]*Transaction), now: time.Now}
}

// Handle регистрирует только что отправленную транзакцию:
// Loading и ModalVisible выставляются, Confirmed сбрасывается.
func (s *Store) Handle(tx Transaction) Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := copyTx(&tx)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Kind == "" {
		rec.Kind = KindUnknown
	}
	rec.Confirmed = false
	rec.Status = StatusPending
	rec.Loading = true
	rec.ModalVisible = true
	rec.SubmittedAt = s.now().UTC()
	rec.ResolvedAt = nil

	s.data[rec.Hash] = &rec
	return copyTx(&rec)
}

func (s *Store) Get(hash common.Hash) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.data[hash]
	if rec == nil {
		return Transaction{}, false
	}
	return copyTx(rec), true
}

// MarkConfirmed false, если записи нет. Повторный вызов для уже
// подтверждённой записи ничего не меняет.
func (s *Store) MarkConfirmed(hash common.Hash) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.data[hash]
	if rec == nil {
		return Transaction{}, false
	}
	if !rec.Confirmed {
		rec.Confirmed = true
		rec.Status = StatusConfirmed
		rec.Loading = false
		rec.ModalVisible = false
		at := s.now().UTC()
		rec.ResolvedAt = &at
	}
	return copyTx(rec), true
}

// MarkResolved закрывает запись без подтверждения (revert, таймаут, отмена).
// Уже закрытую запись не трогает: первый финальный статус остаётся.
func (s *Store) MarkResolved(hash common.Hash, st Status) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.data[hash]
	if rec == nil {
		return Transaction{}, false
	}
	if rec.Confirmed || rec.Status.Final() {
		return copyTx(rec), true
	}
	rec.Status = st
	rec.Loading = false
	rec.ModalVisible = false
	at := s.now().UTC()
	rec.ResolvedAt = &at
	return copyTx(rec), true
}

func (s *Store) Clear(hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, hash)
}

// ClearResolved удаляет все закрытые записи чата, возвращает их число.
func (s *Store) ClearResolved(chatID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for h, rec := range s.data {
		if rec.ChatID == chatID && rec.Status.Final() {
			delete(s.data, h)
			n++
		}
	}
	return n
}

func (s *Store) List() []Transaction {
	return s.filter(func(*Transaction) bool { return true })
}

func (s *Store) ListByChat(chatID int64) []Transaction {
	return s.filter(func(rec *Transaction) bool { return rec.ChatID == chatID })
}

func (s *Store) filter(keep func(*Transaction) bool) []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, rec := range s.data {
		if keep(rec) {
			out = append(out, copyTx(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func copyTx(rec *Transaction) Transaction {
	out := *rec
	if rec.Params != nil {
		out.Params = make(map[string]string, len(rec.Params))
		for k, v := range rec.Params {
			out.Params[k] = v
		}
	}
	if rec.ResolvedAt != nil {
		at := *rec.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}
