package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrUnknownChain = errors.New("unknown chain")

// Ledger — минимальный набор чтений, нужный для подсчёта подтверждений.
// Оба метода должны быть безопасны для повторных вызовов.
type Ledger interface {
	// TransactionBlock возвращает номер блока, в который попала транзакция,
	// или nil, если она ещё не смайнена (или неизвестна узлу).
	TransactionBlock(ctx context.Context, hash common.Hash) (*uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ReceiptReader опционален: с ним поллер различает revert и считает комиссию.
// MinedReceipt возвращает nil без ошибки, пока транзакция не смайнена.
type ReceiptReader interface {
	MinedReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type Registry struct {
	mu      sync.RWMutex
	ledgers map[uint64]Ledger
}

func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[uint64]Ledger)}
}

func (r *Registry) Register(chainID uint64, l Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[chainID] = l
}

func (r *Registry) Get(chainID uint64) (Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.ledgers[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrUnknownChain)
	}
	return l, nil
}

func (r *Registry) Chains() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint64, 0, len(r.ledgers))
	for id := range r.ledgers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dial поднимает EthLedger на каждый endpoint и сверяет chain id узла с ожидаемым.
func Dial(ctx context.Context, urls map[uint64]string) (*Registry, error) {
	r := NewRegistry()
	for chainID, url := range urls {
		l, err := DialEth(ctx, url)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("chain %d: %w", chainID, err)
		}
		if l.ChainID() != chainID {
			l.Close()
			r.Close()
			return nil, fmt.Errorf("chain %d: endpoint reports chain id %d", chainID, l.ChainID())
		}
		r.Register(chainID, l)
	}
	return r, nil
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.ledgers {
		if c, ok := l.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
