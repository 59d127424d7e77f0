package main

import (
	"context"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pvzzle/txconfirm/internal/bus"
	"github.com/pvzzle/txconfirm/internal/confirm"
	"github.com/pvzzle/txconfirm/internal/ledger"
	"github.com/pvzzle/txconfirm/internal/pending"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// simLedger — цепочка в памяти: высота растёт по тикеру,
// транзакция майнится через 1..5 блоков после отправки.
type simLedger struct {
	height atomic.Uint64

	mu      sync.RWMutex
	minedAt map[common.Hash]uint64
}

func newSimLedger() *simLedger {
	return &simLedger{minedAt: make(map[common.Hash]uint64)}
}

func (l *simLedger) run(ctx context.Context, blockTime time.Duration) {
	t := time.NewTicker(blockTime)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.height.Add(1)
		}
	}
}

func (l *simLedger) submit(hash common.Hash, r *rand.Rand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minedAt[hash] = l.height.Load() + uint64(1+r.Intn(5))
}

func (l *simLedger) TransactionBlock(ctx context.Context, hash common.Hash) (*uint64, error) {
	l.mu.RLock()
	at, ok := l.minedAt[hash]
	l.mu.RUnlock()

	if !ok || at > l.height.Load() {
		return nil, nil
	}
	return &at, nil
}

func (l *simLedger) BlockNumber(ctx context.Context) (uint64, error) {
	return l.height.Load(), nil
}

func runPoller(ctx context.Context, rps int, dur, blockTime, retry time.Duration) results {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sim := newSimLedger()
	go sim.run(ctx, blockTime)

	reg := ledger.NewRegistry()
	reg.Register(1, sim)

	store := pending.NewStore()
	notifyCh := make(chan bus.Notification, 1024)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-notifyCh:
			}
		}
	}()

	poller := confirm.NewPoller(reg, store, nil, notifyCh, confirm.Config{
		InitialDelay: retry,
		RetryDelay:   retry,
		MaxAttempts:  1000,
	})

	var (
		res results
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	res.startedAt = time.Now()

	lim := rate.NewLimiter(rate.Limit(rps), rps)
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	submitCtx, stopSubmit := context.WithTimeout(ctx, dur)
	defer stopSubmit()

	for lim.Wait(submitCtx) == nil {
		hash := common.BigToHash(new(big.Int).SetUint64(r.Uint64()))
		sim.submit(hash, r)
		store.Handle(pending.Transaction{Hash: hash, ChainID: 1, Kind: pending.KindMint})

		t0 := time.Now()
		tr, err := poller.Confirm(ctx, hash, 1)
		atomic.AddUint64(&res.totalOps, 1)
		atomic.AddUint64(&res.writeOps, 1)
		if err != nil {
			atomic.AddUint64(&res.errOps, 1)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			out := tr.Outcome()
			store.Clear(tr.Hash)
			if out.Status != pending.StatusConfirmed {
				atomic.AddUint64(&res.errOps, 1)
				return
			}
			mu.Lock()
			res.latencies = append(res.latencies, time.Since(t0))
			mu.Unlock()
		}()
	}

	wg.Wait()
	poller.Stop()
	res.finishedAt = time.Now()
	return res
}
