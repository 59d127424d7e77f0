package confirm

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pvzzle/txconfirm/internal/bus"
	"github.com/pvzzle/txconfirm/internal/ledger"
	"github.com/pvzzle/txconfirm/internal/pending"
	"github.com/pvzzle/txconfirm/internal/storage"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrEmptyHash       = errors.New("empty tx hash")
	ErrAlreadyTracking = errors.New("tx is already tracked")
	ErrStopped         = errors.New("poller stopped")
	ErrNoPendingRecord = errors.New("no pending record for tx")
	ErrGaveUp          = errors.New("confirmation attempts exhausted")
)

type Ledgers interface {
	Get(chainID uint64) (ledger.Ledger, error)
}

type Config struct {
	InitialDelay     time.Duration
	RetryDelay       time.Duration
	MaxAttempts      int
	Timeout          time.Duration
	MinConfirmations uint64
	// после стольких ошибок RPC подряд пользователь получает предупреждение
	MaxQueryErrors int
}

func (c Config) withDefaults() Config {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 10 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 900
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Minute
	}
	if c.MinConfirmations == 0 {
		c.MinConfirmations = 1
	}
	if c.MaxQueryErrors <= 0 {
		c.MaxQueryErrors = 5
	}
	return c
}

type Option func(*options)

type options struct {
	delay            time.Duration
	alreadyConfirmed bool
	chatID           int64
}

// WithDelay задаёт задержку перед первой проверкой.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithAlreadyConfirmed: транзакция уже финальна, опрос не запускается.
func WithAlreadyConfirmed(v bool) Option {
	return func(o *options) { o.alreadyConfirmed = v }
}

// WithChatID — куда слать уведомления, если записи в store нет.
func WithChatID(chatID int64) Option {
	return func(o *options) { o.chatID = chatID }
}

type Outcome struct {
	Status        pending.Status
	Confirmations uint64
	BlockNumber   *uint64
	Attempts      int
	Err           error
}

type Tracking struct {
	Hash    common.Hash
	ChainID uint64

	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

func (t *Tracking) Done() <-chan struct{} { return t.done }

// Outcome валиден после закрытия Done().
func (t *Tracking) Outcome() Outcome {
	<-t.done
	return t.outcome
}

func (t *Tracking) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracking) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-t.done:
		return t.outcome, nil
	}
}

type Poller struct {
	ledgers  Ledgers
	store    *pending.Store
	repo     storage.Repository
	notifyCh chan<- bus.Notification

	cfg Config

	after func(time.Duration) <-chan time.Time
	now   func() time.Time

	mu      sync.Mutex
	active  map[common.Hash]*Tracking
	stopped bool
	wg      sync.WaitGroup
}

func NewPoller(
	ledgers Ledgers,
	store *pending.Store,
	repo storage.Repository,
	notifyCh chan<- bus.Notification,
	cfg Config,
) *Poller {
	return &Poller{
		ledgers:  ledgers,
		store:    store,
		repo:     repo,
		notifyCh: notifyCh,
		cfg:      cfg.withDefaults(),
		after:    time.After,
		now:      time.Now,
		active:   make(map[common.Hash]*Tracking),
	}
}

// Confirm планирует проверку hash через delay (по умолчанию InitialDelay)
// и возвращается сразу. Дальше опрос идёт с шагом RetryDelay, пока
// транзакция не наберёт MinConfirmations, не истечёт лимит попыток/время
// или не будет отменён ctx.
func (p *Poller) Confirm(ctx context.Context, hash common.Hash, chainID uint64, opts ...Option) (*Tracking, error) {
	if hash == (common.Hash{}) {
		return nil, ErrEmptyHash
	}
	if _, err := p.ledgers.Get(chainID); err != nil {
		return nil, err
	}

	o := options{delay: p.cfg.InitialDelay}
	for _, opt := range opts {
		opt(&o)
	}

	tr := &Tracking{Hash: hash, ChainID: chainID, done: make(chan struct{})}

	if o.alreadyConfirmed {
		tr.outcome = Outcome{Status: pending.StatusConfirmed}
		close(tr.done)
		return tr, nil
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrStopped
	}
	if _, ok := p.active[hash]; ok {
		p.mu.Unlock()
		return nil, ErrAlreadyTracking
	}
	tctx, cancel := context.WithCancel(ctx)
	tr.cancel = cancel
	p.active[hash] = tr
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(tctx, tr, o)
	return tr, nil
}

func (p *Poller) Cancel(hash common.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	tr, ok := p.active[hash]
	if ok {
		tr.cancel()
	}
	return ok
}

func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Stop отменяет все активные опросы и ждёт их завершения.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	for _, tr := range p.active {
		tr.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, tr *Tracking, o options) {
	defer p.wg.Done()

	out := p.poll(ctx, tr, o)

	p.mu.Lock()
	if p.active[tr.Hash] == tr {
		delete(p.active, tr.Hash)
	}
	p.mu.Unlock()

	tr.cancel()
	tr.outcome = out
	close(tr.done)
}

func (p *Poller) poll(ctx context.Context, tr *Tracking, o options) Outcome {
	deadline := p.now().Add(p.cfg.Timeout)
	delay := o.delay

	var (
		last      CheckResult
		queryErrs int
	)

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			log.Printf("[CONFIRM] %s: polling canceled after %d attempts", tr.Hash.Hex(), attempt-1)
			return Outcome{
				Status:        pending.StatusCanceled,
				Confirmations: last.Confirmations,
				BlockNumber:   last.BlockNumber,
				Attempts:      attempt - 1,
				Err:           ctx.Err(),
			}
		case <-p.after(delay):
		}

		res := p.Check(ctx, tr.Hash, tr.ChainID)
		if res.State != StateQueryError {
			last = res
		}

		switch res.State {
		case StateConfirmed:
			return p.finalize(ctx, tr, o, res, attempt, pending.StatusConfirmed)

		case StateReverted:
			return p.finalize(ctx, tr, o, res, attempt, pending.StatusReverted)

		case StateQueryError:
			queryErrs++
			log.Printf("[CONFIRM] %s: query error (%d in a row): %v", tr.Hash.Hex(), queryErrs, res.Err)
			if queryErrs == p.cfg.MaxQueryErrors {
				p.notify(ctx, p.chatFor(tr.Hash, o), bus.LevelWarn,
					FormatQueryTrouble(tr.Hash, tr.ChainID, queryErrs, res.Err))
			}

		default:
			queryErrs = 0
		}

		if attempt >= p.cfg.MaxAttempts || !p.now().Before(deadline) {
			return p.giveUp(ctx, tr, o, last, attempt)
		}

		delay = p.cfg.RetryDelay
	}
}

func (p *Poller) finalize(ctx context.Context, tr *Tracking, o options, res CheckResult, attempt int, st pending.Status) Outcome {
	out := Outcome{
		Status:        st,
		Confirmations: res.Confirmations,
		BlockNumber:   res.BlockNumber,
		Attempts:      attempt,
	}

	var (
		rec pending.Transaction
		ok  bool
	)
	if st == pending.StatusConfirmed {
		rec, ok = p.store.MarkConfirmed(tr.Hash)
	} else {
		rec, ok = p.store.MarkResolved(tr.Hash, st)
	}

	if !ok {
		log.Printf("[CONFIRM] %s: %s on-chain but no pending record", tr.Hash.Hex(), st)
		p.notify(ctx, o.chatID, bus.LevelError, MsgNoPendingRecord)
		out.Err = ErrNoPendingRecord
		return out
	}

	event := storage.EventConfirmed
	level := bus.LevelInfo
	text := FormatConfirmed(rec, res)
	if st == pending.StatusReverted {
		event = storage.EventFailed
		level = bus.LevelError
		text = FormatReverted(rec, res)
	}

	p.persist(ctx, rec, res, attempt, event)
	p.notify(ctx, chatOr(rec.ChatID, o.chatID), level, text)

	log.Printf("[CONFIRM] %s: %s, block=%v confirmations=%d attempts=%d",
		tr.Hash.Hex(), st, derefBlock(res.BlockNumber), res.Confirmations, attempt)
	return out
}

func (p *Poller) giveUp(ctx context.Context, tr *Tracking, o options, last CheckResult, attempt int) Outcome {
	out := Outcome{
		Status:        pending.StatusUnknown,
		Confirmations: last.Confirmations,
		BlockNumber:   last.BlockNumber,
		Attempts:      attempt,
		Err:           ErrGaveUp,
	}

	log.Printf("[CONFIRM] %s: giving up after %d attempts", tr.Hash.Hex(), attempt)

	rec, ok := p.store.MarkResolved(tr.Hash, pending.StatusUnknown)
	if !ok {
		p.notify(ctx, o.chatID, bus.LevelWarn, FormatUnknown(tr.Hash, tr.ChainID, attempt))
		return out
	}

	p.persist(ctx, rec, last, attempt, storage.EventFailed)
	p.notify(ctx, chatOr(rec.ChatID, o.chatID), bus.LevelWarn, FormatUnknown(tr.Hash, tr.ChainID, attempt))
	return out
}

func (p *Poller) persist(ctx context.Context, rec pending.Transaction, res CheckResult, attempt int, event storage.TxEventType) {
	if p.repo == nil {
		return
	}

	var fee *string
	if res.FeeWei != nil {
		s := res.FeeWei.String()
		fee = &s
	}

	hash := rec.Hash.Hex()
	err := p.repo.SetStatus(ctx, hash, storage.StatusUpdate{
		Status:        string(rec.Status),
		BlockNum:      res.BlockNumber,
		Confirmations: res.Confirmations,
		Attempts:      attempt,
		FeeWei:        fee,
		ResolvedAt:    rec.ResolvedAt,
	})
	if err != nil {
		log.Printf("[CONFIRM] db set status error: %v", err)
		// не возвращаем — уведомление важнее
	}

	if rec.ChatID != 0 {
		if err := p.repo.AddChatEvent(ctx, rec.ChatID, hash, event); err != nil {
			log.Printf("[CONFIRM] db chat event error: %v", err)
		}
	}
}

func (p *Poller) notify(ctx context.Context, chatID int64, level bus.Level, text string) {
	select {
	case p.notifyCh <- bus.Notification{ChatID: chatID, Level: level, Text: text}:
	case <-ctx.Done():
	}
}

func (p *Poller) chatFor(hash common.Hash, o options) int64 {
	if rec, ok := p.store.Get(hash); ok {
		return chatOr(rec.ChatID, o.chatID)
	}
	return o.chatID
}

func chatOr(chatID, fallback int64) int64 {
	if chatID != 0 {
		return chatID
	}
	return fallback
}

func derefBlock(bn *uint64) any {
	if bn == nil {
		return "-"
	}
	return *bn
}
