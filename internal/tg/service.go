package tg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/pvzzle/txconfirm/internal/bus"
	"github.com/pvzzle/txconfirm/internal/confirm"
	"github.com/pvzzle/txconfirm/internal/ledger"
	"github.com/pvzzle/txconfirm/internal/pending"
	"github.com/pvzzle/txconfirm/internal/storage"

	"github.com/ethereum/go-ethereum/common"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	cbTrack      = "track"
	cbStatus     = "status"
	cbPending    = "pending"
	cbCancel     = "cancel"
	cbClearDone  = "clear_done"
	cbHistory    = "history"
	cbBackToMain = "back_main"
)

type Service struct {
	bot *tgbot.Bot

	ledgers        *ledger.Registry
	defaultChainID uint64

	poller *confirm.Poller
	store  *pending.Store

	notifyCh <-chan bus.Notification

	state *StateStore

	repo storage.Repository
}

func NewService(
	b *tgbot.Bot,
	ledgers *ledger.Registry,
	defaultChainID uint64,
	poller *confirm.Poller,
	store *pending.Store,
	notifyCh <-chan bus.Notification,
	repo storage.Repository,
) *Service {
	s := &Service{
		bot:            b,
		ledgers:        ledgers,
		defaultChainID: defaultChainID,
		poller:         poller,
		store:          store,
		notifyCh:       notifyCh,
		state:          NewStateStore(),
		repo:           repo,
	}
	s.registerHandlers()
	return s
}

func (s *Service) registerHandlers() {
	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, s.onStart)
	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/track", tgbot.MatchTypePrefix, s.onTrackCmd)

	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbTrack, tgbot.MatchTypeExact, s.onCbTrack)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbStatus, tgbot.MatchTypeExact, s.onCbStatus)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbPending, tgbot.MatchTypeExact, s.onCbPending)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbCancel, tgbot.MatchTypeExact, s.onCbCancel)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbClearDone, tgbot.MatchTypeExact, s.onCbClearDone)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbHistory, tgbot.MatchTypeExact, s.onCbHistory)
	s.bot.RegisterHandler(tgbot.HandlerTypeCallbackQueryData, cbBackToMain, tgbot.MatchTypeExact, s.onCbBackToMain)

	s.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "", tgbot.MatchTypePrefix, s.onAnyText)
}

func (s *Service) StartNotifyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.notifyCh:
			if n.ChatID == 0 {
				log.Printf("[tg] %s notification without chat: %s", n.Level, n.Text)
				continue
			}
			_, err := s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
				ChatID: n.ChatID,
				Text:   n.Text,
			})
			if err != nil {
				log.Printf("[tg] send notify error: %v", err)
			}
		}
	}
}

func mainMenu() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Track", CallbackData: cbTrack},
				{Text: "Status", CallbackData: cbStatus},
			},
			{
				{Text: "Tracked", CallbackData: cbPending},
				{Text: "History", CallbackData: cbHistory},
			},
		},
	}
}

func backMenu() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "Back", CallbackData: cbBackToMain}},
		},
	}
}

func (s *Service) onStart(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	chatID := upd.Message.Chat.ID
	s.state.Set(chatID, StateIdle)

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      chatID,
		Text:        "Hi! I track submitted transactions until they are mined.\n\nPick an action:",
		ReplyMarkup: mainMenu(),
	})
}

func (s *Service) onTrackCmd(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	chatID := upd.Message.Chat.ID
	args := strings.TrimSpace(strings.TrimPrefix(upd.Message.Text, "/track"))
	if args == "" {
		s.askTrack(ctx, b, chatID)
		return
	}
	s.state.Set(chatID, StateIdle)
	s.handleTrack(ctx, b, chatID, args)
}

func (s *Service) onCbTrack(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}
	s.askTrack(ctx, b, chatID)
}

func (s *Service) askTrack(ctx context.Context, b *tgbot.Bot, chatID int64) {
	s.state.Set(chatID, StateAwaitTrack)

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text: fmt.Sprintf(
			"Send: [chainId] <tx hash> [kind] [key=value ...]\nDefault chain: %d\nKinds: %s",
			s.defaultChainID, kindList(),
		),
	})
}

func (s *Service) onCbStatus(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}
	s.state.Set(chatID, StateAwaitStatus)

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   "Send: [chainId] <tx hash>",
	})
}

func (s *Service) onCbCancel(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}
	s.state.Set(chatID, StateAwaitCancel)

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   "Send the tx hash to stop tracking:",
	})
}

func (s *Service) onAnyText(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	if upd.Message == nil {
		return
	}
	chatID := upd.Message.Chat.ID
	text := strings.TrimSpace(upd.Message.Text)

	// команды — не обрабатываем тут
	if strings.HasPrefix(text, "/") {
		return
	}

	switch s.state.Get(chatID) {
	case StateAwaitTrack:
		s.state.Set(chatID, StateIdle)
		s.handleTrack(ctx, b, chatID, text)

	case StateAwaitStatus:
		s.state.Set(chatID, StateIdle)
		s.handleStatus(ctx, b, chatID, text)

	case StateAwaitCancel:
		s.state.Set(chatID, StateIdle)
		s.handleCancel(ctx, b, chatID, text)

	default:
		_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   "Use /start to open the menu.",
		})
	}
}

func (s *Service) handleTrack(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	req, err := ParseTrackRequest(text, s.defaultChainID)
	if err != nil {
		s.reply(ctx, b, chatID, "That does not look like a track request. Expected: [chainId] 0x + 64 hex chars [kind] [key=value ...]")
		return
	}

	if _, err := s.ledgers.Get(req.ChainID); err != nil {
		s.reply(ctx, b, chatID, fmt.Sprintf("Chain %d is not configured. Available: %v", req.ChainID, s.ledgers.Chains()))
		return
	}

	rec, err := s.startTracking(ctx, chatID, req)
	switch {
	case errors.Is(err, confirm.ErrAlreadyTracking):
		s.reply(ctx, b, chatID, "This transaction is already being tracked.")
		return
	case err != nil:
		log.Printf("[tg] confirm %s: %v", req.Hash.Hex(), err)
		s.reply(ctx, b, chatID, fmt.Sprintf("Could not start tracking: %v", err))
		return
	}

	s.reply(ctx, b, chatID, fmt.Sprintf("⏳ Tracking %s on chain %d (%s). I will message you once it is mined.",
		rec.Hash.Hex(), rec.ChainID, rec.Kind))
}

func (s *Service) handleStatus(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	req, err := ParseTrackRequest(text, s.defaultChainID)
	if err != nil {
		s.reply(ctx, b, chatID, "Expected: [chainId] 0x + 64 hex chars")
		return
	}

	chainID := req.ChainID
	rec, tracked := s.store.Get(req.Hash)
	if tracked {
		chainID = rec.ChainID
	}

	res := s.poller.Check(ctx, req.Hash, chainID)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hash: %s\nChain: %d\nOn-chain: %s\nConfirmations: %d", req.Hash.Hex(), chainID, res.State, res.Confirmations)
	if res.BlockNumber != nil {
		fmt.Fprintf(&sb, "\nBlock: #%d", *res.BlockNumber)
	}
	if res.Err != nil {
		fmt.Fprintf(&sb, "\nQuery error: %v", res.Err)
	}
	if tracked {
		fmt.Fprintf(&sb, "\nTracked: %s (%s)", rec.Status, rec.Kind)
	}

	s.reply(ctx, b, chatID, sb.String())
}

func (s *Service) handleCancel(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	if !IsTxHash(text) {
		s.reply(ctx, b, chatID, "Expected 0x + 64 hex chars.")
		return
	}
	hash := common.HexToHash(text)

	rec, ok := s.store.Get(hash)
	if !ok || rec.ChatID != chatID {
		s.reply(ctx, b, chatID, "This transaction is not tracked.")
		return
	}

	rec, canceled := s.stopTracking(ctx, hash)
	if !canceled {
		s.reply(ctx, b, chatID, fmt.Sprintf("Tracking of %s already finished: %s.", hash.Hex(), rec.Status))
		return
	}

	s.reply(ctx, b, chatID, fmt.Sprintf("🚫 Stopped tracking %s.", hash.Hex()))
}

// startTracking сначала занимает hash в поллере и только потом пишет запись:
// отклонённый повтор не должен трогать чужую запись. Первая проверка идёт
// не раньше InitialDelay, так что запись успевает появиться.
func (s *Service) startTracking(ctx context.Context, chatID int64, req TrackRequest) (pending.Transaction, error) {
	if _, err := s.poller.Confirm(ctx, req.Hash, req.ChainID, confirm.WithChatID(chatID)); err != nil {
		return pending.Transaction{}, err
	}

	rec := s.store.Handle(pending.Transaction{
		Hash:    req.Hash,
		ChainID: req.ChainID,
		Kind:    req.Kind,
		Params:  req.Params,
		ChatID:  chatID,
	})

	if err := s.repo.UpsertTx(ctx, TxRecordFrom(rec)); err != nil {
		log.Printf("[tg] db upsert tracked tx error: %v", err)
	}
	if err := s.repo.AddChatEvent(ctx, chatID, rec.Hash.Hex(), storage.EventTrack); err != nil {
		log.Printf("[tg] db add chat event error: %v", err)
	}
	return rec, nil
}

// stopTracking отменяет опрос; false — запись уже закрыта и остаётся как есть.
func (s *Service) stopTracking(ctx context.Context, hash common.Hash) (pending.Transaction, bool) {
	rec, ok := s.store.Get(hash)
	if !ok || rec.Status.Final() {
		return rec, false
	}

	s.poller.Cancel(hash)

	rec, _ = s.store.MarkResolved(hash, pending.StatusCanceled)
	if rec.Status != pending.StatusCanceled || rec.ResolvedAt == nil {
		return rec, false
	}

	if err := s.repo.MarkCanceled(ctx, hash.Hex(), *rec.ResolvedAt); err != nil {
		log.Printf("[tg] db cancel status error: %v", err)
	}
	return rec, true
}

func (s *Service) onCbPending(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}
	s.state.Set(chatID, StateIdle)

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   FormatPending(s.store.ListByChat(chatID)),
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{
				{{Text: "Stop tracking", CallbackData: cbCancel}},
				{{Text: "Clear finished", CallbackData: cbClearDone}},
				{{Text: "Back", CallbackData: cbBackToMain}},
			},
		},
	})
}

func (s *Service) onCbClearDone(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}

	n := s.store.ClearResolved(chatID)
	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      chatID,
		Text:        fmt.Sprintf("✅ Cleared %d finished transactions.", n),
		ReplyMarkup: backMenu(),
	})
}

func (s *Service) onCbBackToMain(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}
	s.state.Set(chatID, StateIdle)

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      chatID,
		Text:        "Main menu:",
		ReplyMarkup: mainMenu(),
	})
}

func (s *Service) onCbHistory(ctx context.Context, b *tgbot.Bot, upd *models.Update) {
	chatID, ok := s.callbackChat(ctx, b, upd)
	if !ok {
		return
	}

	items, err := s.repo.ListHistory(ctx, chatID, 10)
	if err != nil {
		s.reply(ctx, b, chatID, fmt.Sprintf("Could not read history: %v", err))
		return
	}

	text := "History is empty."
	if len(items) > 0 {
		text = FormatHistory(items)
	}

	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: backMenu(),
	})
}

// callbackChat отвечает на callback и достаёт chat id; false — сообщение недоступно.
func (s *Service) callbackChat(ctx context.Context, b *tgbot.Bot, upd *models.Update) (int64, bool) {
	cb := upd.CallbackQuery
	if cb == nil || cb.Message.Type == models.MaybeInaccessibleMessageTypeInaccessibleMessage {
		return 0, false
	}
	_ = s.answerCallback(ctx, b, cb.ID)
	return cb.Message.Message.Chat.ID, true
}

func (s *Service) answerCallback(ctx context.Context, b *tgbot.Bot, callbackID string) error {
	_, err := b.AnswerCallbackQuery(ctx, &tgbot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	})
	return err
}

func (s *Service) reply(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	_, _ = b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

func kindList() string {
	ks := pending.Kinds()
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}

func TxRecordFrom(rec pending.Transaction) storage.TxRecord {
	return storage.TxRecord{
		TrackingID:  rec.ID,
		Hash:        rec.Hash.Hex(),
		ChainID:     strconv.FormatUint(rec.ChainID, 10),
		Kind:        string(rec.Kind),
		Params:      rec.Params,
		Status:      string(rec.Status),
		SubmittedAt: rec.SubmittedAt,
		ResolvedAt:  rec.ResolvedAt,
	}
}
