package app

import (
	"context"
	"fmt"
	"log"

	"github.com/pvzzle/txconfirm/internal/bus"
	"github.com/pvzzle/txconfirm/internal/confirm"
	"github.com/pvzzle/txconfirm/internal/ledger"
	"github.com/pvzzle/txconfirm/internal/pending"
	"github.com/pvzzle/txconfirm/internal/storage/pg"
	"github.com/pvzzle/txconfirm/internal/tg"

	tgbot "github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
)

func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	pgPool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("pgxpool new: %w", err)
	}
	defer pgPool.Close()

	repo := pg.New(pgPool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	urls, err := cfg.ChainURLs()
	if err != nil {
		return err
	}

	ledgers, err := ledger.Dial(ctx, urls)
	if err != nil {
		return fmt.Errorf("dial ledgers: %w", err)
	}
	defer ledgers.Close()

	if _, err := ledgers.Get(cfg.DefaultChainID); err != nil {
		return fmt.Errorf("default chain: %w", err)
	}

	store := pending.NewStore()
	notifyCh := make(chan bus.Notification, cfg.NotifyBuffer)

	poller := confirm.NewPoller(ledgers, store, repo, notifyCh, cfg.Poller())
	defer poller.Stop()

	b, err := tgbot.New(cfg.TelegramToken,
		tgbot.WithWorkers(4),
		tgbot.WithNotAsyncHandlers(),
	)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	tgSvc := tg.NewService(b, ledgers, cfg.DefaultChainID, poller, store, notifyCh, repo)

	go tgSvc.StartNotifyLoop(ctx)

	log.Printf("started. chains=%v default=%d initial_delay=%s retry_delay=%s",
		ledgers.Chains(), cfg.DefaultChainID, cfg.InitialDelay, cfg.RetryDelay)
	b.Start(ctx)

	return nil
}
