// Command confirm ждёт подтверждения одной транзакции и выходит.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pvzzle/txconfirm/internal/bus"
	"github.com/pvzzle/txconfirm/internal/confirm"
	"github.com/pvzzle/txconfirm/internal/ledger"
	"github.com/pvzzle/txconfirm/internal/pending"

	"github.com/ethereum/go-ethereum/common"
)

func parseTarget(rpcURL, hashHex string) (common.Hash, error) {
	if rpcURL == "" {
		return common.Hash{}, errors.New("-rpc is required")
	}
	hash, err := pending.ParseHash(hashHex)
	if err != nil {
		return common.Hash{}, fmt.Errorf("-hash %q: %w", hashHex, err)
	}
	return hash, nil
}

func main() {
	var (
		rpcURL      = flag.String("rpc", "", "ledger RPC URL (http/ws)")
		hashHex     = flag.String("hash", "", "tx hash")
		kind        = flag.String("kind", "unknown", "tx kind")
		delay       = flag.Duration("delay", 10*time.Second, "delay before the first check")
		retry       = flag.Duration("retry", 2*time.Second, "delay between checks")
		maxAttempts = flag.Int("max-attempts", 900, "give up after this many checks")
		timeout     = flag.Duration("timeout", 30*time.Minute, "give up after this long")
		minConfs    = flag.Uint64("min-confs", 1, "confirmations required")
	)
	flag.Parse()

	hash, err := parseTarget(*rpcURL, *hashHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l, err := ledger.DialEth(ctx, *rpcURL)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Close()

	reg := ledger.NewRegistry()
	reg.Register(l.ChainID(), l)

	k, _ := pending.ParseKind(*kind)

	store := pending.NewStore()
	store.Handle(pending.Transaction{Hash: hash, ChainID: l.ChainID(), Kind: k})

	notifyCh := make(chan bus.Notification, 16)
	poller := confirm.NewPoller(reg, store, nil, notifyCh, confirm.Config{
		InitialDelay:     *delay,
		RetryDelay:       *retry,
		MaxAttempts:      *maxAttempts,
		Timeout:          *timeout,
		MinConfirmations: *minConfs,
	})
	defer poller.Stop()

	tr, err := poller.Confirm(ctx, hash, l.ChainID())
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("waiting for %s on chain %d", hash.Hex(), l.ChainID())

	for {
		select {
		case n := <-notifyCh:
			fmt.Printf("[%s] %s\n", n.Level, n.Text)
		case <-tr.Done():
			// добираем уведомление, отправленное перед завершением
			for len(notifyCh) > 0 {
				n := <-notifyCh
				fmt.Printf("[%s] %s\n", n.Level, n.Text)
			}
			out := tr.Outcome()
			if out.Status != pending.StatusConfirmed {
				log.Printf("finished: %s after %d checks: %v", out.Status, out.Attempts, out.Err)
				os.Exit(1)
			}
			return
		}
	}
}
