package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ethBackend — подмножество *ethclient.Client, чтобы тестировать без узла.
type ethBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type EthLedger struct {
	client  ethBackend
	chainID uint64
	closer  func()
}

func DialEth(ctx context.Context, url string) (*EthLedger, error) {
	cl, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial eth: %w", err)
	}

	chainID, err := cl.ChainID(ctx)
	if err != nil {
		cl.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	return &EthLedger{client: cl, chainID: chainID.Uint64(), closer: cl.Close}, nil
}

func NewEthLedger(client *ethclient.Client, chainID uint64) *EthLedger {
	return &EthLedger{client: client, chainID: chainID, closer: client.Close}
}

func (l *EthLedger) ChainID() uint64 { return l.chainID }

func (l *EthLedger) TransactionBlock(ctx context.Context, hash common.Hash) (*uint64, error) {
	receipt, err := l.MinedReceipt(ctx, hash)
	if err != nil || receipt == nil {
		return nil, err
	}
	bn := receipt.BlockNumber.Uint64()
	return &bn, nil
}

func (l *EthLedger) MinedReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	_, isPending, err := l.client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		// узел ещё не видел транзакцию (или она выпала из мемпула)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if isPending {
		return nil, nil
	}

	receipt, err := l.client.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, nil
	}
	return receipt, nil
}

func (l *EthLedger) BlockNumber(ctx context.Context) (uint64, error) {
	return l.client.BlockNumber(ctx)
}

func (l *EthLedger) Close() {
	if l.closer != nil {
		l.closer()
	}
}
