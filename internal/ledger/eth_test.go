package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type mockBackend struct {
	txErr      error
	pending    bool
	receipt    *types.Receipt
	receiptErr error
	height     uint64

	receiptCalls int
}

func (m *mockBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if m.txErr != nil {
		return nil, false, m.txErr
	}
	return nil, m.pending, nil
}

func (m *mockBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	m.receiptCalls++
	return m.receipt, m.receiptErr
}

func (m *mockBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return m.height, nil
}

func TestEthLedger_TransactionBlock(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc")

	l := &EthLedger{client: &mockBackend{txErr: ethereum.NotFound}}
	bn, err := l.TransactionBlock(ctx, hash)
	if err != nil || bn != nil {
		t.Fatalf("not found: expected nil,nil got=%v err=%v", bn, err)
	}

	l = &EthLedger{client: &mockBackend{pending: true}}
	bn, err = l.TransactionBlock(ctx, hash)
	if err != nil || bn != nil {
		t.Fatalf("pending: expected nil,nil got=%v err=%v", bn, err)
	}

	rpcErr := errors.New("connection refused")
	l = &EthLedger{client: &mockBackend{txErr: rpcErr}}
	if _, err = l.TransactionBlock(ctx, hash); !errors.Is(err, rpcErr) {
		t.Fatalf("expected rpc error, got=%v", err)
	}

	l = &EthLedger{client: &mockBackend{receipt: &types.Receipt{BlockNumber: big.NewInt(120)}}}
	bn, err = l.TransactionBlock(ctx, hash)
	if err != nil || bn == nil || *bn != 120 {
		t.Fatalf("mined: expected 120, got=%v err=%v", bn, err)
	}
}

func TestEthLedger_MinedReceipt(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0xabc")

	backend := &mockBackend{receipt: &types.Receipt{
		Status:      types.ReceiptStatusFailed,
		BlockNumber: big.NewInt(7),
	}}
	l := &EthLedger{client: backend}

	r, err := l.MinedReceipt(ctx, hash)
	if err != nil || r == nil || r.BlockNumber.Uint64() != 7 || r.Status != types.ReceiptStatusFailed {
		t.Fatalf("unexpected receipt: %+v err=%v", r, err)
	}
	if backend.receiptCalls != 1 {
		t.Fatalf("expected one receipt call, got=%d", backend.receiptCalls)
	}

	l = &EthLedger{client: &mockBackend{receiptErr: ethereum.NotFound}}
	if r, err = l.MinedReceipt(ctx, hash); err != nil || r != nil {
		t.Fatalf("receipt not found: expected nil,nil got=%v err=%v", r, err)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(137, &EthLedger{client: &mockBackend{}, chainID: 137})
	r.Register(1, &EthLedger{client: &mockBackend{}, chainID: 1})

	if _, err := r.Get(1); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := r.Get(5); !errors.Is(err, ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain, got=%v", err)
	}

	chains := r.Chains()
	if len(chains) != 2 || chains[0] != 1 || chains[1] != 137 {
		t.Fatalf("unexpected chains: %v", chains)
	}
}
