package confirm

import (
	"context"
	"math/big"
	"time"

	"github.com/pvzzle/txconfirm/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const queryTimeout = 10 * time.Second

type State int

const (
	StatePending State = iota
	StateConfirmed
	StateReverted
	StateQueryError
)

func (s State) String() string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StateReverted:
		return "reverted"
	case StateQueryError:
		return "query-error"
	default:
		return "pending"
	}
}

type CheckResult struct {
	State         State
	Confirmations uint64
	BlockNumber   *uint64
	FeeWei        *big.Int
	Err           error
}

// Check — одна проверка статуса транзакции. Ошибки RPC не пробрасываются,
// а возвращаются как StateQueryError, чтобы вызывающий мог отличить
// "ещё не смайнена" от "узел не отвечает".
func (p *Poller) Check(ctx context.Context, hash common.Hash, chainID uint64) CheckResult {
	l, err := p.ledgers.Get(chainID)
	if err != nil {
		return CheckResult{State: StateQueryError, Err: err}
	}

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	bn, receipt, confs, err := confirmations(qctx, l, hash)
	if err != nil {
		return CheckResult{State: StateQueryError, Err: err}
	}

	res := CheckResult{State: StatePending, BlockNumber: bn, Confirmations: confs}
	if bn == nil || confs < p.cfg.MinConfirmations {
		return res
	}

	res.State = StateConfirmed

	// receipt не обязателен: без него просто нет комиссии и детекта revert
	if receipt != nil {
		res.FeeWei = receiptFee(receipt)
		if receipt.Status == types.ReceiptStatusFailed {
			res.State = StateReverted
		}
	}

	return res
}

// GetConfirmations: 0, если транзакция не смайнена или запрос упал.
func (p *Poller) GetConfirmations(ctx context.Context, hash common.Hash, chainID uint64) uint64 {
	l, err := p.ledgers.Get(chainID)
	if err != nil {
		return 0
	}

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, _, confs, err := confirmations(qctx, l, hash)
	if err != nil {
		return 0
	}
	return confs
}

func confirmations(ctx context.Context, l ledger.Ledger, hash common.Hash) (*uint64, *types.Receipt, uint64, error) {
	bn, receipt, err := minedBlock(ctx, l, hash)
	if err != nil {
		return nil, nil, 0, err
	}
	if bn == nil {
		return nil, nil, 0, nil
	}

	height, err := l.BlockNumber(ctx)
	if err != nil {
		return nil, nil, 0, err
	}

	// узел за балансировщиком может отставать от того, где нашёлся receipt
	if height < *bn {
		return bn, receipt, 0, nil
	}
	return bn, receipt, height - *bn, nil
}

// minedBlock берёт блок из receipt, если ledger его отдаёт, иначе через TransactionBlock.
func minedBlock(ctx context.Context, l ledger.Ledger, hash common.Hash) (*uint64, *types.Receipt, error) {
	rr, ok := l.(ledger.ReceiptReader)
	if !ok {
		bn, err := l.TransactionBlock(ctx, hash)
		return bn, nil, err
	}

	receipt, err := rr.MinedReceipt(ctx, hash)
	if err != nil || receipt == nil || receipt.BlockNumber == nil {
		return nil, nil, err
	}
	bn := receipt.BlockNumber.Uint64()
	return &bn, receipt, nil
}

func receiptFee(r *types.Receipt) *big.Int {
	if r.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}
