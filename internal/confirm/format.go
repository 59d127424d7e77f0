package confirm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/pvzzle/txconfirm/internal/pending"

	"github.com/ethereum/go-ethereum/common"
)

const MsgNoPendingRecord = "Could not confirm the transaction status"

var weiPerEth = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func WeiToEthString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetInt(wei)
	r.Quo(r, new(big.Rat).SetInt(weiPerEth))
	// комиссии мелкие, 6 знаков съедают их целиком; 9 знаков достаточно
	return r.FloatString(9)
}

func FormatConfirmed(rec pending.Transaction, res CheckResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ Transaction confirmed\n\nHash: %s\nChain: %d\nKind: %s\n",
		rec.Hash.Hex(), rec.ChainID, rec.Kind)
	if res.BlockNumber != nil {
		fmt.Fprintf(&sb, "Block: #%d\n", *res.BlockNumber)
	}
	fmt.Fprintf(&sb, "Confirmations: %d", res.Confirmations)
	if res.FeeWei != nil {
		fmt.Fprintf(&sb, "\nFee: %s ETH", WeiToEthString(res.FeeWei))
	}
	return sb.String()
}

func FormatReverted(rec pending.Transaction, res CheckResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "❌ Transaction reverted\n\nHash: %s\nChain: %d\nKind: %s",
		rec.Hash.Hex(), rec.ChainID, rec.Kind)
	if res.BlockNumber != nil {
		fmt.Fprintf(&sb, "\nBlock: #%d", *res.BlockNumber)
	}
	if res.FeeWei != nil {
		fmt.Fprintf(&sb, "\nFee: %s ETH", WeiToEthString(res.FeeWei))
	}
	return sb.String()
}

func FormatUnknown(hash common.Hash, chainID uint64, attempts int) string {
	return fmt.Sprintf(
		"⚠️ Transaction status unknown\n\nHash: %s\nChain: %d\nNot mined after %d checks. It may have been dropped or replaced.",
		hash.Hex(), chainID, attempts,
	)
}

func FormatQueryTrouble(hash common.Hash, chainID uint64, errs int, err error) string {
	return fmt.Sprintf(
		"⚠️ Chain %d is not responding (%d failed checks in a row), still waiting for %s\n\nLast error: %v",
		chainID, errs, hash.Hex(), err,
	)
}
