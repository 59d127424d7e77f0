package tg

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/pvzzle/txconfirm/internal/confirm"
	"github.com/pvzzle/txconfirm/internal/pending"
	"github.com/pvzzle/txconfirm/internal/storage"
)

func FormatHistory(items []storage.HistoryItem) string {
	var sb strings.Builder
	sb.WriteString("🕘 History (last 10)\n\n")

	for _, it := range items {
		hashShort := shortenHash(it.Hash)

		bn := ""
		if it.BlockNum != nil {
			bn = fmt.Sprintf(" #%d", *it.BlockNum)
		}

		fee := ""
		if it.FeeWei != nil {
			feeWei := new(big.Int)
			if _, ok := feeWei.SetString(*it.FeeWei, 10); ok {
				fee = fmt.Sprintf(", fee %s ETH", confirm.WeiToEthString(feeWei))
			}
		}

		sb.WriteString(fmt.Sprintf(
			"• %s (%s) %s%s\n  chain %s, %s%s\n",
			hashShort, it.EventType, statusIcon(it.Status), bn, it.ChainID, it.Kind, fee,
		))
	}

	return sb.String()
}

func FormatPending(txs []pending.Transaction) string {
	if len(txs) == 0 {
		return "No tracked transactions."
	}

	var sb strings.Builder
	sb.WriteString("⏳ Tracked transactions\n\n")
	for _, tx := range txs {
		sb.WriteString(fmt.Sprintf("• %s %s\n  chain %d, %s, %s\n",
			shortenHash(tx.Hash.Hex()), statusIcon(string(tx.Status)), tx.ChainID, tx.Kind, tx.Status))
	}
	return sb.String()
}

func statusIcon(status string) string {
	switch pending.Status(status) {
	case pending.StatusConfirmed:
		return "✅"
	case pending.StatusReverted:
		return "❌"
	case pending.StatusUnknown:
		return "⚠️"
	case pending.StatusCanceled:
		return "🚫"
	default:
		return "⏳"
	}
}

func shortenHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:10] + "…" + h[len(h)-4:]
}
