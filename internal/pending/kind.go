package pending

import "strings"

type Kind string

const (
	KindUnknown                Kind = "unknown"
	KindMint                   Kind = "mint"
	KindMintBox                Kind = "mintBox"
	KindBoxAddItem             Kind = "boxAddItem"
	KindRemoveNftInBox         Kind = "removeNftInBox"
	KindFractionalize          Kind = "fractionalize"
	KindFractionalizeApprove   Kind = "fractionalizeApprove"
	KindBid                    Kind = "bid"
	KindBidApprove             Kind = "bidApprove"
	KindBidCancel              Kind = "bidCancel"
	KindBidUpdate              Kind = "bidUpdate"
	KindRedeem                 Kind = "redeem"
	KindApproveErc20Redeem     Kind = "approveErc20Redeem"
	KindPortfolioClaim         Kind = "portfolioClaim"
	KindSetApprovalForAll721   Kind = "setApprovalForAllErc721"
	KindPeerToPeerApproveErc20 Kind = "peerToPeerApproveErc20"
	KindPeerToPeerCreateOrder  Kind = "peerToPeerCreateOrder"
	KindPeerToPeerUpdateOrder  Kind = "peerToPeerUpdateOrder"
	KindPeerToPeerCancelOrder  Kind = "peerToPeerCancelOrder"
	KindPeerToPeerExecuteOrder Kind = "peerToPeerExecuteOrder"
)

var kinds = []Kind{
	KindMint, KindMintBox, KindBoxAddItem, KindRemoveNftInBox,
	KindFractionalize, KindFractionalizeApprove,
	KindBid, KindBidApprove, KindBidCancel, KindBidUpdate,
	KindRedeem, KindApproveErc20Redeem, KindPortfolioClaim, KindSetApprovalForAll721,
	KindPeerToPeerApproveErc20, KindPeerToPeerCreateOrder, KindPeerToPeerUpdateOrder,
	KindPeerToPeerCancelOrder, KindPeerToPeerExecuteOrder,
}

// ParseKind без учёта регистра; неизвестные значения -> KindUnknown, false.
func ParseKind(s string) (Kind, bool) {
	s = strings.TrimSpace(s)
	for _, k := range kinds {
		if strings.EqualFold(string(k), s) {
			return k, true
		}
	}
	return KindUnknown, false
}

func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}
