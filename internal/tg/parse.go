package tg

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/pvzzle/txconfirm/internal/pending"

	"github.com/ethereum/go-ethereum/common"
)

var (
	reChainID = regexp.MustCompile(`^[0-9]{1,19}$`)

	ErrInvalidTrackInput = errors.New("invalid track input")
)

func IsTxHash(s string) bool {
	return pending.IsTxHash(s)
}

type TrackRequest struct {
	ChainID uint64
	Hash    common.Hash
	Kind    pending.Kind
	Params  map[string]string
}

// ParseTrackRequest разбирает "[chainId] <hash> [kind] [key=value ...]".
// Без chainId используется defaultChainID.
func ParseTrackRequest(text string, defaultChainID uint64) (TrackRequest, error) {
	fields := strings.Fields(text)
	req := TrackRequest{ChainID: defaultChainID, Kind: pending.KindUnknown}

	if len(fields) > 0 && reChainID.MatchString(fields[0]) {
		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil || id == 0 {
			return TrackRequest{}, ErrInvalidTrackInput
		}
		req.ChainID = id
		fields = fields[1:]
	}

	if len(fields) == 0 || !IsTxHash(fields[0]) {
		return TrackRequest{}, ErrInvalidTrackInput
	}
	req.Hash = common.HexToHash(fields[0])
	fields = fields[1:]

	if len(fields) > 0 && !strings.Contains(fields[0], "=") {
		k, ok := pending.ParseKind(fields[0])
		if !ok {
			return TrackRequest{}, ErrInvalidTrackInput
		}
		req.Kind = k
		fields = fields[1:]
	}

	for _, kv := range fields {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return TrackRequest{}, ErrInvalidTrackInput
		}
		if req.Params == nil {
			req.Params = make(map[string]string)
		}
		req.Params[k] = v
	}

	return req, nil
}
