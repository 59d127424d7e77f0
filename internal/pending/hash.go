package pending

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	reTxHash = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

	ErrInvalidHash = errors.New("invalid tx hash")
)

func IsTxHash(s string) bool {
	return reTxHash.MatchString(strings.TrimSpace(s))
}

// ParseHash, в отличие от common.HexToHash, не принимает обрезанный или битый hex.
func ParseHash(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !IsTxHash(s) {
		return common.Hash{}, ErrInvalidHash
	}
	return common.HexToHash(s), nil
}
