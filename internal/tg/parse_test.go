package tg

import (
	"errors"
	"strings"
	"testing"

	"github.com/pvzzle/txconfirm/internal/pending"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseTrackRequest(t *testing.T) {
	hash := "0x" + strings.Repeat("a", 64)

	req, err := ParseTrackRequest(hash, 1)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if req.ChainID != 1 || req.Hash != common.HexToHash(hash) || req.Kind != pending.KindUnknown {
		t.Fatalf("unexpected request: %+v", req)
	}

	req, err = ParseTrackRequest("137 "+hash+" fractionalize tokenId=42 erc721=0xbb", 1)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if req.ChainID != 137 || req.Kind != pending.KindFractionalize {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Params["tokenId"] != "42" || req.Params["erc721"] != "0xbb" {
		t.Fatalf("unexpected params: %v", req.Params)
	}

	req, err = ParseTrackRequest(hash+" note=", 5)
	if err != nil || req.Params["note"] != "" || req.ChainID != 5 {
		t.Fatalf("expected empty param value allowed, got=%+v err=%v", req, err)
	}

	bad := []string{
		"",
		"0x123",
		"1",
		"0 " + hash,
		hash + " swap",
		hash + " mint =x",
	}
	for _, in := range bad {
		if _, err := ParseTrackRequest(in, 1); !errors.Is(err, ErrInvalidTrackInput) {
			t.Fatalf("expected ErrInvalidTrackInput for %q, got=%v", in, err)
		}
	}
}

func TestValidators(t *testing.T) {
	if !IsTxHash("0x" + strings.Repeat("a", 64)) {
		t.Fatalf("expected valid tx hash")
	}
	if IsTxHash("0x123") {
		t.Fatalf("expected invalid tx hash")
	}
}
