package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/pvzzle/txconfirm/internal/pending"
)

func TestParseTarget(t *testing.T) {
	full := "0x" + strings.Repeat("1", 64)

	h, err := parseTarget("http://localhost:8545", full)
	if err != nil || h.Hex() != full {
		t.Fatalf("expected %s, got=%s err=%v", full, h.Hex(), err)
	}

	if _, err := parseTarget("", full); err == nil {
		t.Fatalf("expected error without rpc url")
	}

	for _, bad := range []string{"", "0xabc", "0x" + strings.Repeat("g", 64)} {
		if _, err := parseTarget("http://localhost:8545", bad); !errors.Is(err, pending.ErrInvalidHash) {
			t.Fatalf("%q: expected ErrInvalidHash, got=%v", bad, err)
		}
	}
}
