package pending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestStore_HandleSetsFlags(t *testing.T) {
	s := NewStore()
	hash := common.HexToHash("0xabc")

	rec := s.Handle(Transaction{Hash: hash, ChainID: 1, Kind: KindMint, ChatID: 7})
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
	if !rec.Loading || !rec.ModalVisible || rec.Confirmed || rec.Status != StatusPending {
		t.Fatalf("unexpected record after Handle: %+v", rec)
	}
}

func TestStore_MarkConfirmed(t *testing.T) {
	s := NewStore()
	hash := common.HexToHash("0xabc")
	s.Handle(Transaction{Hash: hash, ChainID: 1})

	rec, ok := s.MarkConfirmed(hash)
	if !ok {
		t.Fatal("expected record")
	}
	if !rec.Confirmed || rec.Loading || rec.ModalVisible || rec.Status != StatusConfirmed || rec.ResolvedAt == nil {
		t.Fatalf("unexpected record: %+v", rec)
	}

	first := *rec.ResolvedAt
	rec, _ = s.MarkConfirmed(hash)
	if !rec.ResolvedAt.Equal(first) {
		t.Fatalf("expected second MarkConfirmed to be a no-op")
	}

	if _, ok := s.MarkConfirmed(common.HexToHash("0xdef")); ok {
		t.Fatal("expected no record for unknown hash")
	}
}

func TestStore_MarkResolvedKeepsConfirmed(t *testing.T) {
	s := NewStore()
	hash := common.HexToHash("0x01")
	s.Handle(Transaction{Hash: hash})
	s.MarkConfirmed(hash)

	rec, _ := s.MarkResolved(hash, StatusUnknown)
	if rec.Status != StatusConfirmed {
		t.Fatalf("expected confirmed to stay, got=%s", rec.Status)
	}

	other := common.HexToHash("0x02")
	s.Handle(Transaction{Hash: other})
	rec, ok := s.MarkResolved(other, StatusReverted)
	if !ok || rec.Status != StatusReverted || rec.Confirmed || rec.Loading {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec, _ = s.MarkResolved(other, StatusCanceled)
	if rec.Status != StatusReverted {
		t.Fatalf("expected reverted to stay, got=%s", rec.Status)
	}
}

func TestStore_GetIsCopy(t *testing.T) {
	s := NewStore()
	hash := common.HexToHash("0xabc")
	s.Handle(Transaction{Hash: hash, Params: map[string]string{"tokenId": "1"}})

	rec, _ := s.Get(hash)
	rec.Params["tokenId"] = "2"
	rec.Confirmed = true

	rec2, _ := s.Get(hash)
	if rec2.Params["tokenId"] != "1" || rec2.Confirmed {
		t.Fatalf("expected stored value unchanged, got=%+v", rec2)
	}
}

func TestStore_ClearResolved(t *testing.T) {
	s := NewStore()
	a := common.HexToHash("0x0a")
	b := common.HexToHash("0x0b")
	c := common.HexToHash("0x0c")

	s.Handle(Transaction{Hash: a, ChatID: 1})
	s.Handle(Transaction{Hash: b, ChatID: 1})
	s.Handle(Transaction{Hash: c, ChatID: 2})
	s.MarkConfirmed(a)
	s.MarkConfirmed(c)

	if n := s.ClearResolved(1); n != 1 {
		t.Fatalf("expected 1 cleared, got=%d", n)
	}
	if got := s.ListByChat(1); len(got) != 1 || got[0].Hash != b {
		t.Fatalf("expected only pending tx to remain, got=%v", got)
	}
	if got := s.List(); len(got) != 2 {
		t.Fatalf("expected 2 records overall, got=%d", len(got))
	}

	s.Clear(b)
	if _, ok := s.Get(b); ok {
		t.Fatal("expected record removed")
	}
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("MINTBOX")
	if !ok || k != KindMintBox {
		t.Fatalf("expected mintBox, got=%s ok=%v", k, ok)
	}
	k, ok = ParseKind("swap")
	if ok || k != KindUnknown {
		t.Fatalf("expected unknown, got=%s ok=%v", k, ok)
	}
}
