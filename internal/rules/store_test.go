package rules

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func submit(t *testing.T, s *Store, owner, symbol string) int64 {
	t.Helper()
	r := validRule()
	r.Owner = owner
	r.Symbol = symbol
	id, err := s.Submit(r)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return id
}

func TestSubmitAssignsMonotonicIDs(t *testing.T) {
	s := NewStore(noopLogger())

	for want := int64(0); want < 3; want++ {
		if got := submit(t, s, "chat-1", "BTC/USDT"); got != want {
			t.Fatalf("id = %d, want %d", got, want)
		}
	}

	// A different bucket starts its own sequence.
	if got := submit(t, s, "chat-1", "ETH/USDT"); got != 0 {
		t.Fatalf("new bucket id = %d, want 0", got)
	}
	if got := submit(t, s, "chat-2", "BTC/USDT"); got != 0 {
		t.Fatalf("new owner id = %d, want 0", got)
	}
}

func TestCancelledIDNotReusedWhileBucketLive(t *testing.T) {
	s := NewStore(noopLogger())

	id0 := submit(t, s, "chat-1", "BTC/USDT")
	submit(t, s, "chat-1", "BTC/USDT")

	if err := s.Cancel("chat-1", "BTC/USDT", id0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := submit(t, s, "chat-1", "BTC/USDT"); got != 2 {
		t.Fatalf("id after cancel = %d, want 2", got)
	}
}

func TestEmptiedBucketFreesIDNamespace(t *testing.T) {
	s := NewStore(noopLogger())

	id := submit(t, s, "chat-1", "BTC/USDT")
	if err := s.Cancel("chat-1", "BTC/USDT", id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := submit(t, s, "chat-1", "BTC/USDT"); got != 0 {
		t.Fatalf("id after bucket emptied = %d, want 0", got)
	}
}

func TestCancelIdempotent(t *testing.T) {
	s := NewStore(noopLogger())
	id := submit(t, s, "chat-1", "BTC/USDT")

	if err := s.Cancel("chat-1", "BTC/USDT", id); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := s.Cancel("chat-1", "BTC/USDT", id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second cancel = %v, want ErrNotFound", err)
	}
	if err := s.Cancel("nobody", "BTC/USDT", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cancel for unknown owner = %v, want ErrNotFound", err)
	}
}

func TestSubmitRejectsInvalid(t *testing.T) {
	s := NewStore(noopLogger())
	r := validRule()
	r.Threshold = decimal.NewFromInt(1)
	r.Owner = ""
	if _, err := s.Submit(r); err == nil {
		t.Fatal("invalid rule accepted")
	}
	if got := len(s.Snapshot()); got != 0 {
		t.Fatalf("rejected rule stored, snapshot size %d", got)
	}
}

func TestListOrdersBySymbolThenInsertion(t *testing.T) {
	s := NewStore(noopLogger())
	submit(t, s, "chat-1", "ETH/USDT")
	submit(t, s, "chat-1", "BTC/USDT")
	submit(t, s, "chat-1", "BTC/USDT")
	submit(t, s, "chat-2", "BTC/USDT")

	all := s.List("chat-1", "")
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	wantSymbols := []string{"BTC/USDT", "BTC/USDT", "ETH/USDT"}
	for i, want := range wantSymbols {
		if all[i].Symbol != want {
			t.Fatalf("all[%d].Symbol = %s, want %s", i, all[i].Symbol, want)
		}
	}

	btc := s.List("chat-1", "BTC/USDT")
	if len(btc) != 2 || btc[0].ID != 0 || btc[1].ID != 1 {
		t.Fatalf("unexpected BTC listing: %+v", btc)
	}

	if got := s.List("chat-1", "SOL/USDT"); got != nil {
		t.Fatalf("listing unknown symbol = %+v, want nil", got)
	}
}

func TestMarkFiredSetsTimestamp(t *testing.T) {
	s := NewStore(noopLogger())
	r := validRule()
	r.Cooldown = time.Hour
	id, err := s.Submit(r)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	firedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.MarkFired(r.Owner, r.Symbol, id, firedAt, false)

	got := s.List(r.Owner, r.Symbol)
	if len(got) != 1 {
		t.Fatalf("rule missing after MarkFired")
	}
	if got[0].LastFiredAt == nil || !got[0].LastFiredAt.Equal(firedAt) {
		t.Fatalf("LastFiredAt = %v, want %v", got[0].LastFiredAt, firedAt)
	}
}

func TestMarkFiredRetiresOneShot(t *testing.T) {
	s := NewStore(noopLogger())
	id := submit(t, s, "chat-1", "BTC/USDT")

	s.MarkFired("chat-1", "BTC/USDT", id, time.Now().UTC(), true)

	if got := s.List("chat-1", "BTC/USDT"); len(got) != 0 {
		t.Fatalf("one-shot rule still listed: %+v", got)
	}
	if got := len(s.Snapshot()); got != 0 {
		t.Fatalf("snapshot size = %d, want 0", got)
	}
}

func TestMarkFiredAfterCancelIsNoop(t *testing.T) {
	s := NewStore(noopLogger())
	id := submit(t, s, "chat-1", "BTC/USDT")
	if err := s.Cancel("chat-1", "BTC/USDT", id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	s.MarkFired("chat-1", "BTC/USDT", id, time.Now().UTC(), true)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	s := NewStore(noopLogger())
	submit(t, s, "chat-1", "BTC/USDT")

	snap := s.Snapshot()
	snap[0].Owner = "mutated"
	ts := time.Now().UTC()
	snap[0].LastFiredAt = &ts

	again := s.Snapshot()
	if again[0].Owner != "chat-1" || again[0].LastFiredAt != nil {
		t.Fatal("snapshot aliases internal state")
	}
}
