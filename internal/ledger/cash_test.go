package ledger

import (
	"errors"
	"testing"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

func TestReserveCommitDebitsPermanently(t *testing.T) {
	l := NewCashLedger(100)
	tok, err := l.Reserve(56.4)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if got := l.Balance(); got != 43.6 {
		t.Fatalf("expected balance 43.6 after reserve, got %v", got)
	}
	if err := l.Commit(tok); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := l.Balance(); got != 43.6 {
		t.Fatalf("commit must not change balance, got %v", got)
	}
}

func TestReserveRefundRestoresBalance(t *testing.T) {
	l := NewCashLedger(100)
	before := l.Balance()
	tok, err := l.Reserve(56.4)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Refund(tok); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if got := l.Balance(); got != before {
		t.Fatalf("refund round-trip broke: before=%v after=%v", before, got)
	}
}

func TestReserveInsufficientCash(t *testing.T) {
	l := NewCashLedger(10)
	_, err := l.Reserve(56.4)
	if !errors.Is(err, domain.ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if got := l.Balance(); got != 10 {
		t.Fatalf("failed reserve must not mutate balance, got %v", got)
	}
}

func TestCommitUnknownTokenFails(t *testing.T) {
	l := NewCashLedger(100)
	if err := l.Commit("bogus"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDoubleCommitFails(t *testing.T) {
	l := NewCashLedger(100)
	tok, _ := l.Reserve(10)
	if err := l.Commit(tok); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := l.Commit(tok); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected second commit to fail with ErrNotFound, got %v", err)
	}
}

func TestInFlightTracksOutstandingHolds(t *testing.T) {
	l := NewCashLedger(100)
	if l.InFlight() {
		t.Fatalf("expected no in-flight holds initially")
	}
	tok, _ := l.Reserve(10)
	if !l.InFlight() {
		t.Fatalf("expected in-flight hold after reserve")
	}
	_ = l.Commit(tok)
	if l.InFlight() {
		t.Fatalf("expected no in-flight holds after commit")
	}
}
