// Package ledger implements the process-local optimistic cash accounting
// used by the executor: a balance is reserved before a signed order batch
// is dispatched, then committed on success or refunded on failure, so the
// balance never drifts ahead of what the exchange has actually accepted.
package ledger

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// Reservation is the opaque token returned by Reserve; it must be passed to
// exactly one of Commit or Refund.
type Reservation string

type entry struct {
	amount float64
}

// CashLedger tracks a single process-local USDC balance, refreshed
// periodically from an on-chain read and debited/credited optimistically
// around each order dispatch. Reserve/Commit/Refund model the source's
// debit-before-await, credit-on-failure pattern explicitly, so an in-flight
// reservation is always traceable to the call that made it.
type CashLedger struct {
	mu      sync.Mutex
	balance float64
	holds   map[Reservation]entry
}

// NewCashLedger creates a CashLedger starting at the given balance.
func NewCashLedger(initial float64) *CashLedger {
	return &CashLedger{
		balance: initial,
		holds:   make(map[Reservation]entry),
	}
}

// Balance returns the current available balance (excluding any amount
// already moved into a hold awaiting commit/refund).
func (l *CashLedger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Reserve debits amount from the balance and returns a token identifying
// the hold. Returns domain.ErrInsufficientCash without mutating state if
// amount exceeds the available balance.
func (l *CashLedger) Reserve(amount float64) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount > l.balance {
		return "", domain.ErrInsufficientCash
	}
	l.balance -= amount
	tok := Reservation(uuid.New().String())
	l.holds[tok] = entry{amount: amount}
	return tok, nil
}

// Commit finalizes a hold: the reserved amount was genuinely spent and
// stays debited. It is an error to Commit a token twice or one that was
// never returned by Reserve; callers that do so get domain.ErrNotFound.
func (l *CashLedger) Commit(tok Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.holds[tok]; !ok {
		return domain.ErrNotFound
	}
	delete(l.holds, tok)
	return nil
}

// Refund reverses a hold, crediting the reserved amount back to the
// balance. Used when a dispatch fails after cash was already reserved.
func (l *CashLedger) Refund(tok Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.holds[tok]
	if !ok {
		return domain.ErrNotFound
	}
	l.balance += e.amount
	delete(l.holds, tok)
	return nil
}

// SetBalance overwrites the balance with an authoritative on-chain read.
// Used by the periodic balance refresher; it does not affect outstanding
// holds, which settle independently via Commit/Refund.
func (l *CashLedger) SetBalance(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = v
}

// InFlight reports whether any reservation is currently outstanding.
func (l *CashLedger) InFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holds) > 0
}
