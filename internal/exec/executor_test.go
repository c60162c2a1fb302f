package exec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nvh2205/poly-ab-sub001/internal/crypto"
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/nvh2205/poly-ab-sub001/internal/ledger"
	"github.com/nvh2205/poly-ab-sub001/internal/platform/polymarket"
)

type fakeSigner struct {
	addr common.Address
}

func (f fakeSigner) SignOrder(_ crypto.OrderPayload, _ common.Address) (string, error) {
	return "0xdeadbeef", nil
}

func (f fakeSigner) Address() common.Address { return f.addr }

type fakeInventory struct {
	mu        sync.Mutex
	balances  map[string]float64
	debitErr  error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{balances: make(map[string]float64)}
}

func (f *fakeInventory) Available(_ context.Context, _, _, tokenID string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[tokenID], nil
}

func (f *fakeInventory) Credit(_ context.Context, _, _, tokenID string, amount float64, _ domain.MintEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[tokenID] += amount
	return nil
}

func (f *fakeInventory) Debit(_ context.Context, _, _, tokenID string, amount float64) error {
	if f.debitErr != nil {
		return f.debitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[tokenID] < amount {
		return domain.ErrInsufficientInventory
	}
	f.balances[tokenID] -= amount
	return nil
}

func (f *fakeInventory) Refund(_ context.Context, _, _, tokenID string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[tokenID] += amount
	return nil
}

func (f *fakeInventory) Reconcile(_ context.Context, _, _, tokenID string, actual float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[tokenID] = actual
	return nil
}

func (f *fakeInventory) History(_ context.Context, _, _, _ string, _ int) ([]domain.MintEvent, error) {
	return nil, nil
}

var _ domain.InventoryLedger = (*fakeInventory)(nil)

type fakePoster struct {
	mu       sync.Mutex
	calls    int
	results  []domain.OrderResult
	err      error
	delay    time.Duration
	lastLen  int
}

func (f *fakePoster) PostOrders(ctx context.Context, entries []polymarket.OrderEntry) ([]domain.OrderResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastLen = len(entries)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeExecStore struct {
	mu      sync.Mutex
	created []domain.ArbExecution
}

func (f *fakeExecStore) Create(_ context.Context, exec domain.ArbExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, exec)
	return nil
}

func (f *fakeExecStore) GetByID(_ context.Context, _ string) (domain.ArbExecution, error) {
	return domain.ArbExecution{}, nil
}

func (f *fakeExecStore) ListRecent(_ context.Context, _ int) ([]domain.ArbExecution, error) {
	return nil, nil
}

func (f *fakeExecStore) ListBefore(_ context.Context, _ time.Time) ([]domain.ArbExecution, error) {
	return nil, nil
}

func (f *fakeExecStore) SumPnL(_ context.Context, _ time.Time) (float64, error) {
	return 0, nil
}

func (f *fakeExecStore) SumPnLByType(_ context.Context, _ domain.ArbType, _ time.Time) (float64, error) {
	return 0, nil
}

func (f *fakeExecStore) snapshot() []domain.ArbExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ArbExecution, len(f.created))
	copy(out, f.created)
	return out
}

var _ domain.ArbExecutionStore = (*fakeExecStore)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOpportunity() domain.Opportunity {
	return domain.Opportunity{
		GroupKey: "group-1",
		Strategy: domain.OppTriangleBuy,
		Legs: []domain.OppLeg{
			{TokenID: "tok-lower-yes", Side: domain.OrderSideBuy, Price: 0.40, BookSize: 100},
			{TokenID: "tok-upper-no", Side: domain.OrderSideBuy, Price: 0.55, BookSize: 100},
		},
		TimestampMs: 1_000,
	}
}

func waitForSettle(e *Executor, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !e.InFlight() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func TestSubmitRejectsStaleOpportunity(t *testing.T) {
	cash := ledger.NewCashLedger(1000)
	inv := newFakeInventory()
	poster := &fakePoster{}
	e := New(Config{OpportunityTimeoutMs: 500, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := newTestOpportunity()
	ok := e.Submit(context.Background(), opp, 10, 10_000)
	if ok {
		t.Fatal("expected stale opportunity to be rejected")
	}
	if cash.Balance() != 1000 {
		t.Fatalf("balance should be untouched, got %v", cash.Balance())
	}
}

func TestSubmitGuardDropsConcurrentSubmission(t *testing.T) {
	cash := ledger.NewCashLedger(1000)
	inv := newFakeInventory()
	poster := &fakePoster{delay: 50 * time.Millisecond, results: []domain.OrderResult{{Success: true, OrderID: "o1"}, {Success: true, OrderID: "o2"}}}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := newTestOpportunity()
	if ok := e.Submit(context.Background(), opp, 10, 1_000); !ok {
		t.Fatal("expected first submit to be accepted")
	}
	if ok := e.Submit(context.Background(), opp, 10, 1_000); ok {
		t.Fatal("expected second concurrent submit to be dropped by the guard")
	}

	if !waitForSettle(e, time.Second) {
		t.Fatal("first dispatch never settled")
	}
}

func TestSubmitInsufficientCashSkipsWithoutMutation(t *testing.T) {
	cash := ledger.NewCashLedger(5) // far less than required
	inv := newFakeInventory()
	poster := &fakePoster{}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := newTestOpportunity()
	ok := e.Submit(context.Background(), opp, 10, 1_000)
	if ok {
		t.Fatal("expected submit to be rejected for insufficient cash")
	}
	if e.InFlight() {
		t.Fatal("guard must be released on reservation failure")
	}
	if cash.Balance() != 5 {
		t.Fatalf("balance should be untouched, got %v", cash.Balance())
	}
}

func TestDispatchFailureRefundsReservation(t *testing.T) {
	cash := ledger.NewCashLedger(100)
	inv := newFakeInventory()
	poster := &fakePoster{err: errors.New("post timed out")}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := newTestOpportunity()
	ok := e.Submit(context.Background(), opp, 10, 1_000)
	if !ok {
		t.Fatal("expected submit to be accepted (guard + reservation succeed synchronously)")
	}

	if !waitForSettle(e, time.Second) {
		t.Fatal("dispatch never settled")
	}
	if got := cash.Balance(); got != 100 {
		t.Fatalf("expected balance restored to 100 after dispatch failure, got %v", got)
	}
}

func TestDispatchSuccessCommitsReservation(t *testing.T) {
	cash := ledger.NewCashLedger(100)
	inv := newFakeInventory()
	poster := &fakePoster{results: []domain.OrderResult{{Success: true, OrderID: "o1"}, {Success: true, OrderID: "o2"}}}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := newTestOpportunity()
	if ok := e.Submit(context.Background(), opp, 10, 1_000); !ok {
		t.Fatal("expected submit to be accepted")
	}
	if !waitForSettle(e, time.Second) {
		t.Fatal("dispatch never settled")
	}
	if got := cash.Balance(); got >= 100 {
		t.Fatalf("expected reservation committed (balance reduced), got %v", got)
	}
	if poster.calls != 1 {
		t.Fatalf("expected exactly one PostOrders call, got %d", poster.calls)
	}
	if poster.lastLen != len(opp.Legs) {
		t.Fatalf("expected %d order entries, got %d", len(opp.Legs), poster.lastLen)
	}
}

func TestDispatchSuccessRecordsExecution(t *testing.T) {
	cash := ledger.NewCashLedger(100)
	inv := newFakeInventory()
	poster := &fakePoster{results: []domain.OrderResult{{Success: true, OrderID: "o1"}, {Success: true, OrderID: "o2"}}}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())
	store := &fakeExecStore{}
	e.SetExecutionStore(store)

	opp := newTestOpportunity()
	if ok := e.Submit(context.Background(), opp, 10, 1_000); !ok {
		t.Fatal("expected submit to be accepted")
	}
	if !waitForSettle(e, time.Second) {
		t.Fatal("dispatch never settled")
	}

	created := store.snapshot()
	if len(created) != 1 {
		t.Fatalf("expected one execution recorded, got %d", len(created))
	}
	rec := created[0]
	if rec.LegGroupID != opp.GroupKey {
		t.Fatalf("expected leg group %q, got %q", opp.GroupKey, rec.LegGroupID)
	}
	if rec.ArbType != domain.ArbType(opp.Strategy) {
		t.Fatalf("expected arb type %q, got %q", opp.Strategy, rec.ArbType)
	}
	if rec.Status != domain.ArbExecFilled {
		t.Fatalf("expected status filled, got %q", rec.Status)
	}
	if len(rec.Legs) != len(opp.Legs) {
		t.Fatalf("expected %d legs recorded, got %d", len(opp.Legs), len(rec.Legs))
	}
	if rec.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set for a filled execution")
	}
}

func TestSubmitInsufficientInventoryRefundsCashAndReleasesGuard(t *testing.T) {
	cash := ledger.NewCashLedger(1000)
	inv := newFakeInventory() // no inventory credited: any SELL leg debit fails
	poster := &fakePoster{}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := domain.Opportunity{
		GroupKey: "group-2",
		Strategy: domain.OppRangeUnbundle,
		Legs: []domain.OppLeg{
			{TokenID: "tok-range-no", Side: domain.OrderSideSell, Price: 0.10, BookSize: 50},
		},
		TimestampMs: 1_000,
	}

	ok := e.Submit(context.Background(), opp, 10, 1_000)
	if ok {
		t.Fatal("expected submit to be rejected for insufficient inventory")
	}
	if e.InFlight() {
		t.Fatal("guard must be released on inventory reservation failure")
	}
	if cash.Balance() != 1000 {
		t.Fatalf("cash reservation should have been refunded, got %v", cash.Balance())
	}
}

func TestSubmitBelowOneContractSkipped(t *testing.T) {
	cash := ledger.NewCashLedger(1000)
	inv := newFakeInventory()
	poster := &fakePoster{}
	e := New(Config{OpportunityTimeoutMs: 5000, DispatchTimeout: time.Second}, cash, inv, fakeSigner{}, poster, testLogger())

	opp := newTestOpportunity()
	if ok := e.Submit(context.Background(), opp, 0.4, 1_000); ok {
		t.Fatal("expected sub-one-contract size to be rejected before any reservation")
	}
}
