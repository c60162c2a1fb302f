package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/nvh2205/poly-ab-sub001/internal/platform/polymarket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: make(map[string]time.Time)} }

func (l *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, ok := l.held[key]; ok && time.Now().Before(exp) {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = time.Now().Add(ttl)
	return func() {}, nil
}

var _ domain.LockManager = (*fakeLocks)(nil)

type orderFixture struct {
	order    domain.Order
	tradeIDs []string
	err      error
}

type fakeStatus struct {
	byOrderID    map[string]orderFixture
	tradeStatus  map[string]polymarket.TradeStatus
}

func (f *fakeStatus) GetOrderTrades(ctx context.Context, orderID string) (domain.Order, []string, error) {
	fx, ok := f.byOrderID[orderID]
	if !ok {
		return domain.Order{}, nil, domain.ErrNotFound
	}
	return fx.order, fx.tradeIDs, fx.err
}

func (f *fakeStatus) GetTradeStatus(ctx context.Context, tradeID string) (polymarket.TradeStatus, error) {
	return f.tradeStatus[tradeID], nil
}

type fakeBuilder struct {
	mu    sync.Mutex
	calls []domain.OppLeg
	sizes []float64
}

func (b *fakeBuilder) BuildSignedOrder(leg domain.OppLeg, size float64) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, leg)
	b.sizes = append(b.sizes, size)
	return domain.Order{TokenID: leg.TokenID, Side: leg.Side, Signature: "0xsig"}, nil
}

type fakePoster struct {
	mu      sync.Mutex
	batches [][]polymarket.OrderEntry
}

func (p *fakePoster) PostOrders(ctx context.Context, entries []polymarket.OrderEntry) ([]domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, entries)
	results := make([]domain.OrderResult, len(entries))
	for i := range entries {
		results[i] = domain.OrderResult{Success: true, OrderID: "comp-" + entries[i].Order.TokenID}
	}
	return results, nil
}

func orderWithSizes(status domain.OrderStatus, original, matched float64) domain.Order {
	return domain.Order{
		Status:     status,
		SizeUnits:  int64(original * 1e6),
		FilledSize: matched,
	}
}

// TestScenarioPartialFillSubmitsSingleAggressiveRemainder covers spec §8
// scenario 5: a batch of three size-30 orders where one partially fills
// (18 of 30); the manager submits exactly one compensating order sized to
// the 12-unit remainder at the aggressive BUY price.
func TestScenarioPartialFillSubmitsSingleAggressiveRemainder(t *testing.T) {
	status := &fakeStatus{byOrderID: map[string]orderFixture{
		"order-A": {order: orderWithSizes(domain.OrderStatusMatched, 30, 30)},
		"order-B": {order: orderWithSizes(domain.OrderStatusMatched, 30, 30)},
		"order-C": {order: orderWithSizes(domain.OrderStatusMatched, 30, 18)},
	}}
	builder := &fakeBuilder{}
	poster := &fakePoster{}
	m := New(status, builder, poster, newFakeLocks(), testLogger())

	batch := []SubmittedOrder{
		{OrderID: "order-A", Leg: domain.OppLeg{TokenID: "tok-A", Side: domain.OrderSideBuy, Price: 0.60}, Size: 30},
		{OrderID: "order-B", Leg: domain.OppLeg{TokenID: "tok-B", Side: domain.OrderSideBuy, Price: 0.58}, Size: 30},
		{OrderID: "order-C", Leg: domain.OppLeg{TokenID: "tok-C", Side: domain.OrderSideBuy, Price: 0.70}, Size: 30},
	}

	m.Reconcile(context.Background(), batch)

	if len(builder.calls) != 1 {
		t.Fatalf("expected exactly one compensating leg built, got %d", len(builder.calls))
	}
	if builder.calls[0].TokenID != "tok-C" {
		t.Fatalf("expected compensating leg for tok-C, got %s", builder.calls[0].TokenID)
	}
	if builder.calls[0].Price != aggressiveBuyPrice {
		t.Fatalf("expected aggressive BUY price %v, got %v", aggressiveBuyPrice, builder.calls[0].Price)
	}
	if builder.sizes[0] != 12 {
		t.Fatalf("expected remainder size 12, got %v", builder.sizes[0])
	}
	if len(poster.batches) != 1 || len(poster.batches[0]) != 1 {
		t.Fatalf("expected exactly one follow-up batch with one entry, got %d batches", len(poster.batches))
	}
}

func TestTerminalSuccessProducesNoCompensatingOrder(t *testing.T) {
	status := &fakeStatus{byOrderID: map[string]orderFixture{
		"order-A": {order: orderWithSizes(domain.OrderStatusMatched, 30, 30)},
	}}
	builder := &fakeBuilder{}
	poster := &fakePoster{}
	m := New(status, builder, poster, newFakeLocks(), testLogger())

	m.Reconcile(context.Background(), []SubmittedOrder{
		{OrderID: "order-A", Leg: domain.OppLeg{TokenID: "tok-A", Side: domain.OrderSideBuy}, Size: 30},
	})

	if len(builder.calls) != 0 {
		t.Fatalf("expected no compensating orders for a fully matched order, got %d", len(builder.calls))
	}
}

func TestRevertedTradeResubmitsOriginalLeg(t *testing.T) {
	status := &fakeStatus{
		byOrderID: map[string]orderFixture{
			"order-A": {order: orderWithSizes(domain.OrderStatusMatched, 30, 30), tradeIDs: []string{"trade-1"}},
		},
		tradeStatus: map[string]polymarket.TradeStatus{"trade-1": polymarket.TradeStatusFailed},
	}
	builder := &fakeBuilder{}
	poster := &fakePoster{}
	m := New(status, builder, poster, newFakeLocks(), testLogger())

	m.Reconcile(context.Background(), []SubmittedOrder{
		{OrderID: "order-A", Leg: domain.OppLeg{TokenID: "tok-A", Side: domain.OrderSideSell, Price: 0.40}, Size: 30},
	})

	if len(builder.calls) != 1 {
		t.Fatalf("expected one resubmission of the reverted leg, got %d", len(builder.calls))
	}
	if builder.calls[0].Price != 0.40 {
		t.Fatalf("expected original price preserved on resubmit, got %v", builder.calls[0].Price)
	}
	if builder.sizes[0] != 30 {
		t.Fatalf("expected original size preserved on resubmit, got %v", builder.sizes[0])
	}
}

func TestDedupSuppressesSecondReconcileWithinWindow(t *testing.T) {
	status := &fakeStatus{byOrderID: map[string]orderFixture{
		"order-A": {order: orderWithSizes(domain.OrderStatusMatched, 30, 18)},
	}}
	builder := &fakeBuilder{}
	poster := &fakePoster{}
	locks := newFakeLocks()
	m := New(status, builder, poster, locks, testLogger())

	batch := []SubmittedOrder{{OrderID: "order-A", Leg: domain.OppLeg{TokenID: "tok-A", Side: domain.OrderSideBuy}, Size: 30}}
	m.Reconcile(context.Background(), batch)
	m.Reconcile(context.Background(), batch)

	if len(builder.calls) != 1 {
		t.Fatalf("expected dedup to suppress the second reconcile pass, got %d calls", len(builder.calls))
	}
}
