package mint

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nvh2205/poly-ab-sub001/internal/crypto"
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeBus struct {
	mu     sync.Mutex
	stream []domain.StreamMessage
	seq    int
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }
func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

func (b *fakeBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.stream = append(b.stream, domain.StreamMessage{ID: time.Now().Format(time.RFC3339Nano), Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.stream) == 0 {
		return nil, nil
	}
	out := b.stream
	b.stream = nil
	return out, nil
}

var _ domain.SignalBus = (*fakeBus)(nil)

type fakeLocks struct {
	mu    sync.Mutex
	held  map[string]time.Time
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

type fakeMarkets struct {
	byToken map[string]domain.Market
}

func (m *fakeMarkets) Set(ctx context.Context, market domain.Market) error { return nil }
func (m *fakeMarkets) Get(ctx context.Context, id string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (m *fakeMarkets) GetByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	mkt, ok := m.byToken[tokenID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mkt, nil
}
func (m *fakeMarkets) Invalidate(ctx context.Context, id string) error { return nil }

var _ domain.MarketCache = (*fakeMarkets)(nil)

type fakeInventory struct {
	mu      sync.Mutex
	credits []domain.MintEvent
}

func (f *fakeInventory) Available(ctx context.Context, _, _, _ string) (float64, error) { return 0, nil }
func (f *fakeInventory) Credit(_ context.Context, _, _, _ string, _ float64, event domain.MintEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, event)
	return nil
}
func (f *fakeInventory) Debit(ctx context.Context, _, _, _ string, _ float64) error  { return nil }
func (f *fakeInventory) Refund(ctx context.Context, _, _, _ string, _ float64) error { return nil }
func (f *fakeInventory) Reconcile(ctx context.Context, _, _, _ string, _ float64) error {
	return nil
}
func (f *fakeInventory) History(ctx context.Context, _, _ string, _ int) ([]domain.MintEvent, error) {
	return nil, nil
}

var _ domain.InventoryLedger = (*fakeInventory)(nil)

type fakeBalances struct {
	mu   sync.Mutex
	vals []float64 // successive CollateralBalance results, last one repeats
	idx  int
}

func (b *fakeBalances) CollateralBalance(ctx context.Context, _ string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.vals[b.idx]
	if b.idx < len(b.vals)-1 {
		b.idx++
	}
	return v, nil
}

type fakeChain struct {
	calls int
}

func (c *fakeChain) Submit(ctx context.Context, to common.Address, data []byte) (string, error) {
	c.calls++
	return "0xabc123", nil
}

type fakeSafeSigner struct{}

func (fakeSafeSigner) SignSafeTx(_ crypto.SafeTx, _ common.Address) (string, error) {
	return "0x" + "11" + stringRepeat("22", 64), nil
}

func stringRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

func testMarket() domain.Market {
	return domain.Market{
		ID:          "mkt-1",
		TokenIDs:    [2]string{"tok-yes", "tok-no"},
		ConditionID: "0x" + stringRepeat("ab", 32),
		NegRisk:     false,
	}
}

func TestScheduleDedupSuppressesSecondJobWithinWindow(t *testing.T) {
	bus := &fakeBus{}
	locks := newFakeLocks()
	m := New(DefaultConfig(), bus, locks, nil, nil, nil, nil, nil, testLogger())

	if err := m.Schedule(context.Background(), "group-1", "0xproxy", "tok-yes", 10); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	if err := m.Schedule(context.Background(), "group-1", "0xproxy", "tok-yes", 10); err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if len(bus.stream) != 1 {
		t.Fatalf("expected deduped job queue of length 1, got %d", len(bus.stream))
	}
}

func TestAttemptMintReserveGuardBlocksUnderfundedProxy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollateralTokenAddress = common.HexToAddress("0x1")
	cfg.CTFAddress = common.HexToAddress("0x2")
	cfg.SafeAddress = common.HexToAddress("0x3")

	markets := &fakeMarkets{byToken: map[string]domain.Market{"tok-yes": testMarket()}}
	inv := &fakeInventory{}
	balances := &fakeBalances{vals: []float64{100}} // size*6=120 > 100
	chainClient := &fakeChain{}
	m := New(cfg, nil, nil, markets, inv, balances, chainClient, fakeSafeSigner{}, testLogger())

	job := Job{AssetID: "tok-yes", GroupKey: "group-1", ProxyAddress: "0xproxy", Size: 20, CreatedAt: time.Now().UTC()}
	err := m.attempt(context.Background(), job)
	if err == nil {
		t.Fatal("expected liquidity reserve guard to reject the mint")
	}
	if chainClient.calls != 0 {
		t.Fatalf("expected no on-chain submission under the reserve guard, got %d calls", chainClient.calls)
	}
}

func TestAttemptProceedsOnceReserveSatisfied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollateralTokenAddress = common.HexToAddress("0x1")
	cfg.CTFAddress = common.HexToAddress("0x2")
	cfg.SafeAddress = common.HexToAddress("0x3")

	markets := &fakeMarkets{byToken: map[string]domain.Market{"tok-yes": testMarket()}}
	inv := &fakeInventory{}
	balances := &fakeBalances{vals: []float64{150}} // size*6=120 <= 150
	chainClient := &fakeChain{}
	m := New(cfg, nil, nil, markets, inv, balances, chainClient, fakeSafeSigner{}, testLogger())

	job := Job{AssetID: "tok-yes", GroupKey: "group-1", ProxyAddress: "0xproxy", Size: 20, CreatedAt: time.Now().UTC()}
	if err := m.attempt(context.Background(), job); err != nil {
		t.Fatalf("expected mint to succeed once reserve satisfied: %v", err)
	}
	if chainClient.calls != 1 {
		t.Fatalf("expected exactly one on-chain submission, got %d", chainClient.calls)
	}
	if len(inv.credits) != 2 {
		t.Fatalf("expected YES and NO inventory credits, got %d", len(inv.credits))
	}
}

func TestProcessRetriesAfterReserveGuardThenSucceeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollateralTokenAddress = common.HexToAddress("0x1")
	cfg.CTFAddress = common.HexToAddress("0x2")
	cfg.SafeAddress = common.HexToAddress("0x3")
	cfg.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	cfg.JobTimeout = time.Second

	markets := &fakeMarkets{byToken: map[string]domain.Market{"tok-yes": testMarket()}}
	inv := &fakeInventory{}
	balances := &fakeBalances{vals: []float64{100, 150}} // first attempt underfunded, second sufficient
	chainClient := &fakeChain{}
	m := New(cfg, nil, nil, markets, inv, balances, chainClient, fakeSafeSigner{}, testLogger())

	job := Job{AssetID: "tok-yes", GroupKey: "group-1", ProxyAddress: "0xproxy", Size: 20, CreatedAt: time.Now().UTC()}
	m.process(context.Background(), job)

	if chainClient.calls != 1 {
		t.Fatalf("expected the retried attempt to eventually submit on-chain, got %d calls", chainClient.calls)
	}
}
