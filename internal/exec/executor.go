// Package exec transforms a detected, sized opportunity into a signed,
// batched order submission: the Guard -> Reserve -> Build -> Sign ->
// Authenticate -> Dispatch -> Settle state machine from the detector's
// downstream stage.
package exec

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/nvh2205/poly-ab-sub001/internal/crypto"
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/nvh2205/poly-ab-sub001/internal/ledger"
	"github.com/nvh2205/poly-ab-sub001/internal/platform/polymarket"
	"github.com/nvh2205/poly-ab-sub001/internal/sizer"
)

// OrderSigner is the subset of *crypto.Signer the executor depends on.
type OrderSigner interface {
	SignOrder(payload crypto.OrderPayload, exchangeAddress common.Address) (string, error)
	Address() common.Address
}

// OrderPoster is the subset of *polymarket.ClobClient the executor depends
// on, so tests can substitute a fake without a live CLOB connection.
type OrderPoster interface {
	PostOrders(ctx context.Context, entries []polymarket.OrderEntry) ([]domain.OrderResult, error)
}

// Config bundles the executor's addressing and timing knobs.
type Config struct {
	ProxyAddress           string
	ExchangeAddress        common.Address
	NegRiskExchangeAddress common.Address
	APIKey                 string
	OpportunityTimeoutMs   int64
	DispatchTimeout        time.Duration
}

// DispatchedOrder pairs an accepted order's ID with the leg and size it was
// built from, so a downstream listener (the position manager) can poll its
// fill status without re-deriving it from the batch.
type DispatchedOrder struct {
	OrderID string
	Leg     domain.OppLeg
	Size    float64
}

// Executor implements the single-writer order dispatch pipeline. Submit is
// synchronous through Reserve (so the caller learns immediately whether the
// opportunity was accepted) and fires the Build/Sign/Authenticate/Dispatch/
// Settle continuation in a goroutine, matching the fire-and-forget design:
// the caller never awaits settlement.
type Executor struct {
	cfg       Config
	cash      *ledger.CashLedger
	inventory domain.InventoryLedger
	signer    OrderSigner
	poster    OrderPoster
	logger    *slog.Logger

	// OnDispatched, if set, is called with every accepted order from a
	// settled batch. Wired by the engine to the position manager's
	// ScheduleBatch so reconciliation runs without the executor importing
	// the reconcile package directly.
	OnDispatched func(groupKey string, orders []DispatchedOrder)

	// executions, if set, persists a settlement record for every dispatched
	// batch so it survives process restarts and can later be archived.
	executions domain.ArbExecutionStore

	inFlight atomic.Bool
}

// New constructs an Executor.
func New(cfg Config, cash *ledger.CashLedger, inventory domain.InventoryLedger, signer OrderSigner, poster OrderPoster, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:       cfg,
		cash:      cash,
		inventory: inventory,
		signer:    signer,
		poster:    poster,
		logger:    logger,
	}
}

// SetExecutionStore wires a persistence backend for settled batches. Safe
// to call once after New, before the executor starts accepting Submits.
func (e *Executor) SetExecutionStore(store domain.ArbExecutionStore) {
	e.executions = store
}

// Submit attempts to execute opp at the given size. nowMs drives the
// staleness check against opp.TimestampMs. Returns false without mutating
// any ledger if the opportunity is stale, another submission is in flight,
// or cash/inventory cannot cover the reservation — in every such case the
// caller's job is done; nothing is queued for later.
func (e *Executor) Submit(ctx context.Context, opp domain.Opportunity, size float64, nowMs int64) bool {
	if nowMs-opp.TimestampMs > e.cfg.OpportunityTimeoutMs {
		e.logger.Debug("exec: stale opportunity skipped", slog.String("group", opp.GroupKey), slog.Int64("age_ms", nowMs-opp.TimestampMs))
		return false
	}
	if size < 1 {
		return false
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		e.logger.Debug("exec: dropped, another batch in flight", slog.String("group", opp.GroupKey))
		return false
	}

	requiredCash := sizer.RequiredCash(opp.Legs, size)
	tok, err := e.cash.Reserve(requiredCash)
	if err != nil {
		e.inFlight.Store(false)
		e.logger.Debug("exec: insufficient cash, skipped", slog.String("group", opp.GroupKey), slog.Float64("required", requiredCash))
		return false
	}

	debited, err := e.reserveInventory(ctx, opp, size)
	if err != nil {
		e.refundInventory(ctx, opp.GroupKey, debited, size)
		_ = e.cash.Refund(tok)
		e.inFlight.Store(false)
		e.logger.Debug("exec: insufficient inventory, skipped", slog.String("group", opp.GroupKey))
		return false
	}

	go e.dispatch(ctx, opp, size, tok, debited)
	return true
}

// reserveInventory debits inventory for every SELL leg, stopping and
// returning the set of legs already debited (for refund) on first failure.
func (e *Executor) reserveInventory(ctx context.Context, opp domain.Opportunity, size float64) ([]domain.OppLeg, error) {
	var debited []domain.OppLeg
	for _, l := range opp.Legs {
		if l.Side != domain.OrderSideSell {
			continue
		}
		if err := e.inventory.Debit(ctx, opp.GroupKey, e.cfg.ProxyAddress, l.TokenID, size); err != nil {
			return debited, err
		}
		debited = append(debited, l)
	}
	return debited, nil
}

func (e *Executor) refundInventory(ctx context.Context, groupKey string, legs []domain.OppLeg, size float64) {
	for _, l := range legs {
		_ = e.inventory.Refund(ctx, groupKey, e.cfg.ProxyAddress, l.TokenID, size)
	}
}

// dispatch runs Build -> Sign -> Authenticate -> Dispatch -> Settle. It is
// the continuation half of Submit's state machine and owns releasing the
// single-flight guard.
func (e *Executor) dispatch(ctx context.Context, opp domain.Opportunity, size float64, tok ledger.Reservation, debitedSells []domain.OppLeg) {
	defer e.inFlight.Store(false)

	dispatchCtx, cancel := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	defer cancel()

	entries, err := e.build(opp, size)
	if err != nil {
		e.logger.Warn("exec: build failed", slog.String("group", opp.GroupKey), slog.String("error", err.Error()))
		_ = e.cash.Refund(tok)
		e.refundInventory(ctx, opp.GroupKey, debitedSells, size)
		return
	}

	results, err := e.poster.PostOrders(dispatchCtx, entries)
	if err != nil {
		e.logger.Warn("exec: dispatch failed, refunding reservation",
			slog.String("group", opp.GroupKey), slog.String("error", err.Error()))
		_ = e.cash.Refund(tok)
		e.refundInventory(ctx, opp.GroupKey, debitedSells, size)
		return
	}

	accepted := 0
	var dispatched []DispatchedOrder
	for i, r := range results {
		if r.OrderID == "" {
			continue
		}
		accepted++
		if i < len(opp.Legs) {
			dispatched = append(dispatched, DispatchedOrder{OrderID: r.OrderID, Leg: opp.Legs[i], Size: size})
		}
	}
	if accepted == 0 {
		_ = e.cash.Refund(tok)
		e.refundInventory(ctx, opp.GroupKey, debitedSells, size)
		return
	}

	// Cash reservation is proportional to the whole batch; a partially
	// rejected batch still commits in full per spec's ValidationRejected
	// handling — the server accepted nothing for the rejected slot, but
	// refunding only that slot's share is left to the position manager's
	// compensating-order flow, not to this settle step.
	_ = e.cash.Commit(tok)

	e.logger.Info("exec: batch settled",
		slog.String("group", opp.GroupKey),
		slog.String("strategy", string(opp.Strategy)),
		slog.Int("accepted", accepted),
		slog.Int("total", len(entries)),
	)

	e.recordExecution(ctx, opp, dispatched, size, accepted == len(entries))

	if e.OnDispatched != nil && len(dispatched) > 0 {
		e.OnDispatched(opp.GroupKey, dispatched)
	}
}

// recordExecution persists a settlement record for the dispatched batch.
// fullyAccepted distinguishes a clean fill from one the position manager
// will still need to reconcile; recordExecution never blocks Submit's
// caller since it always runs from the dispatch goroutine.
func (e *Executor) recordExecution(ctx context.Context, opp domain.Opportunity, dispatched []DispatchedOrder, size float64, fullyAccepted bool) {
	if e.executions == nil || len(dispatched) == 0 {
		return
	}

	status := domain.ArbExecFilled
	if !fullyAccepted {
		status = domain.ArbExecPartial
	}

	legs := make([]domain.ArbLeg, len(dispatched))
	for i, d := range dispatched {
		legs[i] = domain.ArbLeg{
			OrderID:       d.OrderID,
			MarketID:      d.Leg.MarketID,
			TokenID:       d.Leg.TokenID,
			Side:          d.Leg.Side,
			ExpectedPrice: d.Leg.Price,
			Size:          d.Size,
			Status:        domain.OrderStatusMatched,
		}
	}

	exec := domain.ArbExecution{
		ID:           uuid.NewString(),
		ArbType:      domain.ArbType(opp.Strategy),
		LegGroupID:   opp.GroupKey,
		Legs:         legs,
		GrossEdgeBps: opp.ProfitBps,
		Status:       status,
		StartedAt:    time.UnixMilli(opp.TimestampMs),
	}
	if status == domain.ArbExecFilled {
		now := time.Now()
		exec.CompletedAt = &now
	}

	if err := e.executions.Create(ctx, exec); err != nil {
		e.logger.Warn("exec: record execution failed", slog.String("group", opp.GroupKey), slog.String("error", err.Error()))
	}
}

// build produces one signed order per leg.
func (e *Executor) build(opp domain.Opportunity, size float64) ([]polymarket.OrderEntry, error) {
	entries := make([]polymarket.OrderEntry, 0, len(opp.Legs))
	for _, leg := range opp.Legs {
		order, err := e.buildOrder(leg, size)
		if err != nil {
			return nil, err
		}
		entries = append(entries, polymarket.OrderEntry{
			Order:     order,
			Owner:     e.cfg.APIKey,
			OrderType: domain.OrderTypeFAK,
		})
	}
	return entries, nil
}

func (e *Executor) buildOrder(leg domain.OppLeg, size float64) (domain.Order, error) {
	salt, err := randomSalt()
	if err != nil {
		return domain.Order{}, fmt.Errorf("exec: salt: %w", err)
	}

	shareUnits := new(big.Int).SetInt64(int64(sizer.QuantizeShares(size) * 1e6))
	collateralUnits := new(big.Int).SetInt64(int64(sizer.QuantizeCollateral(leg.Price*size) * 1e6))

	var makerAmount, takerAmount *big.Int
	var sideInt int
	switch leg.Side {
	case domain.OrderSideBuy:
		makerAmount, takerAmount = collateralUnits, shareUnits
		sideInt = 0
	case domain.OrderSideSell:
		makerAmount, takerAmount = shareUnits, collateralUnits
		sideInt = 1
	default:
		return domain.Order{}, fmt.Errorf("exec: unknown side %q", leg.Side)
	}

	exchangeAddr := e.cfg.ExchangeAddress
	if leg.NegRisk {
		exchangeAddr = e.cfg.NegRiskExchangeAddress
	}

	payload := crypto.OrderPayload{
		Salt:          salt.String(),
		Maker:         e.cfg.ProxyAddress,
		Signer:        e.signer.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       leg.TokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideInt,
		SignatureType: int(domain.SignatureTypeGnosisSafe),
	}

	sig, err := e.signer.SignOrder(payload, exchangeAddr)
	if err != nil {
		return domain.Order{}, fmt.Errorf("exec: sign order for token %s: %w", leg.TokenID, err)
	}

	return domain.Order{
		MarketID:      leg.MarketID,
		TokenID:       leg.TokenID,
		Wallet:        e.cfg.ProxyAddress,
		Side:          leg.Side,
		Type:          domain.OrderTypeFAK,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Status:        domain.OrderStatusPending,
		Signature:     sig,
		CreatedAt:     time.Now().UTC(),
		Salt:          payload.Salt,
		Maker:         payload.Maker,
		SignerAddr:    payload.Signer,
		Taker:         payload.Taker,
		Expiration:    payload.Expiration,
		Nonce:         payload.Nonce,
		FeeRateBps:    payload.FeeRateBps,
		SignatureType: domain.SignatureTypeGnosisSafe,
		NegRisk:       leg.NegRisk,
	}, nil
}

func randomSalt() (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return rand.Int(rand.Reader, max)
}

// InFlight reports whether a batch is currently being dispatched.
func (e *Executor) InFlight() bool {
	return e.inFlight.Load()
}

// BuildSignedOrder builds and signs a single order for leg at size, using
// leg.Price as the limit price. Exported so the position manager's
// compensating-order path can reuse the same signing machinery with an
// aggressive override price, without duplicating the maker/taker/EIP-712
// assembly logic.
func (e *Executor) BuildSignedOrder(leg domain.OppLeg, size float64) (domain.Order, error) {
	return e.buildOrder(leg, size)
}
