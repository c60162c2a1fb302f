// Package reconcile implements the position manager: it polls each
// submitted order's status a few seconds after dispatch, classifies the
// outcome, and coalesces any compensating legs into one follow-up batch.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/nvh2205/poly-ab-sub001/internal/platform/polymarket"
)

const (
	pollDelay    = 3 * time.Second
	dedupWindow  = 60 * time.Second
	aggressiveBuyPrice  = 0.999
	aggressiveSellPrice = 0.001
)

// StatusReader is the subset of *polymarket.ClobClient the manager needs to
// classify a submitted order's outcome.
type StatusReader interface {
	GetOrderTrades(ctx context.Context, orderID string) (domain.Order, []string, error)
	GetTradeStatus(ctx context.Context, tradeID string) (polymarket.TradeStatus, error)
}

// OrderBuilder signs a replacement leg. Satisfied by *exec.Executor.
type OrderBuilder interface {
	BuildSignedOrder(leg domain.OppLeg, size float64) (domain.Order, error)
}

// OrderPoster dispatches a batch of already-signed orders.
type OrderPoster interface {
	PostOrders(ctx context.Context, entries []polymarket.OrderEntry) ([]domain.OrderResult, error)
}

// SubmittedOrder pairs a dispatched order ID with the leg it was built
// from, so the manager can classify its outcome and, if needed, build a
// same-shaped replacement.
type SubmittedOrder struct {
	OrderID string
	Leg     domain.OppLeg
	Size    float64
}

// Manager is the position reconciliation worker.
type Manager struct {
	status  StatusReader
	builder OrderBuilder
	poster  OrderPoster
	locks   domain.LockManager
	logger  *slog.Logger
}

// New constructs a Manager.
func New(status StatusReader, builder OrderBuilder, poster OrderPoster, locks domain.LockManager, logger *slog.Logger) *Manager {
	return &Manager{
		status:  status,
		builder: builder,
		poster:  poster,
		locks:   locks,
		logger:  logger.With(slog.String("component", "reconcile")),
	}
}

// ScheduleBatch waits pollDelay then reconciles every order in the batch.
// Intended to be called with `go` immediately after a batch dispatch
// settles; it never blocks the caller.
func (m *Manager) ScheduleBatch(ctx context.Context, batch []SubmittedOrder) {
	select {
	case <-time.After(pollDelay):
	case <-ctx.Done():
		return
	}
	m.Reconcile(ctx, batch)
}

// Reconcile polls each order in batch, classifies its outcome, and submits
// any resulting compensating legs as a single follow-up batch.
func (m *Manager) Reconcile(ctx context.Context, batch []SubmittedOrder) {
	var compensating []domain.OppLeg
	var sizes []float64

	for _, so := range batch {
		if so.OrderID == "" {
			continue
		}
		unlock, err := m.locks.Acquire(ctx, "reconcile:"+so.OrderID, dedupWindow)
		if err != nil {
			if err == domain.ErrLockHeld {
				m.logger.Debug("reconcile: order already scheduled this window", slog.String("order_id", so.OrderID))
				continue
			}
			m.logger.Warn("reconcile: dedup lock failed", slog.String("order_id", so.OrderID), slog.String("error", err.Error()))
			continue
		}
		_ = unlock

		leg, size, ok := m.classify(ctx, so)
		if !ok {
			continue
		}
		compensating = append(compensating, leg)
		sizes = append(sizes, size)
	}

	if len(compensating) == 0 {
		return
	}

	m.dispatchCompensating(ctx, compensating, sizes)
}

// classify fetches an order's fill status and trade outcomes, returning the
// compensating leg to submit (if any) and whether one was produced.
func (m *Manager) classify(ctx context.Context, so SubmittedOrder) (domain.OppLeg, float64, bool) {
	order, tradeIDs, err := m.status.GetOrderTrades(ctx, so.OrderID)
	if err != nil {
		m.logger.Warn("reconcile: status poll failed", slog.String("order_id", so.OrderID), slog.String("error", err.Error()))
		return domain.OppLeg{}, 0, false
	}

	originalSize := order.Size()
	if originalSize == 0 {
		originalSize = so.Size
	}

	switch {
	case order.Status == domain.OrderStatusMatched && originalSize > order.FilledSize:
		remainder := originalSize - order.FilledSize
		leg := so.Leg
		leg.Price = aggressivePrice(so.Leg.Side)
		m.logger.Info("reconcile: partial fill, submitting aggressive remainder",
			slog.String("order_id", so.OrderID), slog.Float64("remainder", remainder))
		return leg, remainder, true

	case order.Status == domain.OrderStatusMatched && order.FilledSize >= originalSize && m.anyTradeFailed(ctx, tradeIDs):
		m.logger.Info("reconcile: fill reverted on-chain, resubmitting original leg",
			slog.String("order_id", so.OrderID))
		return so.Leg, so.Size, true

	default:
		return domain.OppLeg{}, 0, false
	}
}

func (m *Manager) anyTradeFailed(ctx context.Context, tradeIDs []string) bool {
	for _, id := range tradeIDs {
		status, err := m.status.GetTradeStatus(ctx, id)
		if err != nil {
			continue
		}
		if status == polymarket.TradeStatusFailed {
			return true
		}
	}
	return false
}

func aggressivePrice(side domain.OrderSide) float64 {
	if side == domain.OrderSideSell {
		return aggressiveSellPrice
	}
	return aggressiveBuyPrice
}

func (m *Manager) dispatchCompensating(ctx context.Context, legs []domain.OppLeg, sizes []float64) {
	entries := make([]polymarket.OrderEntry, 0, len(legs))
	for i, leg := range legs {
		order, err := m.builder.BuildSignedOrder(leg, sizes[i])
		if err != nil {
			m.logger.Error("reconcile: build compensating order failed",
				slog.String("token_id", leg.TokenID), slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, polymarket.OrderEntry{
			Order:     order,
			OrderType: domain.OrderTypeFAK,
		})
	}
	if len(entries) == 0 {
		return
	}

	results, err := m.poster.PostOrders(ctx, entries)
	if err != nil {
		m.logger.Error("reconcile: compensating batch dispatch failed", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("reconcile: compensating batch submitted", slog.Int("entries", len(entries)), slog.Int("results", len(results)))
}
