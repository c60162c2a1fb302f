package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
	"github.com/nvh2205/poly-ab-sub001/internal/trio"
)

// topOfBookEvent is the JSON shape published to "prices" for a top-of-book
// tick, the same wire shape priceEvent decodes, trimmed to the fields the
// trio engine's hot path consumes.
type topOfBookEvent struct {
	Event       string  `json:"event"`
	AssetID     string  `json:"asset_id"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	BestBidSize float64 `json:"best_bid_size"`
	BestAskSize float64 `json:"best_ask_size"`
	Timestamp   string  `json:"timestamp"`
}

// OpportunityHandler receives every opportunity the trio engine emits.
type OpportunityHandler func(ctx context.Context, opp domain.Opportunity)

// TrioFeeder subscribes to the "prices" Redis channel and drives the trio
// engine's OnTopOfBook hot path, forwarding any emitted opportunities to
// onOpportunity. Grounded on EngineFeeder's subscribe-decode-dispatch shape.
type TrioFeeder struct {
	bus          domain.SignalBus
	engine       *trio.Engine
	onOpportunity OpportunityHandler
	logger       *slog.Logger
}

// NewTrioFeeder constructs a TrioFeeder.
func NewTrioFeeder(bus domain.SignalBus, engine *trio.Engine, onOpportunity OpportunityHandler, logger *slog.Logger) *TrioFeeder {
	return &TrioFeeder{
		bus:           bus,
		engine:        engine,
		onOpportunity: onOpportunity,
		logger:        logger.With(slog.String("component", "trio_feeder")),
	}
}

// Run subscribes to "prices" and feeds every decodable top-of-book tick into
// the engine until ctx is cancelled or the subscription channel closes.
func (f *TrioFeeder) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, "prices")
	if err != nil {
		return err
	}
	f.logger.Info("trio feeder started")
	defer f.logger.Info("trio feeder stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			f.handleMessage(ctx, data)
		}
	}
}

func (f *TrioFeeder) handleMessage(ctx context.Context, data []byte) {
	var ev topOfBookEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return
	}
	assetID := strings.TrimSpace(ev.AssetID)
	if assetID == "" || ev.BestBid == 0 || ev.BestAsk == 0 {
		return
	}

	nowMs := time.Now().UnixMilli()
	ts := nowMs
	if ev.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, ev.Timestamp); err == nil {
			ts = t.UnixMilli()
		}
	}

	update := domain.TopOfBookUpdate{
		AssetID:     assetID,
		BestBid:     ev.BestBid,
		BestAsk:     ev.BestAsk,
		BestBidSize: ev.BestBidSize,
		BestAskSize: ev.BestAskSize,
		TimestampMs: ts,
	}

	opps := f.engine.OnTopOfBook(update, nowMs)
	for _, o := range opps {
		f.onOpportunity(ctx, o)
	}
}
