package trio

import (
	"sync"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// Thresholds bundles the hot path's emission gates. Fields are copied by
// value into Engine at construction; callers that want live reconfiguration
// should reconstruct the Engine.
type Thresholds struct {
	MinProfitAbs   float64
	MinProfitBps   float64
	CooldownMs     int64
	StalenessMs    int64
	SellArbEnabled bool
}

// Engine is the opportunity detector's hot path: a single hold-everything
// struct wrapping a structure Index, a dirty-check cache keyed by asset, and
// a cooldown gate. OnTopOfBook is its sole entry point and is safe for
// concurrent use from multiple feed readers, though in practice a single
// feed goroutine calls it serially.
type Engine struct {
	index      *Index
	cooldown   *Cooldown
	thresholds Thresholds

	mu       sync.Mutex
	lastSeen map[string]domain.LegSnapshot // assetId -> last accepted snapshot
}

// NewEngine constructs an Engine over an already-built Index.
func NewEngine(index *Index, t Thresholds) *Engine {
	return &Engine{
		index:      index,
		cooldown:   NewCooldown(t.CooldownMs),
		thresholds: t,
		lastSeen:   make(map[string]domain.LegSnapshot),
	}
}

// OnTopOfBook is the detector's single entry point. It applies the
// precondition checks in order (zero-price rejection, monotone-timestamp /
// dirty-check rejection), updates the structure index, then runs the
// Triangle and Range evaluators over every trio/range group the asset
// touched. nowMs drives staleness and cooldown and must be supplied by the
// caller so the hot path has no hidden wall-clock dependency.
func (e *Engine) OnTopOfBook(update domain.TopOfBookUpdate, nowMs int64) []domain.Opportunity {
	if update.BestBid == 0 || update.BestAsk == 0 {
		return nil
	}

	bid, ask := update.BestBid, update.BestAsk
	bidSize, askSize := update.BestBidSize, update.BestAskSize
	next := domain.LegSnapshot{
		AssetID:     update.AssetID,
		BestBid:     &bid,
		BestAsk:     &ask,
		BestBidSize: &bidSize,
		BestAskSize: &askSize,
		TimestampMs: update.TimestampMs,
	}

	e.mu.Lock()
	prev, ok := e.lastSeen[update.AssetID]
	if ok {
		if prev.TimestampMs >= update.TimestampMs {
			e.mu.Unlock()
			return nil
		}
		if prev.BestBid != nil && prev.BestAsk != nil && *prev.BestBid == bid && *prev.BestAsk == ask {
			e.mu.Unlock()
			return nil
		}
	}
	e.lastSeen[update.AssetID] = next
	e.mu.Unlock()

	touched := e.index.ApplyUpdate(update.AssetID, next)
	if len(touched) == 0 {
		return nil
	}

	var opps []domain.Opportunity
	for _, t := range touched {
		switch {
		case t.Trio != nil:
			if o, ok := e.evalTriangle(*t.Trio, nowMs); ok {
				opps = append(opps, o)
			}
		case t.RangeGroup != nil:
			if o, ok := e.evalRange(*t.RangeGroup, nowMs); ok {
				opps = append(opps, o)
			}
		}
	}
	return opps
}

func (e *Engine) evalTriangle(t Trio, nowMs int64) (domain.Opportunity, bool) {
	if legStale(t.LowerYes, nowMs, e.thresholds.StalenessMs) ||
		legStale(t.UpperNo, nowMs, e.thresholds.StalenessMs) ||
		legStale(t.RangeNo, nowMs, e.thresholds.StalenessMs) {
		return domain.Opportunity{}, false
	}

	askSum := *t.LowerYes.BestAsk + *t.UpperNo.BestAsk + *t.RangeNo.BestAsk
	bidSum := *t.LowerYes.BestBid + *t.UpperNo.BestBid + *t.RangeNo.BestBid
	const payout = 2.0

	profitBuy := payout - askSum
	bpsBuy := bps(profitBuy, askSum)
	if qualifies(profitBuy, bpsBuy, e.thresholds) {
		if o, ok := e.emit(domain.OppTriangleBuy, t.GroupKey, nowMs, profitBuy, bpsBuy, []domain.OppLeg{
			buyLeg(t.LowerYesMarket, t.LowerYesToken, *t.LowerYes.BestAsk, *t.LowerYes.BestAskSize),
			buyLeg(t.UpperNoMarket, t.UpperNoToken, *t.UpperNo.BestAsk, *t.UpperNo.BestAskSize),
			buyLeg(t.RangeNoMarket, t.RangeNoToken, *t.RangeNo.BestAsk, *t.RangeNo.BestAskSize),
		}); ok {
			return o, true
		}
		// Cooled down: buy still takes precedence over sell per the tie-break
		// rule, so do not fall through to the sell branch.
		return domain.Opportunity{}, false
	}

	if !e.thresholds.SellArbEnabled {
		return domain.Opportunity{}, false
	}
	profitSell := bidSum - payout
	bpsSell := bps(profitSell, payout)
	if qualifies(profitSell, bpsSell, e.thresholds) {
		return e.emit(domain.OppTriangleSell, t.GroupKey, nowMs, profitSell, bpsSell, []domain.OppLeg{
			sellLeg(t.LowerYesMarket, t.LowerYesToken, *t.LowerYes.BestBid, *t.LowerYes.BestBidSize),
			sellLeg(t.UpperNoMarket, t.UpperNoToken, *t.UpperNo.BestBid, *t.UpperNo.BestBidSize),
			sellLeg(t.RangeNoMarket, t.RangeNoToken, *t.RangeNo.BestBid, *t.RangeNo.BestBidSize),
		})
	}
	return domain.Opportunity{}, false
}

func (e *Engine) evalRange(r RangeGroup, nowMs int64) (domain.Opportunity, bool) {
	if legStale(r.ParentLowerYes, nowMs, e.thresholds.StalenessMs) ||
		legStale(r.RangeYes, nowMs, e.thresholds.StalenessMs) ||
		legStale(r.ParentUpperYes, nowMs, e.thresholds.StalenessMs) {
		return domain.Opportunity{}, false
	}

	unbundle := *r.ParentLowerYes.BestBid - (*r.RangeYes.BestAsk + *r.ParentUpperYes.BestAsk)
	bpsUnbundle := bps(unbundle, *r.RangeYes.BestAsk+*r.ParentUpperYes.BestAsk)
	if qualifies(unbundle, bpsUnbundle, e.thresholds) {
		if o, ok := e.emit(domain.OppRangeUnbundle, r.GroupKey, nowMs, unbundle, bpsUnbundle, []domain.OppLeg{
			sellLeg(r.ParentLowerYesMarket, r.ParentLowerYesToken, *r.ParentLowerYes.BestBid, *r.ParentLowerYes.BestBidSize),
			buyLeg(r.RangeYesMarket, r.RangeYesToken, *r.RangeYes.BestAsk, *r.RangeYes.BestAskSize),
			buyLeg(r.ParentUpperYesMarket, r.ParentUpperYesToken, *r.ParentUpperYes.BestAsk, *r.ParentUpperYes.BestAskSize),
		}); ok {
			return o, true
		}
		return domain.Opportunity{}, false
	}

	bundle := (*r.RangeYes.BestBid + *r.ParentUpperYes.BestBid) - *r.ParentLowerYes.BestAsk
	bpsBundle := bps(bundle, *r.ParentLowerYes.BestAsk)
	if qualifies(bundle, bpsBundle, e.thresholds) {
		return e.emit(domain.OppRangeBundle, r.GroupKey, nowMs, bundle, bpsBundle, []domain.OppLeg{
			buyLeg(r.ParentLowerYesMarket, r.ParentLowerYesToken, *r.ParentLowerYes.BestAsk, *r.ParentLowerYes.BestAskSize),
			sellLeg(r.RangeYesMarket, r.RangeYesToken, *r.RangeYes.BestBid, *r.RangeYes.BestBidSize),
			sellLeg(r.ParentUpperYesMarket, r.ParentUpperYesToken, *r.ParentUpperYes.BestBid, *r.ParentUpperYes.BestBidSize),
		})
	}
	return domain.Opportunity{}, false
}

func (e *Engine) emit(strategy domain.OppStrategy, groupKey string, nowMs int64, profitAbs, profitBps float64, legs []domain.OppLeg) (domain.Opportunity, bool) {
	o := domain.Opportunity{
		GroupKey:    groupKey,
		Strategy:    strategy,
		Legs:        legs,
		ProfitAbs:   profitAbs,
		ProfitBps:   profitBps,
		TimestampMs: nowMs,
	}
	if !e.cooldown.Allow(o.EmitKey(), nowMs) {
		return domain.Opportunity{}, false
	}
	return o, true
}

func legStale(l domain.LegSnapshot, nowMs, stalenessMs int64) bool {
	if l.Empty() || l.BestBid == nil || l.BestAsk == nil || l.BestBidSize == nil || l.BestAskSize == nil {
		return true
	}
	return l.Stale(nowMs, stalenessMs)
}

func qualifies(profitAbs, profitBps float64, t Thresholds) bool {
	return profitAbs >= t.MinProfitAbs && profitBps >= t.MinProfitBps
}

func bps(profit, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (profit / base) * 10000
}

func buyLeg(m domain.Market, token string, price, size float64) domain.OppLeg {
	return domain.OppLeg{TokenID: token, Side: domain.OrderSideBuy, Price: price, BookSize: size, NegRisk: m.NegRisk, MarketID: m.ID}
}

func sellLeg(m domain.Market, token string, price, size float64) domain.OppLeg {
	return domain.OppLeg{TokenID: token, Side: domain.OrderSideSell, Price: price, BookSize: size, NegRisk: m.NegRisk, MarketID: m.ID}
}
