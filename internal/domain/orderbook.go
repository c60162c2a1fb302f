package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids and asks for an asset.
type OrderbookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	MidPrice  float64
	Timestamp time.Time
}

// PriceChange is an incremental orderbook level update.
type PriceChange struct {
	AssetID   string
	Side      string // "BUY" or "SELL"
	Price     float64
	Size      float64 // 0 means remove level
	Timestamp time.Time
}

// LastTradePrice is the most recent trade execution for an asset.
type LastTradePrice struct {
	AssetID   string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// PriceSnapshot bundles current price data for strategy evaluation.
type PriceSnapshot struct {
	AssetID  string
	BestBid  float64
	BestAsk  float64
	MidPrice float64
	Spread   float64
	Time     time.Time
}

// TopOfBookUpdate is an inbound top-of-book event from the external
// subscription feed. Nil size fields mean the feed did not report depth.
type TopOfBookUpdate struct {
	AssetID     string
	BestBid     float64
	BestAsk     float64
	BestBidSize float64
	BestAskSize float64
	TimestampMs int64
}

// LegSnapshot is the cached, monotone-in-time state of one leg of a trio or
// range group. Null bid/ask are represented by nil pointers and block
// profit evaluation for the affected leg.
type LegSnapshot struct {
	AssetID     string
	BestBid     *float64
	BestAsk     *float64
	BestBidSize *float64
	BestAskSize *float64
	TimestampMs int64
}

// Empty reports whether the leg has never been populated.
func (l LegSnapshot) Empty() bool { return l.TimestampMs == 0 }

// Stale reports whether the leg's timestamp is older than the configured
// staleness window relative to nowMs.
func (l LegSnapshot) Stale(nowMs int64, stalenessMs int64) bool {
	if l.Empty() {
		return true
	}
	return nowMs-l.TimestampMs > stalenessMs
}
