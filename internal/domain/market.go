package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// MarketKind distinguishes a threshold market ("above X") from a bracket
// market ("between X and Y") within a trio group.
type MarketKind string

const (
	MarketKindThreshold MarketKind = "threshold"
	MarketKindBracket   MarketKind = "bracket"
)

// Market represents a Polymarket prediction market.
type Market struct {
	ID          string
	Question    string
	Slug        string
	Outcomes    [2]string    // e.g. ["Yes","No"] or ["Up","Down"]
	TokenIDs    [2]string    // ERC-1155 token IDs (76-digit strings); [0]=YES, [1]=NO
	ConditionID string
	NegRisk     bool
	Volume      float64
	Status      MarketStatus
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Structural fields used by the trio group builder. These are not
	// persisted by the catalogue store; they are derived at rebuild time
	// (from a catalogue-provided group key / numeric bounds, or parsed from
	// Slug when the catalogue lacks them) and held only for the lifetime of
	// a structure rebuild.
	GroupKey string
	Kind     MarketKind
	Lower    float64
	Upper    *float64 // nil for threshold markets
	EndDate  time.Time
}

// YesTokenID returns the token ID of the YES outcome.
func (m Market) YesTokenID() string { return m.TokenIDs[0] }

// NoTokenID returns the token ID of the NO outcome.
func (m Market) NoTokenID() string { return m.TokenIDs[1] }
