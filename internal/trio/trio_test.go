package trio

import (
	"testing"
	"time"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

func thresholdMarket(slug string, lower float64, yes, no string) domain.Market {
	return domain.Market{
		ID:       slug,
		Slug:     slug,
		Kind:     domain.MarketKindThreshold,
		Lower:    lower,
		TokenIDs: [2]string{yes, no},
		EndDate:  time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		GroupKey: "btc-2026-12-31",
	}
}

func bracketMarket(slug string, lower, upper float64, yes, no string) domain.Market {
	u := upper
	return domain.Market{
		ID:       slug,
		Slug:     slug,
		Kind:     domain.MarketKindBracket,
		Lower:    lower,
		Upper:    &u,
		TokenIDs: [2]string{yes, no},
		EndDate:  time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		GroupKey: "btc-2026-12-31",
	}
}

func threeParentGroup() []domain.Market {
	return []domain.Market{
		thresholdMarket("above-90000", 90000, "yes90", "no90"),
		thresholdMarket("above-92000", 92000, "yes92", "no92"),
		thresholdMarket("above-94000", 94000, "yes94", "no94"),
		bracketMarket("between-90000-92000", 90000, 92000, "yesB1", "noB1"),
	}
}

func TestBuildGroupsClassifiesAndSorts(t *testing.T) {
	groups := BuildGroups(threeParentGroup())
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if len(g.Parents) != 3 {
		t.Fatalf("expected 3 parents, got %d", len(g.Parents))
	}
	if len(g.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(g.Children))
	}
	for i := 1; i < len(g.Parents); i++ {
		if g.Parents[i-1].Lower >= g.Parents[i].Lower {
			t.Fatalf("parents not ascending: %v", g.Parents)
		}
	}
}

func TestBuildGroupsDuplicateLowerKeepsFirst(t *testing.T) {
	markets := []domain.Market{
		thresholdMarket("above-90000", 90000, "yesA", "noA"),
		thresholdMarket("above-90000-dup", 90000, "yesB", "noB"),
		thresholdMarket("above-92000", 92000, "yes92", "no92"),
		bracketMarket("between-90000-92000", 90000, 92000, "yesBr", "noBr"),
	}
	groups := BuildGroups(markets)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Parents) != 2 {
		t.Fatalf("expected duplicate dropped, got %d parents", len(groups[0].Parents))
	}
	if groups[0].Parents[0].TokenIDs[0] != "yesA" {
		t.Fatalf("expected first occurrence kept, got %q", groups[0].Parents[0].TokenIDs[0])
	}
}

func TestBuildGroupsDropsGroupsMissingEitherSide(t *testing.T) {
	onlyParents := []domain.Market{
		thresholdMarket("above-90000", 90000, "yes90", "no90"),
	}
	if got := BuildGroups(onlyParents); len(got) != 0 {
		t.Fatalf("expected 0 groups with no bracket, got %d", len(got))
	}
}

func TestBuildTriosTwoParentsOneBracketYieldsOneTrio(t *testing.T) {
	groups := BuildGroups(threeParentGroup())
	trios, _ := BuildTrios(groups[0])
	if len(trios) != 1 {
		t.Fatalf("expected 1 trio, got %d", len(trios))
	}
	tr := trios[0]
	if tr.LowerYesToken != "yes90" || tr.UpperNoToken != "no92" || tr.RangeNoToken != "noB1" {
		t.Fatalf("unexpected trio token binding: %+v", tr)
	}
}

func TestBuildTriosOneParentYieldsZeroTrios(t *testing.T) {
	markets := []domain.Market{
		thresholdMarket("above-90000", 90000, "yes90", "no90"),
		bracketMarket("between-90000-92000", 90000, 92000, "yesB1", "noB1"),
	}
	groups := BuildGroups(markets)
	if len(groups) != 0 {
		// a single parent with no matching second bound still forms a group
		// (>=1 parent, >=1 child) but yields zero trios below.
	}
	if len(groups) == 1 {
		trios, _ := BuildTrios(groups[0])
		if len(trios) != 0 {
			t.Fatalf("expected 0 trios with 1 parent, got %d", len(trios))
		}
	}
}

func TestBuildTriosNonAlignedBracketExcludedButRetained(t *testing.T) {
	markets := []domain.Market{
		thresholdMarket("above-90000", 90000, "yes90", "no90"),
		thresholdMarket("above-92000", 92000, "yes92", "no92"),
		bracketMarket("between-90000-91000", 90000, 91000, "yesOverlap", "noOverlap"),
	}
	groups := BuildGroups(markets)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	trios, _ := BuildTrios(groups[0])
	if len(trios) != 0 {
		t.Fatalf("expected 0 trios for misaligned bracket, got %d", len(trios))
	}
	if len(groups[0].Children) != 1 {
		t.Fatalf("misaligned bracket should still be retained in group, got %d children", len(groups[0].Children))
	}
}

func newTestEngine(t Thresholds) (*Engine, *Index) {
	groups := BuildGroups(threeParentGroup())
	idx := NewIndex(groups)
	return NewEngine(idx, t), idx
}

// Scenario 1: Triangle-buy emission.
func TestScenarioTriangleBuyEmission(t *testing.T) {
	e, _ := newTestEngine(Thresholds{MinProfitBps: 5, MinProfitAbs: 0, CooldownMs: 1000, StalenessMs: 5000})

	now := int64(1_700_000_000_000)
	feed := []domain.TopOfBookUpdate{
		{AssetID: "yes90", BestBid: 0.58, BestAsk: 0.60, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
		{AssetID: "no92", BestBid: 0.56, BestAsk: 0.58, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
		{AssetID: "noB1", BestBid: 0.68, BestAsk: 0.70, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
	}

	var got []domain.Opportunity
	for _, u := range feed {
		got = append(got, e.OnTopOfBook(u, now)...)
	}

	var buy *domain.Opportunity
	for i := range got {
		if got[i].Strategy == domain.OppTriangleBuy {
			buy = &got[i]
		}
	}
	if buy == nil {
		t.Fatalf("expected a TriangleBuy emission, got %+v", got)
	}
	if abs(buy.ProfitAbs-0.12) > 1e-9 {
		t.Fatalf("expected profitAbs=0.12, got %v", buy.ProfitAbs)
	}
	if buy.ProfitBps < 637 || buy.ProfitBps > 639 {
		t.Fatalf("expected profitBps ~638, got %v", buy.ProfitBps)
	}
}

// Scenario 2: Cooldown suppression.
func TestScenarioCooldownSuppression(t *testing.T) {
	e, _ := newTestEngine(Thresholds{MinProfitBps: 5, MinProfitAbs: 0, CooldownMs: 1000, StalenessMs: 5000})

	now := int64(1_700_000_000_000)
	seed := []domain.TopOfBookUpdate{
		{AssetID: "yes90", BestBid: 0.58, BestAsk: 0.60, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
		{AssetID: "no92", BestBid: 0.56, BestAsk: 0.58, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
		{AssetID: "noB1", BestBid: 0.68, BestAsk: 0.70, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
	}
	var first []domain.Opportunity
	for _, u := range seed {
		first = append(first, e.OnTopOfBook(u, now)...)
	}
	if !hasStrategy(first, domain.OppTriangleBuy) {
		t.Fatalf("expected initial emission, got %+v", first)
	}

	repeat := domain.TopOfBookUpdate{AssetID: "noB1", BestBid: 0.68, BestAsk: 0.70, BestBidSize: 50, BestAskSize: 50, TimestampMs: now + 500}
	second := e.OnTopOfBook(repeat, now+500)
	if hasStrategy(second, domain.OppTriangleBuy) {
		t.Fatalf("expected cooldown suppression at +500ms, got %+v", second)
	}

	third := domain.TopOfBookUpdate{AssetID: "noB1", BestBid: 0.68, BestAsk: 0.70, BestBidSize: 50, BestAskSize: 50, TimestampMs: now + 1001}
	got := e.OnTopOfBook(third, now+1001)
	if !hasStrategy(got, domain.OppTriangleBuy) {
		t.Fatalf("expected re-emission after cooldown window, got %+v", got)
	}
}

func TestAskSumExactlyTwoNoEmission(t *testing.T) {
	e, _ := newTestEngine(Thresholds{MinProfitBps: 0, MinProfitAbs: 0, CooldownMs: 1000, StalenessMs: 5000})
	now := int64(1_700_000_000_000)
	feed := []domain.TopOfBookUpdate{
		{AssetID: "yes90", BestBid: 0.58, BestAsk: 0.60, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
		{AssetID: "no92", BestBid: 0.56, BestAsk: 0.58, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
		{AssetID: "noB1", BestBid: 0.80, BestAsk: 0.82, BestBidSize: 50, BestAskSize: 50, TimestampMs: now},
	}
	var got []domain.Opportunity
	for _, u := range feed {
		got = append(got, e.OnTopOfBook(u, now)...)
	}
	if hasStrategy(got, domain.OppTriangleBuy) {
		t.Fatalf("askSum==2 with zero thresholds must not emit, got %+v", got)
	}
}

func TestMonotoneTimestampRejectsStaleUpdate(t *testing.T) {
	e, _ := newTestEngine(Thresholds{MinProfitBps: 5, CooldownMs: 1000, StalenessMs: 5000})
	now := int64(1_700_000_000_000)
	first := domain.TopOfBookUpdate{AssetID: "yes90", BestBid: 0.58, BestAsk: 0.60, BestBidSize: 50, BestAskSize: 50, TimestampMs: now}
	e.OnTopOfBook(first, now)

	older := domain.TopOfBookUpdate{AssetID: "yes90", BestBid: 0.50, BestAsk: 0.52, BestBidSize: 50, BestAskSize: 50, TimestampMs: now - 10}
	got := e.OnTopOfBook(older, now)
	if got != nil {
		t.Fatalf("expected rejection of non-monotone timestamp, got %+v", got)
	}
}

func hasStrategy(opps []domain.Opportunity, s domain.OppStrategy) bool {
	for _, o := range opps {
		if o.Strategy == s {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
