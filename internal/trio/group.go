// Package trio builds the in-memory market-structure index that the hot
// arbitrage path reads: groups of threshold/bracket markets collapsed into
// trios, each indexed by token ID for O(1) lookup on a top-of-book update.
package trio

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// Group is all markets sharing an asset and event end date, partitioned
// into ordered thresholds (parents) and brackets (children).
type Group struct {
	GroupKey string
	Asset    string
	EndDate  time.Time
	Parents  []domain.Market // ascending by Lower
	Children []domain.Market // ascending by Lower
}

var slugAbove = regexp.MustCompile(`above-(\d+(?:\.\d+)?)(k)?`)
var slugBetween = regexp.MustCompile(`between-(\d+(?:\.\d+)?)(k)?-(\d+(?:\.\d+)?)(k)?`)

// ParseSlugBounds infers (lower, upper) bounds from a market slug per the
// contract: fragments `above-<N>`, `above-<N>k`, `between-<N>-<M>`, with a
// `k` suffix multiplying by 1000. Returns ok=false if the slug matches
// neither pattern.
func ParseSlugBounds(slug string) (lower float64, upper *float64, kind domain.MarketKind, ok bool) {
	slug = strings.ToLower(slug)
	if m := slugBetween.FindStringSubmatch(slug); m != nil {
		lo := parseNum(m[1], m[2] == "k")
		hi := parseNum(m[3], m[4] == "k")
		return lo, &hi, domain.MarketKindBracket, true
	}
	if m := slugAbove.FindStringSubmatch(slug); m != nil {
		lo := parseNum(m[1], m[2] == "k")
		return lo, nil, domain.MarketKindThreshold, true
	}
	return 0, nil, "", false
}

func parseNum(s string, kilo bool) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	if kilo {
		v *= 1000
	}
	return v
}

// BuildGroups partitions markets into Groups, classifying each market,
// inferring bounds where the catalogue omits them, and sorting parents and
// children ascending by lower bound. Markets whose group ends up with zero
// parents or zero children are dropped. Duplicate parent lower bounds are
// resolved by deterministically keeping the first occurrence in input
// order and dropping the rest.
func BuildGroups(markets []domain.Market) []Group {
	byKey := make(map[string][]domain.Market)
	order := make([]string, 0)
	for _, m := range markets {
		if m.TokenIDs[0] == "" || m.TokenIDs[1] == "" {
			continue // missing both token identifiers
		}
		gk := m.GroupKey
		kind := m.Kind
		lower := m.Lower
		upper := m.Upper
		if kind == "" {
			lo, hi, k, ok := ParseSlugBounds(m.Slug)
			if !ok {
				continue
			}
			lower, upper, kind = lo, hi, k
		}
		m.Kind = kind
		m.Lower = lower
		m.Upper = upper
		if gk == "" {
			gk = groupKeyFromMarket(m)
		}
		if _, exists := byKey[gk]; !exists {
			order = append(order, gk)
		}
		byKey[gk] = append(byKey[gk], m)
	}

	groups := make([]Group, 0, len(order))
	for _, gk := range order {
		ms := byKey[gk]
		g := Group{GroupKey: gk}
		seenLower := make(map[float64]bool)
		for _, m := range ms {
			switch m.Kind {
			case domain.MarketKindThreshold:
				if seenLower[m.Lower] {
					continue
				}
				seenLower[m.Lower] = true
				g.Parents = append(g.Parents, m)
			case domain.MarketKindBracket:
				g.Children = append(g.Children, m)
			}
			if g.Asset == "" {
				g.Asset = assetFromGroupKey(gk)
			}
			if !m.EndDate.IsZero() && (g.EndDate.IsZero() || m.EndDate.Before(g.EndDate)) {
				g.EndDate = m.EndDate
			}
		}
		if len(g.Parents) == 0 || len(g.Children) == 0 {
			continue
		}
		sort.Slice(g.Parents, func(i, j int) bool { return g.Parents[i].Lower < g.Parents[j].Lower })
		sort.Slice(g.Children, func(i, j int) bool { return g.Children[i].Lower < g.Children[j].Lower })
		groups = append(groups, g)
	}
	return groups
}

// groupKeyFromMarket derives "<asset>-<ISO end date>" when the catalogue
// did not supply one directly.
func groupKeyFromMarket(m domain.Market) string {
	asset := assetFromSlug(m.Slug)
	date := ""
	if !m.EndDate.IsZero() {
		date = m.EndDate.Format("2006-01-02")
	}
	return fmt.Sprintf("%s-%s", asset, date)
}

func assetFromGroupKey(gk string) string {
	if i := strings.LastIndex(gk, "-"); i > 0 {
		return gk[:i]
	}
	return gk
}

func assetFromSlug(slug string) string {
	parts := strings.SplitN(slug, "-", 2)
	return parts[0]
}

// CleanupExpired returns the group keys among groups whose EndDate has
// passed as of now.
func CleanupExpired(groups []Group, now time.Time) []string {
	var expired []string
	for _, g := range groups {
		if !g.EndDate.IsZero() && g.EndDate.Before(now) {
			expired = append(expired, g.GroupKey)
		}
	}
	return expired
}
