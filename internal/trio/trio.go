package trio

import (
	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// Role identifies which leg of a trio or range group a token participates
// as.
type Role string

const (
	RoleLowerYes    Role = "lower_yes"
	RoleUpperNo     Role = "upper_no"
	RoleRangeNo     Role = "range_no"
	RoleParentLowerYes Role = "range_parent_lower_yes"
	RoleRangeYes    Role = "range_yes"
	RoleParentUpperYes Role = "range_parent_upper_yes"
)

// Trio binds three token identifiers whose combined one-of-each fill
// settles to exactly $2: an adjacent threshold pair's YES/NO sides and
// their bracket's NO side.
type Trio struct {
	GroupKey       string
	ParentLowerIdx int
	ParentUpperIdx int
	RangeIdx       int

	LowerYesToken string
	UpperNoToken  string
	RangeNoToken  string

	LowerYesMarket domain.Market
	UpperNoMarket  domain.Market
	RangeNoMarket  domain.Market

	LowerYes domain.LegSnapshot
	UpperNo  domain.LegSnapshot
	RangeNo  domain.LegSnapshot
}

// RangeGroup binds the three tokens used by the RangeUnbundle/RangeBundle
// strategies: a parent's lower-bound YES, the bracket's YES, and the next
// parent's YES.
type RangeGroup struct {
	GroupKey        string
	ParentLowerIdx  int
	ParentUpperIdx  int
	RangeIdx        int

	ParentLowerYesToken string
	RangeYesToken       string
	ParentUpperYesToken string

	ParentLowerYesMarket domain.Market
	RangeYesMarket       domain.Market
	ParentUpperYesMarket domain.Market

	ParentLowerYes domain.LegSnapshot
	RangeYes       domain.LegSnapshot
	ParentUpperYes domain.LegSnapshot
}

// BuildTrios expands a group into its adjacent-threshold trios and range
// groups. For each i in [0, len(parents)-1) it forms (lower=parents[i].Lower,
// upper=parents[i+1].Lower) and looks for the unique child whose bounds
// equal exactly that pair. Pairs with no matching child are skipped for
// triangle purposes; every bracket in the group, matched or not, is
// retained by the caller for range strategies via the returned range
// groups built from the same parent pairing when a bracket aligns.
func BuildTrios(g Group) (trios []Trio, ranges []RangeGroup) {
	for i := 0; i+1 < len(g.Parents); i++ {
		lower := g.Parents[i]
		upper := g.Parents[i+1]
		child, idx, ok := findChild(g.Children, lower.Lower, upper.Lower)
		if !ok {
			continue
		}
		if lower.YesTokenID() == "" || upper.NoTokenID() == "" || child.NoTokenID() == "" {
			continue
		}
		trios = append(trios, Trio{
			GroupKey:       g.GroupKey,
			ParentLowerIdx: i,
			ParentUpperIdx: i + 1,
			RangeIdx:       idx,
			LowerYesToken:  lower.YesTokenID(),
			UpperNoToken:   upper.NoTokenID(),
			RangeNoToken:   child.NoTokenID(),
			LowerYesMarket: lower,
			UpperNoMarket:  upper,
			RangeNoMarket:  child,
		})
		if lower.YesTokenID() == "" || child.YesTokenID() == "" || upper.YesTokenID() == "" {
			continue
		}
		ranges = append(ranges, RangeGroup{
			GroupKey:             g.GroupKey,
			ParentLowerIdx:       i,
			ParentUpperIdx:       i + 1,
			RangeIdx:             idx,
			ParentLowerYesToken:  lower.YesTokenID(),
			RangeYesToken:        child.YesTokenID(),
			ParentUpperYesToken:  upper.YesTokenID(),
			ParentLowerYesMarket: lower,
			RangeYesMarket:       child,
			ParentUpperYesMarket: upper,
		})
	}
	return trios, ranges
}

// findChild returns the unique bracket whose (Lower, *Upper) equals exactly
// (lower, upper).
func findChild(children []domain.Market, lower, upper float64) (domain.Market, int, bool) {
	for idx, c := range children {
		if c.Upper == nil {
			continue
		}
		if c.Lower == lower && *c.Upper == upper {
			return c, idx, true
		}
	}
	return domain.Market{}, 0, false
}
