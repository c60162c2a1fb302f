package trio

import (
	"sync"

	"github.com/nvh2205/poly-ab-sub001/internal/domain"
)

// ref is one jump-table entry: a token feeds leg `Role` of trio/range group
// `Idx` within `GroupKey`.
type ref struct {
	GroupKey string
	Idx      int
	Role     Role
	IsRange  bool
}

// Index is the rebuildable, read-mostly structure index: a flat slice of
// trios and range groups per group key, plus a token -> []ref jump table
// used by the hot top-of-book path to find every leg a token participates
// in in O(1).
//
// A rebuild swaps the whole structure under a single lock; readers that
// only need ApplyUpdate's returned snapshot never block on a rebuild that
// has already completed, because ApplyUpdate itself takes the lock for the
// duration of the mutation it performs.
type Index struct {
	mu sync.RWMutex

	trios      map[string][]Trio
	ranges     map[string][]RangeGroup
	byToken    map[string][]ref
}

// NewIndex builds an Index from the groups produced by BuildGroups.
func NewIndex(groups []Group) *Index {
	idx := &Index{
		trios:   make(map[string][]Trio),
		ranges:  make(map[string][]RangeGroup),
		byToken: make(map[string][]ref),
	}
	idx.rebuild(groups)
	return idx
}

// Rebuild replaces the entire index contents from a freshly built group
// list, discarding all cached leg snapshots. Callers that want to preserve
// warm snapshots across a catalogue refresh should instead use
// RebuildPreservingSnapshots.
func (idx *Index) Rebuild(groups []Group) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.trios = make(map[string][]Trio)
	idx.ranges = make(map[string][]RangeGroup)
	idx.byToken = make(map[string][]ref)
	idx.rebuildLocked(groups)
}

// RebuildPreservingSnapshots rebuilds the structure but carries forward any
// leg snapshot already cached for a token that still appears in the new
// structure, so a catalogue refresh does not force every trio back to
// Empty() and wait out a fresh staleness window.
func (idx *Index) RebuildPreservingSnapshots(groups []Group) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	old := idx.snapshotsLocked()
	idx.trios = make(map[string][]Trio)
	idx.ranges = make(map[string][]RangeGroup)
	idx.byToken = make(map[string][]ref)
	idx.rebuildLocked(groups)
	for token, snap := range old {
		idx.applyLocked(token, snap)
	}
}

func (idx *Index) snapshotsLocked() map[string]domain.LegSnapshot {
	out := make(map[string]domain.LegSnapshot)
	for _, ts := range idx.trios {
		for _, t := range ts {
			if !t.LowerYes.Empty() {
				out[t.LowerYesToken] = t.LowerYes
			}
			if !t.UpperNo.Empty() {
				out[t.UpperNoToken] = t.UpperNo
			}
			if !t.RangeNo.Empty() {
				out[t.RangeNoToken] = t.RangeNo
			}
		}
	}
	for _, rs := range idx.ranges {
		for _, r := range rs {
			if !r.ParentLowerYes.Empty() {
				out[r.ParentLowerYesToken] = r.ParentLowerYes
			}
			if !r.RangeYes.Empty() {
				out[r.RangeYesToken] = r.RangeYes
			}
			if !r.ParentUpperYes.Empty() {
				out[r.ParentUpperYesToken] = r.ParentUpperYes
			}
		}
	}
	return out
}

func (idx *Index) rebuild(groups []Group) {
	idx.rebuildLocked(groups)
}

func (idx *Index) rebuildLocked(groups []Group) {
	for _, g := range groups {
		trios, ranges := BuildTrios(g)
		if len(trios) > 0 {
			idx.trios[g.GroupKey] = trios
			for i, t := range trios {
				idx.byToken[t.LowerYesToken] = append(idx.byToken[t.LowerYesToken], ref{g.GroupKey, i, RoleLowerYes, false})
				idx.byToken[t.UpperNoToken] = append(idx.byToken[t.UpperNoToken], ref{g.GroupKey, i, RoleUpperNo, false})
				idx.byToken[t.RangeNoToken] = append(idx.byToken[t.RangeNoToken], ref{g.GroupKey, i, RoleRangeNo, false})
			}
		}
		if len(ranges) > 0 {
			idx.ranges[g.GroupKey] = ranges
			for i, r := range ranges {
				idx.byToken[r.ParentLowerYesToken] = append(idx.byToken[r.ParentLowerYesToken], ref{g.GroupKey, i, RoleParentLowerYes, true})
				idx.byToken[r.RangeYesToken] = append(idx.byToken[r.RangeYesToken], ref{g.GroupKey, i, RoleRangeYes, true})
				idx.byToken[r.ParentUpperYesToken] = append(idx.byToken[r.ParentUpperYesToken], ref{g.GroupKey, i, RoleParentUpperYes, true})
			}
		}
	}
}

// Touched is one trio or range group whose leg snapshots were just updated
// by ApplyUpdate, returned so the caller can hand it straight to an
// evaluator without a second lookup.
type Touched struct {
	Trio       *Trio
	RangeGroup *RangeGroup
}

// ApplyUpdate writes a new leg snapshot for token into every trio/range
// group it participates in and returns copies of the affected structures
// for immediate evaluation. Returns nil if the token is not indexed.
func (idx *Index) ApplyUpdate(token string, snap domain.LegSnapshot) []Touched {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.applyLocked(token, snap)
	refs := idx.byToken[token]
	if len(refs) == 0 {
		return nil
	}
	out := make([]Touched, 0, len(refs))
	for _, r := range refs {
		if r.IsRange {
			rg := idx.ranges[r.GroupKey][r.Idx]
			out = append(out, Touched{RangeGroup: &rg})
		} else {
			t := idx.trios[r.GroupKey][r.Idx]
			out = append(out, Touched{Trio: &t})
		}
	}
	return out
}

func (idx *Index) applyLocked(token string, snap domain.LegSnapshot) {
	for _, r := range idx.byToken[token] {
		if r.IsRange {
			rg := idx.ranges[r.GroupKey]
			switch r.Role {
			case RoleParentLowerYes:
				rg[r.Idx].ParentLowerYes = snap
			case RoleRangeYes:
				rg[r.Idx].RangeYes = snap
			case RoleParentUpperYes:
				rg[r.Idx].ParentUpperYes = snap
			}
			continue
		}
		ts := idx.trios[r.GroupKey]
		switch r.Role {
		case RoleLowerYes:
			ts[r.Idx].LowerYes = snap
		case RoleUpperNo:
			ts[r.Idx].UpperNo = snap
		case RoleRangeNo:
			ts[r.Idx].RangeNo = snap
		}
	}
}

// Len reports the number of indexed trios and range groups, for metrics.
func (idx *Index) Len() (trios int, ranges int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, ts := range idx.trios {
		trios += len(ts)
	}
	for _, rs := range idx.ranges {
		ranges += len(rs)
	}
	return trios, ranges
}
