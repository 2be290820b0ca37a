package iface

// Table is the process-wide interface set, indexed by ifindex. Iteration
// order is not observable (spec.md §4.2 — "descending order used internally
// is an implementation choice"), so a Go map suffices where the original
// used a descending red-black tree.
type Table struct {
	byIndex map[int]*Record
}

// NewTable returns an empty interface table.
func NewTable() *Table {
	return &Table{byIndex: make(map[int]*Record)}
}

// Insert adds or replaces the record for its ifindex.
func (t *Table) Insert(r *Record) {
	r.refreshReachable()
	t.byIndex[r.Ifindex] = r
}

// Find returns the record for ifindex, or nil.
func (t *Table) Find(ifindex int) *Record {
	return t.byIndex[ifindex]
}

// TrackFunc revalidates every nexthop registration currently resolved
// through ifindex (nexthop.Resolver.Track in the owning root table). It is
// injected rather than imported to avoid a cycle between pkg/iface and
// pkg/nexthop; the reconciler wires the two together.
type TrackFunc func(ifindex int)

// Remove deletes the record for ifindex. It first marks the record down and
// unreachable — the kernel has already told us the link is gone — then
// invokes track while the record is still findable, and only afterwards
// deletes it, so dependents revalidating against the owning root table see
// it as unreachable rather than missing entirely (spec.md §4.2: "remove
// must invoke nexthop_track(ifindex) on the owning root table before
// freeing so dependents re-resolve").
func (t *Table) Remove(ifindex int, track TrackFunc) *Record {
	r, ok := t.byIndex[ifindex]
	if !ok {
		return nil
	}
	r.Flags = 0
	r.LinkState = LinkStateDown
	r.refreshReachable()
	if track != nil {
		track(ifindex)
	}
	delete(t.byIndex, ifindex)
	return r
}

// All returns every tracked interface record, in no particular order. For
// show-interface and similar enumeration callers.
func (t *Table) All() []*Record {
	records := make([]*Record, 0, len(t.byIndex))
	for _, r := range t.byIndex {
		records = append(records, r)
	}
	return records
}

// Range calls fn for every record until fn returns false.
func (t *Table) Range(fn func(*Record) bool) {
	for _, r := range t.byIndex {
		if !fn(r) {
			return
		}
	}
}

// Len reports the number of tracked interfaces.
func (t *Table) Len() int {
	return len(t.byIndex)
}

// Clear empties the table without invoking any tracking callback — used
// only at shutdown (spec.md §5: "shutdown tears down every table, then
// clears the interface set").
func (t *Table) Clear() {
	t.byIndex = make(map[int]*Record)
}

// UpdateReachability recomputes r's nh_reachable bit and reports whether it
// changed, so callers (link attribute change handling) know whether to
// invoke TrackFunc.
func UpdateReachability(r *Record) (changed bool) {
	return r.refreshReachable()
}
