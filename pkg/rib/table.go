package rib

import (
	"sort"

	"github.com/kroutesync/krsc/pkg/addr"
)

// plKey identifies a (prefix, prefixlen) node in the ordered index.
type plKey struct {
	bytes string
	len   int
}

// chainKey identifies one multipath chain: a (prefix, prefixlen, priority)
// triple. Two RouteEntry values collide into the same chain iff every field
// of chainKey matches exactly — the "any" priority wildcard only ever
// appears in a search key, never in a stored one (spec.md §3 ordered-index
// key; §9 design note on the multipath representation).
type chainKey struct {
	pl       plKey
	priority uint8
}

// Table is one address family's route table: the ordered index over
// (prefix, prefixlen, priority) plus the multipath chain each key owns.
//
// The original maintains a single red-black tree ordered by
// (prefix, prefixlen, priority) and links multipath successors through the
// entries themselves. Go has no intrusive RB-tree in the standard library,
// and the successor-relinking dance it buys has no payoff here, so this
// keeps the same lookup semantics — one RB_FIND plus a bounded RB_PREV walk
// collapses to a priority-sorted slice per (prefix, prefixlen), and each
// chain is an ordinary ordered slice (spec.md §9).
type Table struct {
	family     addr.Family
	chains     map[chainKey][]*Entry
	priorities map[plKey][]uint8 // sorted ascending, unique
	nextID     uint64
}

// NewTable returns an empty table for family.
func NewTable(family addr.Family) *Table {
	return &Table{
		family:     family,
		chains:     make(map[chainKey][]*Entry),
		priorities: make(map[plKey][]uint8),
	}
}

func (t *Table) Family() addr.Family { return t.family }

func keyFor(p addr.Prefix) plKey {
	masked := addr.Mask(p, p.Length)
	return plKey{bytes: string(masked.Bytes), len: masked.Length}
}

// insertPriority inserts priority into the sorted, unique priority list for
// pl, returning the updated slice.
func insertPriority(list []uint8, priority uint8) []uint8 {
	i := sort.Search(len(list), func(i int) bool { return list[i] >= priority })
	if i < len(list) && list[i] == priority {
		return list
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = priority
	return list
}

func removePriority(list []uint8, priority uint8) []uint8 {
	i := sort.Search(len(list), func(i int) bool { return list[i] >= priority })
	if i >= len(list) || list[i] != priority {
		return list
	}
	return append(list[:i], list[i+1:]...)
}

// Find returns the chain head for (prefix, prefixlen, priority). Passing
// PriorityAny returns the head of the lowest-priority chain present for
// that key — the RB_FIND-then-RB_PREV walk in the original collapses to a
// lookup of the smallest entry in the sorted priority list (spec.md §3, §4.3
// kroute_find).
func (t *Table) Find(prefix addr.Prefix, priority uint8) *Entry {
	chain := t.Chain(prefix, priority)
	if len(chain) == 0 {
		return nil
	}
	return chain[0]
}

// Chain returns the live multipath chain for (prefix, prefixlen, priority),
// or the lowest-priority chain when priority is PriorityAny. Callers must
// not mutate the returned slice; use Insert/RemoveEntry.
func (t *Table) Chain(prefix addr.Prefix, priority uint8) []*Entry {
	pl := keyFor(prefix)
	if priority != PriorityAny {
		return t.chains[chainKey{pl, priority}]
	}
	prios := t.priorities[pl]
	if len(prios) == 0 {
		return nil
	}
	return t.chains[chainKey{pl, prios[0]}]
}

// MatchGW narrows a chain to the entry matching either the interface index
// (for connected routes) or the nexthop address (spec.md §4.3 kroute_match:
// "walks the multipath chain for a matching gateway... connected routes
// compare the interface index instead"). Returns nil if nothing matches.
func MatchGW(chain []*Entry, connected bool, ifindex int, nexthop addr.NexthopAddr) *Entry {
	for _, e := range chain {
		if connected {
			if e.Ifindex == ifindex {
				return e
			}
			continue
		}
		if e.Nexthop.Equal(nexthop) {
			return e
		}
	}
	return nil
}

// NextID hands out the next stable entry identifier.
func (t *Table) NextID() uint64 {
	t.nextID++
	return t.nextID
}

// Insert appends e to the chain for its (prefix, prefixlen, priority) key,
// assigning e.ID if unset. Reports whether this created a multipath chain
// (an entry already occupied the key) — spec.md §4.3: "insert always
// appends; the caller learns whether this created or extended a multipath
// chain from the return value."
func (t *Table) Insert(e *Entry) (multipath bool) {
	if e.ID == 0 {
		e.ID = t.NextID()
	}
	e.Prefix = addr.Mask(e.Prefix, e.Prefix.Length)
	pl := keyFor(e.Prefix)
	ck := chainKey{pl, e.Priority}
	chain, exists := t.chains[ck]
	multipath = len(chain) > 0
	t.chains[ck] = append(chain, e)
	if !exists {
		t.priorities[pl] = insertPriority(t.priorities[pl], e.Priority)
	}
	return multipath
}

// RemoveEntry removes e from its chain by identity. keyGone reports that
// this was the last entry for (prefix, prefixlen, priority); corrupted
// reports e was not found in the chain its own key names (a multipath
// successor-chain bug, spec.md §7 ErrMultipathCorruption).
func (t *Table) RemoveEntry(e *Entry) (keyGone, corrupted bool) {
	pl := keyFor(e.Prefix)
	ck := chainKey{pl, e.Priority}
	chain := t.chains[ck]
	idx := -1
	for i, c := range chain {
		if c == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, true
	}
	chain = append(chain[:idx], chain[idx+1:]...)
	if len(chain) == 0 {
		delete(t.chains, ck)
		t.priorities[pl] = removePriority(t.priorities[pl], e.Priority)
		if len(t.priorities[pl]) == 0 {
			delete(t.priorities, pl)
		}
		return true, false
	}
	t.chains[ck] = chain
	return false, false
}

// PopAny removes and returns an arbitrary entry, for full-table teardown
// (spec.md §4.6 ktable_free: "iteratively removes the minimum head until
// empty" — the removal order is not program-observable once the table is
// fully drained, so this picks whichever chain the map iterator visits
// first).
func (t *Table) PopAny() (*Entry, bool) {
	for ck, chain := range t.chains {
		if len(chain) == 0 {
			delete(t.chains, ck)
			continue
		}
		e := chain[0]
		t.RemoveEntry(e)
		return e, true
	}
	return nil, false
}

// LongestMatch walks prefixlen from maxLen down to 0 looking for the
// highest-prefixlen, lowest-priority entry covering target that accept
// approves, mirroring kroute_match's decreasing-prefixlen RB_FIND walk
// (spec.md §4.3/§4.4). accept may be nil to take the first candidate found.
func (t *Table) LongestMatch(target []byte, maxLen int, accept func(*Entry) bool) *Entry {
	for length := maxLen; length >= 0; length-- {
		p := addr.Prefix{Family: t.family, Bytes: target, Length: length}
		masked := addr.Mask(p, length)
		pl := plKey{bytes: string(masked.Bytes), len: length}
		for _, prio := range t.priorities[pl] {
			chain := t.chains[chainKey{pl, prio}]
			if len(chain) == 0 {
				continue
			}
			if accept == nil || accept(chain[0]) {
				return chain[0]
			}
		}
	}
	return nil
}

// Range calls fn for every entry across every chain until fn returns false.
func (t *Table) Range(fn func(*Entry) bool) {
	for _, chain := range t.chains {
		for _, e := range chain {
			if !fn(e) {
				return
			}
		}
	}
}

// Len reports the total number of entries (summed across multipath chains).
func (t *Table) Len() int {
	n := 0
	for _, chain := range t.chains {
		n += len(chain)
	}
	return n
}
