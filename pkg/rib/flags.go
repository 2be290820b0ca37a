// Package rib holds the per-family route tables: the ordered index over
// (prefix, prefixlen, priority) and the multipath sequence each key owns
// (spec.md §3, §4.3).
package rib

// Flags is the per-route flag set (spec.md §3 RouteEntry.flags).
type Flags uint16

const (
	Connected Flags = 1 << iota
	Blackhole
	Reject
	Static
	BGPDOwned
	BGPDInserted
	MPLS
	HasNexthopDependent
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) Set(bit Flags) Flags   { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }

// Priority sentinels (spec.md §3): 0 is the wildcard "any" match used by
// comparators and longest-prefix-match lookups; 255 is the daemon sentinel
// "mine" applied to every daemon-originated route.
const (
	PriorityAny  uint8 = 0
	PriorityMine uint8 = 255
)
