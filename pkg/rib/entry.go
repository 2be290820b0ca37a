package rib

import "github.com/kroutesync/krsc/pkg/addr"

// Entry is one route in a per-family table (RouteEntry in spec.md §3). A
// value type, not a pointer into static scratch (spec.md §9): the table
// allocates and owns Entry values and hands back pointers to them, but
// nothing outside pkg/rib retains a raw *Entry across a Remove.
type Entry struct {
	// ID is a stable, monotonically assigned handle. The nexthop resolver
	// keeps this instead of a *Entry so a removed-then-reinserted route
	// never aliases a stale pointer (spec.md §9, weak-reference design).
	ID uint64

	Prefix   addr.Prefix
	Nexthop  addr.NexthopAddr
	Ifindex  int
	Priority uint8
	Flags    Flags

	// LabelID is the interned route-label handle (0 = none). See Labels.
	LabelID uint16

	// MPLSLabel is the packed MPLS shim (20-bit label, 3-bit traffic class,
	// bottom-of-stack bit, 8-bit TTL; see PackMPLS) kernel routes carry (spec.md §3 "Supplemented data": MPLS label
	// packing); zero when Flags.Has(MPLS) is false.
	MPLSLabel uint32
}

// Connected reports whether this is a directly connected (interface) route.
func (e *Entry) Connected() bool { return e.Flags.Has(Connected) }
