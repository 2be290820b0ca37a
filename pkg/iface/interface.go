// Package iface tracks the kernel's interface set: index, name, flags, and
// link state, plus the derived reachability predicate nexthop resolution
// depends on (spec.md §4.2).
package iface

// LinkState mirrors the kernel's notion of carrier state.
type LinkState uint8

const (
	LinkStateUnknown LinkState = iota
	LinkStateDown
	LinkStateUp
)

// DependState tracks whether a BGP session depends on this interface being
// reachable, for the session-dependon IPC notification (original
// kif_depend_state). A plain on/off flag set by the session collaborator;
// KRSC only flips it to "stale" when the interface disappears.
type DependState uint8

const (
	DependNone DependState = iota
	DependActive
	DependStale
)

const flagUp = 0x1 // distinguished UP bit, mirrors IFF_UP

// Record is one tracked kernel interface (InterfaceRecord in spec.md §3).
type Record struct {
	Ifindex     int
	Name        string
	Flags       uint32
	LinkState   LinkState
	RoutingDomain uint32
	Type        uint8
	Baudrate    uint64
	Depend      DependState

	// nhReachable caches Validate's result as of the last refresh, read
	// through NHReachable; the nexthop resolver calls Validate directly.
	nhReachable bool
}

// IsUp reports whether the distinguished UP bit is set.
func (r *Record) IsUp() bool {
	return r.Flags&flagUp != 0
}

// Validate reports whether the interface is reachable for nexthop
// resolution: UP and link state not DOWN (unknown counts as up). Mirrors
// kroute_validate/kif_validate's union with the link-state check.
func Validate(r *Record) bool {
	if r == nil {
		return false
	}
	return r.IsUp() && r.LinkState != LinkStateDown
}

// refreshReachable recomputes and caches the reachability bit, returning
// whether it changed.
func (r *Record) refreshReachable() (changed bool) {
	next := Validate(r)
	changed = next != r.nhReachable
	r.nhReachable = next
	return changed
}

// NHReachable returns the cached reachability bit.
func (r *Record) NHReachable() bool {
	return r.nhReachable
}
