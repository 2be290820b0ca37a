// Package nexthop resolves BGP-learned nexthop addresses against the
// shadow FIB and tracks their reachability as the kernel's routes and
// interfaces change (spec.md §4.4, originally knexthop_validate/
// knexthop_track/knexthop_clear).
package nexthop

import (
	"bytes"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/rib"
)

// State is a registration's resolution outcome.
type State uint8

const (
	StateInvalid State = iota
	StateValid
)

// Matcher performs the longest-prefix-match lookup a registration resolves
// against, with family dispatch and ownership policy (excluding the
// daemon's own routes, skipping blackhole/reject entries) applied by the
// caller — spec.md §4.6 ktable owns this policy since it alone knows which
// table a registration's family maps to.
type Matcher interface {
	Match(nh addr.NexthopAddr) *rib.Entry
}

// IfaceChecker reports interface reachability (spec.md §4.2).
type IfaceChecker interface {
	Find(ifindex int) *iface.Record
}

// Registration is one resolved nexthop, refcounted because multiple BGP
// sessions commonly share the same learned nexthop (spec.md §3).
type Registration struct {
	ID       uint64
	Nexthop  addr.NexthopAddr
	RefCount int

	State       State
	Ifindex     int
	TrueNexthop addr.NexthopAddr
	Connected   bool

	// CoveringPrefix/CoveringLength are the matched route's own prefix and
	// length, meaningful only while Connected is true (spec.md §4.4).
	CoveringPrefix addr.Prefix
	CoveringLength int

	// resolvedID is the weak reference to the matched rib.Entry — an ID,
	// never a pointer, so a later Remove/Insert of that entry can't leave
	// a registration aliasing freed state (spec.md §9).
	resolvedID uint64
}

// Update is the notification emitted when a registration's resolution
// changes, for IPC delivery to the owning session (spec.md §6). Connected
// and the covering prefix fields are only meaningful when State is
// StateValid; for a connected match CoveringPrefix is the matched route's
// own prefix and CoveringLength its length (spec.md §4.4).
type Update struct {
	Nexthop        addr.NexthopAddr
	State          State
	Ifindex        int
	TrueNexthop    addr.NexthopAddr
	Connected      bool
	CoveringPrefix addr.Prefix
	CoveringLength int
}

// Resolver owns the set of live registrations and the fast-path dependency
// index used to avoid a full sweep on every route change.
type Resolver struct {
	matcher Matcher
	ifaces  IfaceChecker

	byAddr map[string]*Registration
	nextID uint64

	// dependents maps a matched rib.Entry's ID to the registrations whose
	// resolution currently depends on it — the has-nexthop-dependent fast
	// path (spec.md §3 "Supplemented data"). The route itself also carries
	// a HasNexthopDependent flag so callers can skip the map lookup
	// entirely when nothing depends on the entry being changed.
	dependents map[uint64]map[uint64]*Registration
}

// NewResolver returns an empty resolver bound to matcher and ifaces.
func NewResolver(matcher Matcher, ifaces IfaceChecker) *Resolver {
	return &Resolver{
		matcher:    matcher,
		ifaces:     ifaces,
		byAddr:     make(map[string]*Registration),
		dependents: make(map[uint64]map[uint64]*Registration),
	}
}

func addrKey(nh addr.NexthopAddr) string {
	key := make([]byte, 5, 5+len(nh.Bytes))
	key[0] = byte(nh.Family)
	key[1] = byte(nh.ScopeID >> 24)
	key[2] = byte(nh.ScopeID >> 16)
	key[3] = byte(nh.ScopeID >> 8)
	key[4] = byte(nh.ScopeID)
	key = append(key, nh.Bytes...)
	return string(key)
}

// Register adds a reference to nh's registration, creating and resolving it
// on first use. Returns the registration and whether this call created it
// (so the caller knows whether to emit an initial Update).
func (r *Resolver) Register(nh addr.NexthopAddr) (*Registration, bool) {
	key := addrKey(nh)
	if reg, ok := r.byAddr[key]; ok {
		reg.RefCount++
		return reg, false
	}
	r.nextID++
	reg := &Registration{ID: r.nextID, Nexthop: nh, RefCount: 1}
	r.byAddr[key] = reg
	r.validate(reg)
	return reg, true
}

// Unregister drops a reference, removing and untracking the registration
// once its refcount reaches zero.
func (r *Resolver) Unregister(nh addr.NexthopAddr) {
	key := addrKey(nh)
	reg, ok := r.byAddr[key]
	if !ok {
		return
	}
	reg.RefCount--
	if reg.RefCount > 0 {
		return
	}
	r.untrack(reg)
	delete(r.byAddr, key)
}

func (r *Resolver) untrack(reg *Registration) {
	if reg.resolvedID == 0 {
		return
	}
	if set, ok := r.dependents[reg.resolvedID]; ok {
		delete(set, reg.ID)
		if len(set) == 0 {
			delete(r.dependents, reg.resolvedID)
		}
	}
	reg.resolvedID = 0
}

// validate re-resolves reg and reports whether its outward state changed.
func (r *Resolver) validate(reg *Registration) bool {
	before := *reg
	r.untrack(reg)

	match := r.matcher.Match(reg.Nexthop)
	if match == nil {
		reg.State = StateInvalid
		reg.Ifindex = 0
		reg.TrueNexthop = addr.NexthopAddr{}
		reg.Connected = false
		reg.CoveringPrefix = addr.Prefix{}
		reg.CoveringLength = 0
		return changed(before, reg)
	}

	r.dependents[match.ID] = ensureSet(r.dependents[match.ID])
	r.dependents[match.ID][reg.ID] = reg
	reg.resolvedID = match.ID
	reg.CoveringPrefix = match.Prefix
	reg.CoveringLength = match.Prefix.Length

	rec := r.ifaces.Find(match.Ifindex)
	if !iface.Validate(rec) {
		reg.State = StateInvalid
		reg.Ifindex = match.Ifindex
		reg.TrueNexthop = addr.NexthopAddr{}
		reg.Connected = match.Connected()
		return changed(before, reg)
	}

	reg.State = StateValid
	reg.Ifindex = match.Ifindex
	reg.Connected = match.Connected()
	reg.TrueNexthop = resolveTrueNexthop(reg.Nexthop, match)
	return changed(before, reg)
}

func ensureSet(s map[uint64]*Registration) map[uint64]*Registration {
	if s == nil {
		return make(map[uint64]*Registration)
	}
	return s
}

func changed(before Registration, reg *Registration) bool {
	return before.State != reg.State ||
		before.Ifindex != reg.Ifindex ||
		before.Connected != reg.Connected ||
		before.CoveringLength != reg.CoveringLength ||
		!bytes.Equal(before.CoveringPrefix.Bytes, reg.CoveringPrefix.Bytes) ||
		!before.TrueNexthop.Equal(reg.TrueNexthop)
}

// resolveTrueNexthop derives the address a redistributed route should carry
// as its wire nexthop. A connected match means the requested address is
// directly attached: it is its own true nexthop. A remote match means the
// kernel resolved through a gateway route one level down, so the matched
// route's own nexthop is used — the original resolves exactly one level,
// relying on the kernel to have installed a direct route to any gateway it
// names (spec.md §4.4 resolve_true_nexthop).
func resolveTrueNexthop(requested addr.NexthopAddr, match *rib.Entry) addr.NexthopAddr {
	if match.Connected() {
		return requested
	}
	return match.Nexthop
}

// Track re-validates every registration resolved through ifindex, called
// when an interface's reachability flips (spec.md §4.2 iface.TrackFunc
// wiring) or when it disappears. Returns the updates to deliver.
func (r *Resolver) Track(ifindex int) []Update {
	var updates []Update
	for _, reg := range r.byAddr {
		if reg.Ifindex != ifindex {
			continue
		}
		if r.validate(reg) {
			updates = append(updates, snapshot(reg))
		}
	}
	return updates
}

// OnRouteChanged re-validates only the registrations depending on entryID —
// the fast path for a route insert/remove/update that the caller already
// knows carries HasNexthopDependent (spec.md §3, §9).
func (r *Resolver) OnRouteChanged(entryID uint64) []Update {
	set := r.dependents[entryID]
	if len(set) == 0 {
		return nil
	}
	// Copy first: validate mutates r.dependents as it re-resolves, which
	// would otherwise invalidate this range mid-iteration.
	regs := make([]*Registration, 0, len(set))
	for _, reg := range set {
		regs = append(regs, reg)
	}
	var updates []Update
	for _, reg := range regs {
		if r.validate(reg) {
			updates = append(updates, snapshot(reg))
		}
	}
	return updates
}

// RevalidateContaining re-resolves every registration whose requested
// nexthop falls within prefix — the trigger a freshly inserted route needs,
// since a newly installed, more specific route can improve resolution for
// any nexthop it now covers even though nothing depended on it yet
// (spec.md §4.4 knexthop_validate's "walk nexthop entries under this
// prefix" on insert, as distinct from OnRouteChanged's dependent-id fast
// path on removal).
func (r *Resolver) RevalidateContaining(prefix addr.Prefix) []Update {
	var updates []Update
	for _, reg := range r.byAddr {
		if addr.PrefixCompare(prefix, reg.Nexthop, prefix.Length) != 0 {
			continue
		}
		if r.validate(reg) {
			updates = append(updates, snapshot(reg))
		}
	}
	return updates
}

// RevalidateAll re-resolves every registration unconditionally — the
// authoritative sweep backstopping the fast path, run after bulk changes
// the per-entry hint can't cheaply characterize (a table reload, a kernel
// resync dump).
func (r *Resolver) RevalidateAll() []Update {
	var updates []Update
	for _, reg := range r.byAddr {
		if r.validate(reg) {
			updates = append(updates, snapshot(reg))
		}
	}
	return updates
}

// HasDependents reports whether any registration currently resolves
// through entryID — the table sets RouteEntry's HasNexthopDependent flag
// from this so removal/update paths can skip OnRouteChanged entirely.
func (r *Resolver) HasDependents(entryID uint64) bool {
	return len(r.dependents[entryID]) > 0
}

func snapshot(reg *Registration) Update {
	return Update{
		Nexthop:        reg.Nexthop,
		State:          reg.State,
		Ifindex:        reg.Ifindex,
		TrueNexthop:    reg.TrueNexthop,
		Connected:      reg.Connected,
		CoveringPrefix: reg.CoveringPrefix,
		CoveringLength: reg.CoveringLength,
	}
}
