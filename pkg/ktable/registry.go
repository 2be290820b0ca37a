// Package ktable is the routing-table registry: it owns one rib.Table pair
// (v4/v6), one route-label interner, one redistribution filter, and either
// its own nexthop resolver pair or a reference to another table's — and
// wires all of them together so a single InsertRoute/RemoveRoute call
// drives the table update, the redistribution decision, and nexthop
// revalidation in the right order (spec.md §4.6).
package ktable

import (
	"fmt"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/krerr"
	"github.com/kroutesync/krsc/pkg/nexthop"
	"github.com/kroutesync/krsc/pkg/redist"
	"github.com/kroutesync/krsc/pkg/rib"
)

// ReconfState marks a table's status across a two-phase configuration
// reload (spec.md §3 "Supplemented data": the three-way table
// reconfiguration state).
type ReconfState uint8

const (
	// ReconfKeep is the steady-state: the table survives a reload
	// untouched (default once Postload runs without the table being
	// marked for deletion).
	ReconfKeep ReconfState = iota
	// ReconfDelete marks a table Preload set up for removal unless a
	// later config directive touches it again before Postload runs.
	ReconfDelete
	// ReconfReinit marks a table created fresh during a reload — it has
	// no prior contents to preserve.
	ReconfReinit
)

// Table is one routing table: its own route storage, either its own
// nexthop resolver pair or a borrowed one, and the redistribution policy
// applied to routes it carries.
type Table struct {
	ID   uint32
	Name string

	NoFIB      bool // never touches the kernel FIB at all
	NoFIBSync  bool // recorded from configuration; Couple and InstallRoute do not consult it
	NoEvaluate bool // tracked but excluded from redistribution
	Coupled    bool // fib-couple state: daemon routes currently visible to the kernel

	V4, V6 *rib.Table
	Labels *rib.Labels
	Filter *redist.Filter
	Keys   *redist.KeySet

	nhV4, nhV6 *nexthop.Resolver
	nhOwnerID  uint32

	reconf ReconfState
}

func (t *Table) tbl(family addr.Family) *rib.Table {
	if family == addr.V4 || family == addr.VPNv4 {
		return t.V4
	}
	return t.V6
}

// Nexthop returns the resolver handling family for this table — the root's
// own resolver, or the borrowed root's when this table shares one. Used by
// the reconciler and show-nexthop tooling.
func (t *Table) Nexthop(family addr.Family) *nexthop.Resolver {
	return t.nh(family)
}

func (t *Table) nh(family addr.Family) *nexthop.Resolver {
	if family == addr.V4 || family == addr.VPNv4 {
		return t.nhV4
	}
	return t.nhV6
}

// nhBundle is the nexthop resolver pair a "root" table owns and any number
// of borrowing tables share — reference counted so Free only tears the
// bundle down once nothing names it anymore (spec.md §3 "Supplemented
// data": root-vs-borrowed nexthop-table linkage + refcounting).
type nhBundle struct {
	v4RIB, v6RIB *rib.Table
	v4, v6       *nexthop.Resolver
	refs         int
}

// familyMatcher adapts a rib.Table into nexthop.Matcher, applying the
// policy that excludes the daemon's own routes and unusable route types
// from nexthop resolution (spec.md §4.4: BGP must never resolve a learned
// nexthop through a route it injected itself).
type familyMatcher struct {
	table *rib.Table
}

func (m *familyMatcher) Match(nh addr.NexthopAddr) *rib.Entry {
	return m.table.LongestMatch(nh.Bytes, nh.Family.MaxPrefixlen(), acceptForNexthop)
}

func acceptForNexthop(e *rib.Entry) bool {
	return !e.Flags.Has(rib.BGPDOwned) && !e.Flags.Has(rib.Blackhole) && !e.Flags.Has(rib.Reject)
}

// Registry is the process-wide set of routing tables.
type Registry struct {
	Ifaces *iface.Table
	tables map[uint32]*Table
	roots  map[uint32]*nhBundle
}

// NewRegistry returns an empty registry bound to ifaces for nexthop
// interface-reachability checks.
func NewRegistry(ifaces *iface.Table) *Registry {
	return &Registry{
		Ifaces: ifaces,
		tables: make(map[uint32]*Table),
		roots:  make(map[uint32]*nhBundle),
	}
}

// Get returns the table for id, or nil.
func (r *Registry) Get(id uint32) *Table {
	return r.tables[id]
}

// All returns every registered table, in no particular order. For
// show-fib-tables and similar enumeration callers.
func (r *Registry) All() []*Table {
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	return tables
}

// New creates a routing table. nhOwnerID names the table whose nexthop
// resolvers this one uses; 0 (or nhOwnerID == id) means the table owns and
// resolves against its own route tables — ktable_new's root-vs-borrowed
// distinction (spec.md §4.6).
func (r *Registry) New(id uint32, name string, nhOwnerID uint32, filter *redist.Filter) (*Table, error) {
	if _, exists := r.tables[id]; exists {
		return nil, fmt.Errorf("ktable: table %d already exists", id)
	}
	if nhOwnerID == 0 {
		nhOwnerID = id
	}

	bundle, ok := r.roots[nhOwnerID]
	if !ok {
		if nhOwnerID != id {
			return nil, fmt.Errorf("ktable: borrowed nexthop table %d does not exist yet: %w", nhOwnerID, krerr.ErrUnknownTable)
		}
		v4RIB := rib.NewTable(addr.V4)
		v6RIB := rib.NewTable(addr.V6)
		bundle = &nhBundle{
			v4RIB: v4RIB,
			v6RIB: v6RIB,
			v4:    nexthop.NewResolver(&familyMatcher{table: v4RIB}, r.Ifaces),
			v6:    nexthop.NewResolver(&familyMatcher{table: v6RIB}, r.Ifaces),
		}
		r.roots[nhOwnerID] = bundle
	}
	bundle.refs++

	t := &Table{
		ID:        id,
		Name:      name,
		Labels:    rib.NewLabels(),
		Filter:    filter,
		Keys:      redist.NewKeySet(),
		nhV4:      bundle.v4,
		nhV6:      bundle.v6,
		nhOwnerID: nhOwnerID,
		reconf:    ReconfKeep,
	}
	if id == nhOwnerID {
		t.V4, t.V6 = bundle.v4RIB, bundle.v6RIB
	} else {
		t.V4, t.V6 = rib.NewTable(addr.V4), rib.NewTable(addr.V6)
	}

	t.installDefaultStatement()

	r.tables[id] = t
	return t, nil
}

// defaultV4 and defaultV6 are the two prefixes a configured "default"
// network statement announces.
var (
	defaultV4 = addr.Prefix{Family: addr.V4, Bytes: []byte{0, 0, 0, 0}, Length: 0}
	defaultV6 = addr.Prefix{Family: addr.V6, Bytes: make([]byte, 16), Length: 0}
)

// installDefaultStatement pins the default route as a static redistribution
// key when this table's filter carries a "default" network statement —
// spec.md §4.5's "default statements are never dynamic-matched here" means
// this is the only place a default-statement table ever gets one announced,
// not Filter.Accept on some future matching kernel route.
func (t *Table) installDefaultStatement() {
	if t.Filter == nil || !t.Filter.HasDefaultStatement() {
		return
	}
	t.Keys.InsertStatic(redist.KeyOf(defaultV4, 0))
	t.Keys.InsertStatic(redist.KeyOf(defaultV6, 0))
}

// Free drains and removes the table for id, releasing its reference to its
// nexthop bundle (ktable_free/ktable_destroy).
func (r *Registry) Free(id uint32) error {
	t, ok := r.tables[id]
	if !ok {
		return krerr.ErrUnknownTable
	}
	t.drain(r)

	bundle := r.roots[t.nhOwnerID]
	bundle.refs--
	if bundle.refs == 0 {
		delete(r.roots, t.nhOwnerID)
	}
	delete(r.tables, id)
	return nil
}

// TrackIfindex re-validates every nexthop registration resolved through
// ifindex, across every distinct resolver bundle exactly once — borrowing
// tables share their root's bundle, so tracking per-bundle rather than
// per-table avoids redundant revalidation work (spec.md §4.2 iface wiring).
func (r *Registry) TrackIfindex(ifindex int) []nexthop.Update {
	var updates []nexthop.Update
	for _, bundle := range r.roots {
		updates = append(updates, bundle.v4.Track(ifindex)...)
		updates = append(updates, bundle.v6.Track(ifindex)...)
	}
	return updates
}

// drain empties a table's own route storage, routing every removal through
// the same post-remove hooks a live RemoveRoute call would run.
func (t *Table) drain(r *Registry) {
	for {
		e, ok := t.V4.PopAny()
		if !ok {
			break
		}
		t.afterRemove(e)
	}
	for {
		e, ok := t.V6.PopAny()
		if !ok {
			break
		}
		t.afterRemove(e)
	}
}
