// Package redist decides which kernel-learned routes get announced back
// into BGP, mirroring kr_redistribute's exclusion rules and the configured
// "network" statements that pull specific routes back in (spec.md §4.5).
package redist

import (
	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/rib"
)

// StatementKind is the matching rule a configured network statement uses.
type StatementKind uint8

const (
	// StatementConnected redistributes every directly connected route.
	StatementConnected StatementKind = iota
	// StatementStatic redistributes every kernel static route.
	StatementStatic
	// StatementDefault announces the default route as a static key; Accept
	// never admits a prefixlen-0 kernel route, with or without it (spec.md
	// §4.5 edge case).
	StatementDefault
	// StatementPrefix admits one exact (prefix, prefixlen).
	StatementPrefix
	// StatementLabel admits every route carrying a given rtlabel.
	StatementLabel
	// StatementPriority admits every route at a given kernel priority.
	StatementPriority
	// StatementRedistributeAll admits every non-excluded route regardless
	// of origin — the blanket "redistribute dynamic routes" toggle.
	StatementRedistributeAll
)

// NetworkStatement is one configured "network" rule.
type NetworkStatement struct {
	Kind     StatementKind
	Prefix   addr.Prefix // StatementPrefix
	Label    string      // StatementLabel
	Priority uint8       // StatementPriority
}

// Filter holds the configured network statements and decides, per route,
// whether it is eligible for redistribution.
type Filter struct {
	statements []NetworkStatement
}

// NewFilter returns a filter evaluating statements in configuration order.
func NewFilter(statements []NetworkStatement) *Filter {
	return &Filter{statements: append([]NetworkStatement(nil), statements...)}
}

// Accept reports whether e should be redistributed. labelName is the
// interned route-label string resolved by the caller (rib.Labels.Name), or
// "" when e carries none.
//
// Exclusions apply unconditionally and cannot be overridden by a network
// statement: the daemon's own routes (to avoid readvertising what it just
// installed), the default route, and addresses with no meaning as a
// redistributable destination (loopback, multicast, link-local, site-local,
// IPv4-mapped) — spec.md §4.5.
func (f *Filter) Accept(e *rib.Entry, labelName string) bool {
	if e.Flags.Has(rib.BGPDOwned) {
		return false
	}
	if e.Flags.Has(rib.Blackhole) || e.Flags.Has(rib.Reject) {
		return false
	}
	if isExcludedDestination(e.Prefix) {
		return false
	}
	// The default route never redistributes through a route match, even
	// with a "default" statement configured: that statement announces the
	// default route statically at table load, independent of whatever the
	// kernel's own 0.0.0.0/0 or ::/0 entry happens to be (spec.md §4.5,
	// §8 boundary test "prefixlen = 0 routes are never redistributed").
	if e.Prefix.Length == 0 {
		return false
	}

	for _, s := range f.statements {
		switch s.Kind {
		case StatementConnected:
			if e.Flags.Has(rib.Connected) {
				return true
			}
		case StatementStatic:
			if e.Flags.Has(rib.Static) {
				return true
			}
		case StatementPrefix:
			if s.Prefix.Length == e.Prefix.Length &&
				addr.PrefixCompare(s.Prefix, addr.NexthopAddr{Family: e.Prefix.Family, Bytes: e.Prefix.Bytes}, s.Prefix.Length) == 0 {
				return true
			}
		case StatementLabel:
			if labelName != "" && s.Label == labelName {
				return true
			}
		case StatementPriority:
			if s.Priority == e.Priority {
				return true
			}
		}
	}

	// No statement claimed this route specifically. A dynamic (non-static,
	// non-connected) route still qualifies under the blanket
	// "redistribute all" toggle; a static or connected route with no
	// matching statement does not — spec.md §9 design note, dynamic routes
	// default to the blanket toggle while static/connected routes require
	// an explicit statement.
	dynamic := !e.Flags.Has(rib.Static) && !e.Flags.Has(rib.Connected)
	if dynamic {
		return f.hasRedistributeAll()
	}
	return false
}

// HasDefaultStatement reports whether a "default" network statement is
// configured. The default route is never matched dynamically through
// Accept (spec.md §4.5: "default statements are never dynamic-matched
// here"); a caller that sees this return true is expected to announce the
// default route as a static RedistributionKey instead (KeySet.InsertStatic)
// at table-load time, the way kr_reload's separate NETWORK_DEFAULT handling
// does.
func (f *Filter) HasDefaultStatement() bool {
	for _, s := range f.statements {
		if s.Kind == StatementDefault {
			return true
		}
	}
	return false
}

func (f *Filter) hasRedistributeAll() bool {
	for _, s := range f.statements {
		if s.Kind == StatementRedistributeAll {
			return true
		}
	}
	return false
}

// isExcludedDestination reports whether p can never be a meaningful
// redistribution target: loopback, multicast, link-local, site-local
// (deprecated but still seen on the wire), or an IPv4-mapped v6 address.
func isExcludedDestination(p addr.Prefix) bool {
	switch p.Family {
	case addr.V4, addr.VPNv4:
		if len(p.Bytes) != 4 {
			return false
		}
		switch {
		case p.Bytes[0] == 127: // loopback
			return true
		case p.Bytes[0] >= 224: // multicast/reserved (class D/E)
			return true
		case p.Bytes[0] == 169 && p.Bytes[1] == 254: // link-local
			return true
		}
		return false
	case addr.V6, addr.VPNv6:
		if len(p.Bytes) != 16 {
			return false
		}
		if isV6Loopback(p.Bytes) {
			return true
		}
		if p.Bytes[0] == 0xff { // multicast
			return true
		}
		if p.Bytes[0] == 0xfe && p.Bytes[1]&0xc0 == 0x80 { // link-local fe80::/10
			return true
		}
		if p.Bytes[0] == 0xfe && p.Bytes[1]&0xc0 == 0xc0 { // site-local fec0::/10
			return true
		}
		if isV4MappedV6(p.Bytes) {
			return true
		}
		return false
	default:
		return false
	}
}

func isV6Loopback(b []byte) bool {
	for i := 0; i < 15; i++ {
		if b[i] != 0 {
			return false
		}
	}
	return b[15] == 1
}

func isV4MappedV6(b []byte) bool {
	for i := 0; i < 10; i++ {
		if b[i] != 0 {
			return false
		}
	}
	return b[10] == 0xff && b[11] == 0xff
}
