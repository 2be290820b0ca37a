// Package reconciler is the single event loop that turns netlink
// notifications into route-table, nexthop, and redistribution effects, and
// turns daemon route install/withdraw requests into netlink sends (spec.md
// §4.6, §5). It depends only on the lower data-model packages; the
// netlink transport depends on reconciler's Event/Msg/Transport types, not
// the other way around, so there is no import cycle between the bridge and
// the state machine it feeds.
package reconciler

import "github.com/kroutesync/krsc/pkg/addr"

// ProtocolBGPD is the rtm_protocol value the kernel echoes back on routes
// this daemon installed itself (RTPROT_BGP, reserved at 186 in
// include/uapi/linux/rtnetlink.h for BGP-speaking daemons).
const ProtocolBGPD = 186

// EventKind tags an inbound notification from the kernel.
type EventKind uint8

const (
	EventRouteAdd EventKind = iota
	EventRouteDel
	EventLinkUpdate
	EventLinkDel
	EventDumpDone
)

// Event is every inbound notification shape flattened into one struct — the
// fields relevant to Kind are populated, the rest left zero. A netlink
// bridge (or a test harness) produces these; the reconciler only consumes
// them.
type Event struct {
	Kind EventKind
	Seq  uint32 // dump-query/pid echo correlation (query_seq)

	TableID  uint32
	Family   addr.Family
	Prefix   addr.Prefix
	Nexthop  addr.NexthopAddr
	Ifindex  int
	Priority uint8
	Protocol uint8
	MPLS     uint32
	Label    string // interned route-label name, from RTA_FLOW; "" if none
	Connected bool
	Static    bool
	Multipath bool // true for a del that must match a specific gateway

	LinkName  string
	LinkFlags uint32
	LinkState LinkStateHint
}

// LinkStateHint mirrors iface.LinkState without importing pkg/iface into
// the event shape (kept intentionally primitive so Event stays a plain
// value type any transport can construct).
type LinkStateHint uint8

const (
	LinkUnknown LinkStateHint = iota
	LinkDown
	LinkUp
)

// MsgKind tags an outbound netlink request.
type MsgKind uint8

const (
	MsgRouteAdd MsgKind = iota
	MsgRouteDel
)

// Msg is an outbound route install/withdraw request.
type Msg struct {
	Kind     MsgKind
	Seq      uint32
	Family   addr.Family
	Prefix   addr.Prefix
	Nexthop  addr.NexthopAddr
	Ifindex  int
	Priority uint8
	MPLS     uint32
}

// Transport sends an outbound message to the kernel (or, in tests, to a
// simulated peer). Implemented by pkg/netlinkbridge.
type Transport interface {
	Send(Msg) error
}
