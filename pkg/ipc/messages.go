// Package ipc delivers the reconciler's outward effects — redistributed
// routes, resolved nexthops, and stale session dependencies — to the
// session and RDE processes, and answers their show-* control queries
// (spec.md §5, §6). It is a Redis-backed publish-and-mirror store:
// every message is Published on a Pub/Sub channel for live subscribers
// AND mirrored into a Redis hash keyed by the message's natural key, so a
// show-* query can be answered from the mirror without a live subscriber —
// the same HSet/HGetAll idiom the teacher's config_db client uses, turned
// from a device-config mirror into a control-plane-state mirror.
package ipc

import "fmt"

// NetworkMsg is the wire shape of a network-add/network-remove message.
type NetworkMsg struct {
	Table    uint32 `json:"table"`
	Prefix   string `json:"prefix"`
	Nexthop  string `json:"nexthop,omitempty"`
	Ifindex  int    `json:"ifindex"`
	Priority uint8  `json:"priority"`
	Flags    string `json:"flags"`
}

// NexthopMsg is the wire shape of a nexthop-update message. Net is the
// covering route's own prefix, set only when Connected is true (spec.md
// §4.4): a session receiving a connected resolution needs to know which
// directly attached network the nexthop falls under.
type NexthopMsg struct {
	Nexthop     string `json:"nexthop"`
	Valid       bool   `json:"valid"`
	Connected   bool   `json:"connected"`
	Ifindex     int    `json:"ifindex"`
	TrueNexthop string `json:"true_nexthop,omitempty"`
	Net         string `json:"net,omitempty"`
}

// SessionDependOnMsg is the wire shape of a session-dependon message.
type SessionDependOnMsg struct {
	Ifindex int    `json:"ifindex"`
	Depend  string `json:"depend"`
}

// routeKey is the natural key a network-add/remove message mirrors under:
// distinct per table, prefix, and priority, matching the ordered-index key
// the rib package itself uses (spec.md §3).
func routeKey(tableID uint32, prefix string, priority uint8) string {
	return fmt.Sprintf("%d|%s|%d", tableID, prefix, priority)
}

// nexthopKey is the natural key a nexthop-update message mirrors under.
func nexthopKey(nexthop string) string {
	return nexthop
}
