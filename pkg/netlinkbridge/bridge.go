package netlinkbridge

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/reconciler"
)

// Bridge runs the second goroutine spec.md §5 allows: a read loop that only
// ever translates kernel notifications into reconciler.Event values and
// hands them across a channel — all actual state mutation still happens on
// the reconciler's single goroutine.
type Bridge struct {
	TableID uint32 // kernel rtable id this bridge's events are attributed to
	events  chan reconciler.Event
}

// NewBridge returns a Bridge whose Events channel the reconciler consumes.
func NewBridge(tableID uint32, buffer int) *Bridge {
	return &Bridge{TableID: tableID, events: make(chan reconciler.Event, buffer)}
}

// Events is the channel reconciler.New expects.
func (b *Bridge) Events() <-chan reconciler.Event {
	return b.events
}

// Run subscribes to route and link updates and forwards them until ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	done := ctx.Done()
	routeUpdates := make(chan netlink.RouteUpdate)
	if err := netlink.RouteSubscribe(routeUpdates, done); err != nil {
		return fmt.Errorf("netlinkbridge: route subscribe: %w", err)
	}
	linkUpdates := make(chan netlink.LinkUpdate)
	if err := netlink.LinkSubscribe(linkUpdates, done); err != nil {
		return fmt.Errorf("netlinkbridge: link subscribe: %w", err)
	}

	defer close(b.events)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ru, ok := <-routeUpdates:
			if !ok {
				return nil
			}
			ev, accept := b.toRouteEvent(ru)
			if !accept {
				continue
			}
			b.events <- ev
		case lu, ok := <-linkUpdates:
			if !ok {
				return nil
			}
			b.events <- toLinkEvent(lu)
		}
	}
}

// normalizeTable applies spec.md §4.7's inbound table dispatch rule
// ("RT_TABLE_LOCAL ignored; RT_TABLE_MAIN normalised to rtableid 0") to a
// route's kernel table id, read from RTA_TABLE when the kernel sent it
// (spec.md §6: "RTA_TABLE ... overrides rtm.table") or rtm_table otherwise
// — the netlink library merges both into Route.Table already. Reports
// false when the route belongs to a table this dispatch rule drops.
func normalizeTable(kernelTable int) (rtableid uint32, ok bool) {
	switch kernelTable {
	case unix.RT_TABLE_LOCAL:
		return 0, false
	case unix.RT_TABLE_MAIN:
		return 0, true
	default:
		return uint32(kernelTable), true
	}
}

// toRouteEvent translates one kernel route notification. A single
// RouteSubscribe socket is a system-wide firehose that is not filterable by
// table at the subscription layer, so every Bridge in a multi-table
// configuration sees every table's updates; ok reports false both for a
// dropped RT_TABLE_LOCAL route and for a route belonging to a table other
// than this Bridge's own, so only one of the fanned-in bridges ever
// forwards a given kernel route (spec.md §4.7 dispatch rule; cmd/krscd's
// fanInBridges starts one Bridge per FIB-syncing table).
func (b *Bridge) toRouteEvent(ru netlink.RouteUpdate) (ev reconciler.Event, ok bool) {
	rtableid, ok := normalizeTable(ru.Route.Table)
	if !ok || rtableid != b.TableID {
		return reconciler.Event{}, false
	}

	kind := reconciler.EventRouteAdd
	if ru.Type == unix.RTM_DELROUTE {
		kind = reconciler.EventRouteDel
	}
	family := addr.V4
	dst := ru.Route.Dst
	length := 32
	if dst != nil && len(dst.IP) == 16 {
		family = addr.V6
		length = 128
	}
	bytes := make([]byte, 0)
	prefixLen := length
	if dst != nil {
		bytes = []byte(dst.IP)
		ones, _ := dst.Mask.Size()
		prefixLen = ones
	}

	var nh addr.NexthopAddr
	if ru.Route.Gw != nil {
		nh = addr.NexthopAddr{Family: family, Bytes: []byte(ru.Route.Gw)}
	}

	// RTA_FLOW surfaces as Route.Flow in vishvananda/netlink (the library's
	// name for what iproute2 calls the realm/flow id).
	var label string
	if ru.Route.Flow != 0 {
		label = strconv.Itoa(ru.Route.Flow)
	}

	return reconciler.Event{
		Kind:      kind,
		TableID:   rtableid,
		Prefix:    addr.Prefix{Family: family, Bytes: bytes, Length: prefixLen},
		Nexthop:   nh,
		Ifindex:   ru.Route.LinkIndex,
		Priority:  uint8(ru.Route.Priority),
		Protocol:  uint8(ru.Route.Protocol),
		Label:     label,
		Connected: ru.Route.Gw == nil,
		Multipath: true,
	}, true
}

func toLinkEvent(lu netlink.LinkUpdate) reconciler.Event {
	if lu.Header.Type == unix.RTM_DELLINK {
		return reconciler.Event{Kind: reconciler.EventLinkDel, Ifindex: int(lu.Index)}
	}
	state := reconciler.LinkUnknown
	if lu.Attrs().OperState == netlink.OperUp {
		state = reconciler.LinkUp
	} else if lu.Attrs().OperState != netlink.OperUnknown {
		state = reconciler.LinkDown
	}
	flags := uint32(0)
	if lu.Attrs().Flags&net.FlagUp != 0 {
		flags |= 0x1
	}
	return reconciler.Event{
		Kind:      reconciler.EventLinkUpdate,
		Ifindex:   lu.Attrs().Index,
		LinkName:  lu.Attrs().Name,
		LinkFlags: flags,
		LinkState: state,
	}
}
