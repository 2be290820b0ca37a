// Package netlinkbridge turns kernel netlink notifications into
// reconciler.Event values and reconciler.Msg values into netlink route
// syscalls. It depends on pkg/reconciler for the event/message shapes;
// pkg/reconciler never imports this package, so there is no cycle between
// the state machine and the transport feeding it (spec.md §6).
package netlinkbridge

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/krerr"
	"github.com/kroutesync/krsc/pkg/reconciler"
)

// LinuxTransport sends route install/withdraw requests through the real
// kernel netlink socket via github.com/vishvananda/netlink.
type LinuxTransport struct {
	handle *netlink.Handle
}

// NewLinuxTransport opens a netlink handle in the current network
// namespace.
func NewLinuxTransport() (*LinuxTransport, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("netlinkbridge: open handle: %w", err)
	}
	return &LinuxTransport{handle: h}, nil
}

// Send implements reconciler.Transport.
func (t *LinuxTransport) Send(m reconciler.Msg) error {
	route, err := toNetlinkRoute(m)
	if err != nil {
		return err
	}
	switch m.Kind {
	case reconciler.MsgRouteAdd:
		if err := t.handle.RouteReplace(route); err != nil {
			return fmt.Errorf("netlinkbridge: route add: %w: %w", krerr.ErrTransport, err)
		}
	case reconciler.MsgRouteDel:
		if err := t.handle.RouteDel(route); err != nil {
			return fmt.Errorf("netlinkbridge: route del: %w: %w", krerr.ErrTransport, err)
		}
	default:
		return fmt.Errorf("netlinkbridge: unknown message kind %d: %w", m.Kind, krerr.ErrInvalidMessage)
	}
	return nil
}

// Close releases the underlying netlink socket.
func (t *LinuxTransport) Close() {
	t.handle.Close()
}

func toNetlinkRoute(m reconciler.Msg) (*netlink.Route, error) {
	if m.Prefix.Family != addr.V4 && m.Prefix.Family != addr.V6 {
		return nil, fmt.Errorf("netlinkbridge: %w", krerr.ErrUnsupported)
	}
	ipNet := &net.IPNet{
		IP:   net.IP(m.Prefix.Bytes),
		Mask: net.CIDRMask(m.Prefix.Length, len(m.Prefix.Bytes)*8),
	}
	route := &netlink.Route{
		Dst:       ipNet,
		LinkIndex: m.Ifindex,
		Priority:  int(m.Priority),
		Protocol:  reconciler.ProtocolBGPD,
	}
	if !m.Nexthop.IsUnspec() {
		route.Gw = net.IP(m.Nexthop.Bytes)
	}
	if m.MPLS != 0 {
		label, _, _, _ := unpackForEncap(m.MPLS)
		route.Encap = &netlink.MPLSEncap{Labels: []int{int(label)}}
	}
	return route, nil
}

// unpackForEncap avoids importing pkg/rib (a data-model package with no
// business knowing about netlink) just to unpack the label fields this
// bridge needs; the packing layout is duplicated here deliberately, not
// shared, because the two packages serve different wire formats (kernel
// route attribute vs. RouteEntry storage).
func unpackForEncap(v uint32) (label uint32, tc uint8, bos bool, ttl uint8) {
	label = (v >> 12) & 0xfffff
	tc = uint8((v >> 9) & 0x7)
	bos = v&(1<<8) != 0
	ttl = uint8(v & 0xff)
	return
}
