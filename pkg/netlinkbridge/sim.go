package netlinkbridge

import "github.com/kroutesync/krsc/pkg/reconciler"

// SimTransport is an in-memory simulated kernel peer: every accepted Send
// is echoed back as a route event on Events(), exactly as the real kernel
// echoes back a route this daemon just installed (with rtm_protocol set to
// ProtocolBGPD). It exists because the real netlink socket is never opened
// during tests — this is the harness the end-to-end scenario tests drive
// instead (spec.md §8).
type SimTransport struct {
	TableID uint32
	events  chan reconciler.Event

	// Reject, when non-nil, is consulted before accepting a Send; a true
	// result simulates a kernel-side rejection (EEXIST, ENOBUFS, ...).
	Reject func(reconciler.Msg) bool

	sent []reconciler.Msg
}

// NewSimTransport returns a SimTransport whose Events channel the
// reconciler can consume directly in place of a real bridge.
func NewSimTransport(tableID uint32, buffer int) *SimTransport {
	return &SimTransport{TableID: tableID, events: make(chan reconciler.Event, buffer)}
}

// Events is the channel reconciler.New expects.
func (s *SimTransport) Events() <-chan reconciler.Event {
	return s.events
}

// Send implements reconciler.Transport: it records the message and, unless
// Reject vetoes it, pushes back the matching echo event synchronously.
func (s *SimTransport) Send(m reconciler.Msg) error {
	s.sent = append(s.sent, m)
	if s.Reject != nil && s.Reject(m) {
		return nil
	}
	kind := reconciler.EventRouteAdd
	if m.Kind == reconciler.MsgRouteDel {
		kind = reconciler.EventRouteDel
	}
	s.events <- reconciler.Event{
		Kind:     kind,
		TableID:  s.TableID,
		Prefix:   m.Prefix,
		Nexthop:  m.Nexthop,
		Ifindex:  m.Ifindex,
		Priority: m.Priority,
		MPLS:     m.MPLS,
		Protocol: reconciler.ProtocolBGPD,
	}
	return nil
}

// Sent returns every message passed to Send so far, including ones Reject
// vetoed, for test assertions.
func (s *SimTransport) Sent() []reconciler.Msg {
	return append([]reconciler.Msg(nil), s.sent...)
}
