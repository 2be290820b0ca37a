package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/ktable"
	"github.com/kroutesync/krsc/pkg/nexthop"
	"github.com/kroutesync/krsc/pkg/redist"
	"github.com/kroutesync/krsc/pkg/rib"
)

type recordingTransport struct {
	sent []Msg
}

func (t *recordingTransport) Send(m Msg) error {
	t.sent = append(t.sent, m)
	return nil
}

type recordingSink struct {
	added, removed []*rib.Entry
	updates        []nexthop.Update
	depends        []int
}

func (s *recordingSink) NetworkAdd(tableID uint32, e *rib.Entry)    { s.added = append(s.added, e) }
func (s *recordingSink) NetworkRemove(tableID uint32, e *rib.Entry) { s.removed = append(s.removed, e) }
func (s *recordingSink) NexthopUpdate(u nexthop.Update)             { s.updates = append(s.updates, u) }
func (s *recordingSink) SessionDependOn(ifindex int, depend iface.DependState) {
	s.depends = append(s.depends, ifindex)
}

func v4Prefix(b byte, length int) addr.Prefix {
	return addr.Prefix{Family: addr.V4, Bytes: []byte{b, 0, 0, 0}, Length: length}
}

func newTestReconciler(t *testing.T) (*Reconciler, chan Event, *recordingTransport, *recordingSink) {
	ifaces := iface.NewTable()
	ifaces.Insert(&iface.Record{Ifindex: 2, Name: "eth0", Flags: 0x1, LinkState: iface.LinkStateUp})
	reg := ktable.NewRegistry(ifaces)
	if _, err := reg.New(254, "main", 0, redist.NewFilter([]redist.NetworkStatement{{Kind: redist.StatementConnected}})); err != nil {
		t.Fatalf("New: %v", err)
	}
	events := make(chan Event, 8)
	transport := &recordingTransport{}
	sink := &recordingSink{}
	r := New(reg, transport, sink, events, nil)
	return r, events, transport, sink
}

func TestHandleRouteAddRedistributesConnected(t *testing.T) {
	r, events, _, sink := newTestReconciler(t)
	events <- Event{Kind: EventRouteAdd, TableID: 254, Prefix: v4Prefix(10, 24), Ifindex: 2, Connected: true}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.added) != 1 {
		t.Fatalf("got %d network-add deliveries, want 1", len(sink.added))
	}
}

// TestHandleRouteAddUpdatesExistingEntryInPlace exercises spec.md §4.7
// fib_change's first branch: a second notification for a key the table
// already tracks must update the existing entry rather than fabricate a
// new multipath member, and must withdraw the earlier announcement once
// the entry no longer matches any network statement.
func TestHandleRouteAddUpdatesExistingEntryInPlace(t *testing.T) {
	r, events, _, sink := newTestReconciler(t)
	events <- Event{Kind: EventRouteAdd, TableID: 254, Prefix: v4Prefix(10, 24), Ifindex: 2, Connected: true}
	events <- Event{Kind: EventRouteAdd, TableID: 254, Prefix: v4Prefix(10, 24), Ifindex: 2, Connected: false}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	main := r.Registry.Get(254)
	chain := main.FindChain(v4Prefix(10, 24), 0)
	if len(chain) != 1 {
		t.Fatalf("got %d chain members, want 1 (update-in-place must not fabricate a multipath member)", len(chain))
	}
	if chain[0].Flags.Has(rib.Connected) {
		t.Fatal("expected the connected flag to be cleared by the second notification")
	}
	if len(sink.added) != 1 {
		t.Fatalf("got %d network-add deliveries, want 1", len(sink.added))
	}
	if len(sink.removed) != 1 {
		t.Fatalf("got %d network-remove deliveries, want 1 (losing the connected flag must withdraw)", len(sink.removed))
	}
}

func TestHandleRouteDelWithdrawsMatchingHead(t *testing.T) {
	r, events, _, sink := newTestReconciler(t)
	events <- Event{Kind: EventRouteAdd, TableID: 254, Prefix: v4Prefix(10, 24), Ifindex: 2, Connected: true}
	events <- Event{Kind: EventRouteDel, TableID: 254, Prefix: v4Prefix(10, 24), Ifindex: 2, Connected: true}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.added) != 1 || len(sink.removed) != 1 {
		t.Fatalf("got added=%d removed=%d, want 1/1", len(sink.added), len(sink.removed))
	}
}

func TestHandleLinkDelTracksDependentsBeforeDeleting(t *testing.T) {
	r, events, _, sink := newTestReconciler(t)

	main := r.Registry.Get(254)
	nhAddr := addr.NexthopAddr{Family: addr.V4, Bytes: []byte{10, 0, 0, 5}}
	resolver := main.Nexthop(addr.V4)
	resolver.Register(nhAddr)

	events <- Event{Kind: EventRouteAdd, TableID: 254, Prefix: v4Prefix(10, 24), Ifindex: 2, Connected: true}
	events <- Event{Kind: EventLinkDel, Ifindex: 2}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.Registry.Ifaces.Find(2) != nil {
		t.Fatal("interface should be removed")
	}
	foundInvalid := false
	for _, u := range sink.updates {
		if u.State == nexthop.StateInvalid {
			foundInvalid = true
		}
	}
	if !foundInvalid {
		t.Fatal("expected an invalidating nexthop update once the interface disappeared")
	}
}

func TestHandleLinkDelNotifiesSessionDependOnForActiveDependency(t *testing.T) {
	r, events, _, sink := newTestReconciler(t)
	r.Registry.Ifaces.Find(2).Depend = iface.DependActive

	events <- Event{Kind: EventLinkDel, Ifindex: 2}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.depends) != 1 || sink.depends[0] != 2 {
		t.Fatalf("got depends=%v, want [2]", sink.depends)
	}
}

func TestHandleLinkUpdateIgnoresInactiveDependency(t *testing.T) {
	r, events, _, sink := newTestReconciler(t)
	events <- Event{Kind: EventLinkUpdate, Ifindex: 2, LinkName: "eth0", LinkFlags: 0x1, LinkState: LinkDown}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.depends) != 0 {
		t.Fatal("expected no session-dependon notification without an active dependency")
	}
}

func TestInstallRouteStaysUninstalledUntilCoupled(t *testing.T) {
	r, events, transport, _ := newTestReconciler(t)
	close(events)

	e, err := r.InstallRoute(254, v4Prefix(192, 32), addr.NexthopAddr{}, rib.PriorityMine)
	if err != nil {
		t.Fatalf("InstallRoute: %v", err)
	}
	if len(transport.sent) != 0 {
		t.Fatal("a decoupled table must not send an install")
	}
	if e.Flags.Has(rib.BGPDInserted) {
		t.Fatal("route must not be marked inserted while its table is decoupled")
	}
}

func TestCoupleInstallsOwnedRoutesThenEchoReconciles(t *testing.T) {
	r, events, transport, _ := newTestReconciler(t)

	e, err := r.InstallRoute(254, v4Prefix(192, 32), addr.NexthopAddr{Family: addr.V4, Bytes: []byte{10, 0, 0, 1}}, rib.PriorityMine)
	if err != nil {
		t.Fatalf("InstallRoute: %v", err)
	}
	if err := r.Couple(254); err != nil {
		t.Fatalf("Couple: %v", err)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("got %d sends, want 1", len(transport.sent))
	}
	if !e.Flags.Has(rib.BGPDInserted) {
		t.Fatal("expected a successful install send to mark the route installed")
	}

	events <- Event{
		Kind: EventRouteAdd, TableID: 254, Prefix: v4Prefix(192, 32),
		Nexthop: addr.NexthopAddr{Family: addr.V4, Bytes: []byte{10, 0, 0, 1}},
		Protocol: ProtocolBGPD,
	}
	close(events)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Flags.Has(rib.BGPDInserted) {
		t.Fatal("expected the kernel echo of our own add to clear bgpd-inserted")
	}
}

func TestAwaitDumpUnblocksOnMatchingSeq(t *testing.T) {
	r, events, _, _ := newTestReconciler(t)
	done := r.AwaitDump(42)

	go func() {
		events <- Event{Kind: EventDumpDone, Seq: 42}
		close(events)
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run(context.Background()) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitDump did not unblock on the matching seq")
	}
	<-runDone
}
