package nexthop

import (
	"testing"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/rib"
)

type fakeMatcher struct {
	entry *rib.Entry
}

func (m *fakeMatcher) Match(nh addr.NexthopAddr) *rib.Entry { return m.entry }

type fakeIfaces struct {
	records map[int]*iface.Record
}

func (f *fakeIfaces) Find(ifindex int) *iface.Record { return f.records[ifindex] }

func nh(b byte) addr.NexthopAddr {
	return addr.NexthopAddr{Family: addr.V4, Bytes: []byte{b, b, b, b}}
}

func TestRegisterSharesRefcountedRegistration(t *testing.T) {
	matcher := &fakeMatcher{}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{}}
	r := NewResolver(matcher, ifaces)

	reg1, created1 := r.Register(nh(1))
	reg2, created2 := r.Register(nh(1))
	if !created1 || created2 {
		t.Fatal("second Register of the same nexthop must not create a new registration")
	}
	if reg1 != reg2 {
		t.Fatal("expected the same registration to be returned")
	}
	if reg1.RefCount != 2 {
		t.Fatalf("refcount = %d, want 2", reg1.RefCount)
	}
}

func TestRegisterResolvesConnectedMatch(t *testing.T) {
	entry := &rib.Entry{ID: 1, Ifindex: 7, Flags: rib.Connected}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0x1, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	reg, _ := r.Register(nh(1))

	if reg.State != StateValid {
		t.Fatal("expected a valid registration")
	}
	if !reg.TrueNexthop.Equal(nh(1)) {
		t.Fatal("connected match's true nexthop must equal the requested address")
	}
	if !r.HasDependents(entry.ID) {
		t.Fatal("expected the matched entry to carry a dependent")
	}
}

func TestRegisterResolvesConnectedMatchSetsCoveringPrefix(t *testing.T) {
	net := addr.Prefix{Family: addr.V4, Bytes: []byte{192, 0, 2, 0}, Length: 24}
	entry := &rib.Entry{ID: 1, Ifindex: 7, Prefix: net, Flags: rib.Connected}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0x1, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	reg, _ := r.Register(addr.NexthopAddr{Family: addr.V4, Bytes: []byte{192, 0, 2, 10}})

	if !reg.Connected {
		t.Fatal("expected a connected match")
	}
	if reg.CoveringLength != 24 {
		t.Fatalf("covering length = %d, want 24", reg.CoveringLength)
	}
	if reg.CoveringPrefix.String() != "192.0.2.0/24" {
		t.Fatalf("covering prefix = %s, want 192.0.2.0/24", reg.CoveringPrefix.String())
	}
}

func TestRegisterResolvesRemoteMatchUsesGateway(t *testing.T) {
	gw := nh(9)
	entry := &rib.Entry{ID: 2, Ifindex: 7, Nexthop: gw}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0x1, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	reg, _ := r.Register(nh(2))

	if !reg.TrueNexthop.Equal(gw) {
		t.Fatal("remote match's true nexthop must be the matched route's own nexthop")
	}
}

func TestRegisterInvalidWhenInterfaceDown(t *testing.T) {
	entry := &rib.Entry{ID: 3, Ifindex: 7, Flags: rib.Connected}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	reg, _ := r.Register(nh(3))

	if reg.State != StateInvalid {
		t.Fatal("expected invalid resolution for an admin-down interface")
	}
}

func TestTrackRevalidatesOnlyMatchingIfindex(t *testing.T) {
	entry := &rib.Entry{ID: 4, Ifindex: 7, Flags: rib.Connected}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0x1, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	reg, _ := r.Register(nh(4))
	if reg.State != StateValid {
		t.Fatal("expected initial valid resolution")
	}

	rec.LinkState = iface.LinkStateDown
	updates := r.Track(7)
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if updates[0].State != StateInvalid {
		t.Fatal("expected the update to report invalid")
	}
	if r.Track(9) != nil {
		t.Fatal("Track on an unrelated ifindex must not revalidate anything")
	}
}

func TestOnRouteChangedUsesDependentFastPath(t *testing.T) {
	entry := &rib.Entry{ID: 5, Ifindex: 7, Flags: rib.Connected}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0x1, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	r.Register(nh(5))

	matcher.entry = nil // route withdrawn
	updates := r.OnRouteChanged(entry.ID)
	if len(updates) != 1 || updates[0].State != StateInvalid {
		t.Fatal("expected a single invalidating update for the dependent registration")
	}
	if r.HasDependents(entry.ID) {
		t.Fatal("dependent index must be cleared once the registration no longer resolves there")
	}
}

func TestUnregisterDropsRegistrationAtZeroRefcount(t *testing.T) {
	entry := &rib.Entry{ID: 6, Ifindex: 7, Flags: rib.Connected}
	matcher := &fakeMatcher{entry: entry}
	rec := &iface.Record{Ifindex: 7, Flags: 0x1, LinkState: iface.LinkStateUp}
	ifaces := &fakeIfaces{records: map[int]*iface.Record{7: rec}}

	r := NewResolver(matcher, ifaces)
	r.Register(nh(6))
	r.Register(nh(6))
	r.Unregister(nh(6))
	if !r.HasDependents(entry.ID) {
		t.Fatal("registration should still be live after one of two references drops")
	}
	r.Unregister(nh(6))
	if r.HasDependents(entry.ID) {
		t.Fatal("dependent index must be cleared once the last reference drops")
	}
}
