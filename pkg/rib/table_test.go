package rib

import (
	"testing"

	"github.com/kroutesync/krsc/pkg/addr"
)

func prefix(b byte, length int) addr.Prefix {
	return addr.Prefix{Family: addr.V4, Bytes: []byte{b, 0, 0, 0}, Length: length}
}

func TestFindReturnsLowestPriorityForAny(t *testing.T) {
	tbl := NewTable(addr.V4)
	p := prefix(10, 24)

	tbl.Insert(&Entry{Prefix: p, Priority: 64})
	low := &Entry{Prefix: p, Priority: 32}
	tbl.Insert(low)
	tbl.Insert(&Entry{Prefix: p, Priority: 200})

	got := tbl.Find(p, PriorityAny)
	if got != low {
		t.Fatalf("Find(any) = priority %d, want 32", got.Priority)
	}
}

func TestInsertReportsMultipath(t *testing.T) {
	tbl := NewTable(addr.V4)
	p := prefix(10, 24)

	if mp := tbl.Insert(&Entry{Prefix: p, Priority: 64}); mp {
		t.Fatal("first insert must not report multipath")
	}
	if mp := tbl.Insert(&Entry{Prefix: p, Priority: 64}); !mp {
		t.Fatal("second insert at same key must report multipath")
	}
	if len(tbl.Chain(p, 64)) != 2 {
		t.Fatalf("chain length = %d, want 2", len(tbl.Chain(p, 64)))
	}
}

func TestRemoveEntryHeadPromotesNext(t *testing.T) {
	tbl := NewTable(addr.V4)
	p := prefix(10, 24)

	first := &Entry{Prefix: p, Priority: 64}
	second := &Entry{Prefix: p, Priority: 64}
	tbl.Insert(first)
	tbl.Insert(second)

	keyGone, corrupted := tbl.RemoveEntry(first)
	if corrupted {
		t.Fatal("unexpected corruption")
	}
	if keyGone {
		t.Fatal("key should survive while second entry remains")
	}
	if head := tbl.Find(p, 64); head != second {
		t.Fatal("second entry should be promoted to head")
	}
}

func TestRemoveEntryLastReportsKeyGone(t *testing.T) {
	tbl := NewTable(addr.V4)
	p := prefix(10, 24)
	e := &Entry{Prefix: p, Priority: 64}
	tbl.Insert(e)

	keyGone, corrupted := tbl.RemoveEntry(e)
	if corrupted || !keyGone {
		t.Fatalf("keyGone=%v corrupted=%v, want true/false", keyGone, corrupted)
	}
	if tbl.Find(p, 64) != nil {
		t.Fatal("expected no entries left for key")
	}
	if tbl.Find(p, PriorityAny) != nil {
		t.Fatal("expected priority index to be cleared")
	}
}

func TestRemoveEntryNotInChainReportsCorruption(t *testing.T) {
	tbl := NewTable(addr.V4)
	p := prefix(10, 24)
	tbl.Insert(&Entry{Prefix: p, Priority: 64})

	stray := &Entry{Prefix: p, Priority: 64}
	_, corrupted := tbl.RemoveEntry(stray)
	if !corrupted {
		t.Fatal("expected corruption for an entry not present in its own chain")
	}
}

func TestMatchGWConnectedComparesIfindex(t *testing.T) {
	p := prefix(10, 24)
	chain := []*Entry{
		{Prefix: p, Ifindex: 2, Flags: Connected},
		{Prefix: p, Ifindex: 5, Flags: Connected},
	}
	got := MatchGW(chain, true, 5, addr.NexthopAddr{})
	if got != chain[1] {
		t.Fatal("expected the entry whose ifindex matches")
	}
}

func TestMatchGWGatewayComparesNexthop(t *testing.T) {
	p := prefix(10, 24)
	nhA := addr.NexthopAddr{Family: addr.V4, Bytes: []byte{1, 1, 1, 1}}
	nhB := addr.NexthopAddr{Family: addr.V4, Bytes: []byte{2, 2, 2, 2}}
	chain := []*Entry{
		{Prefix: p, Nexthop: nhA},
		{Prefix: p, Nexthop: nhB},
	}
	got := MatchGW(chain, false, 0, nhB)
	if got != chain[1] {
		t.Fatal("expected the entry whose nexthop matches")
	}
	if MatchGW(chain, false, 0, addr.NexthopAddr{Family: addr.V4, Bytes: []byte{9, 9, 9, 9}}) != nil {
		t.Fatal("expected no match for an unrelated nexthop")
	}
}

func TestPopAnyDrainsEveryEntry(t *testing.T) {
	tbl := NewTable(addr.V4)
	tbl.Insert(&Entry{Prefix: prefix(10, 24), Priority: 64})
	tbl.Insert(&Entry{Prefix: prefix(10, 24), Priority: 64})
	tbl.Insert(&Entry{Prefix: prefix(11, 24), Priority: 32})

	count := 0
	for {
		_, ok := tbl.PopAny()
		if !ok {
			break
		}
		count++
	}
	if count != 3 {
		t.Fatalf("drained %d entries, want 3", count)
	}
	if tbl.Len() != 0 {
		t.Fatal("table should be empty after full drain")
	}
}

func TestLabelsRefUnrefLifecycle(t *testing.T) {
	l := NewLabels()
	id := l.Ref("customer-a")
	if id == 0 {
		t.Fatal("expected non-zero handle")
	}
	if l.Ref("customer-a") != id {
		t.Fatal("interning the same name must return the same handle")
	}
	if l.RefCount(id) != 2 {
		t.Fatalf("refcount = %d, want 2", l.RefCount(id))
	}
	l.Unref(id)
	if l.Name(id) != "customer-a" {
		t.Fatal("label must survive while refcount > 0")
	}
	l.Unref(id)
	if l.Name(id) != "" {
		t.Fatal("label must be freed once refcount reaches 0")
	}
}

func TestLabelsRefZeroIsNoop(t *testing.T) {
	l := NewLabels()
	if l.Ref("") != 0 {
		t.Fatal("empty name must intern to handle 0")
	}
	l.Unref(0) // must not panic
}

func TestPackUnpackMPLSRoundTrip(t *testing.T) {
	v := PackMPLS(123456, 5, true, 64)
	label, tc, bos, ttl := UnpackMPLS(v)
	if label != 123456 || tc != 5 || !bos || ttl != 64 {
		t.Fatalf("round trip = (%d,%d,%v,%d), want (123456,5,true,64)", label, tc, bos, ttl)
	}
}
