package ktable

import (
	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/nexthop"
	"github.com/kroutesync/krsc/pkg/redist"
	"github.com/kroutesync/krsc/pkg/rib"
)

// FindChain returns the live multipath chain for (prefix, priority) in the
// table matching prefix's address family — the lookup the reconciler needs
// before it can call RemoveRoute with a specific chain member.
func (t *Table) FindChain(prefix addr.Prefix, priority uint8) []*rib.Entry {
	return t.tbl(prefix.Family).Chain(prefix, priority)
}

// InsertResult reports everything an insert's side effects produced, so
// the reconciler knows what to tell the rest of the system without
// re-deriving it.
type InsertResult struct {
	Entry          *rib.Entry
	Multipath      bool
	Redistribute   bool
	NexthopUpdates []nexthop.Update
}

// InsertRoute adds e to the table for its address family and runs the two
// effects an insert always triggers (spec.md §4.3, §4.6):
//
//   - nexthop revalidation for every registration e's prefix now covers,
//     since a newly installed, more specific route can improve resolution
//     for nexthops that previously resolved elsewhere or not at all;
//   - a redistribution decision, evaluated once for the chain head only —
//     a backup multipath member joining an already-announced chain does
//     not trigger a fresh announce.
func (t *Table) InsertRoute(e *rib.Entry) InsertResult {
	multipath := t.tbl(e.Prefix.Family).Insert(e)

	redistribute := false
	if !multipath && t.Filter != nil && !t.NoEvaluate && t.Filter.Accept(e, t.Labels.Name(e.LabelID)) {
		redistribute = t.Keys.InsertDynamic(redist.KeyOf(e.Prefix, 0))
	}

	var updates []nexthop.Update
	if resolver := t.nh(e.Prefix.Family); resolver != nil {
		updates = resolver.RevalidateContaining(e.Prefix)
		e.Flags = setDependentFlag(e, resolver)
	}

	return InsertResult{Entry: e, Multipath: multipath, Redistribute: redistribute, NexthopUpdates: updates}
}

// RemoveResult reports a removal's outcome and side effects.
type RemoveResult struct {
	Removed        *rib.Entry
	KeyGone        bool
	Corrupted      bool
	Withdraw       bool
	NexthopUpdates []nexthop.Update
}

// RemoveRoute removes target (already located by the caller via
// Table.Find/rib.MatchGW) and runs the post-removal nexthop fast path: only
// registrations that depended on this exact entry re-resolve (spec.md
// §4.3, §4.4).
func (t *Table) RemoveRoute(target *rib.Entry) RemoveResult {
	keyGone, corrupted := t.tbl(target.Prefix.Family).RemoveEntry(target)
	res := RemoveResult{Removed: target, KeyGone: keyGone, Corrupted: corrupted}
	if corrupted {
		return res
	}

	// Withdrawal only fires once the last path for this (prefix, prefixlen)
	// key is gone (spec.md §4.3 route.remove), and only for a key this
	// table is actually tracking as a dynamic redistribution (spec.md
	// §4.5: a statically pinned key survives a route withdrawal).
	if keyGone {
		res.Withdraw = t.Keys.Remove(redist.KeyOf(target.Prefix, 0))
	}
	t.Labels.Unref(target.LabelID)

	if resolver := t.nh(target.Prefix.Family); resolver != nil && target.Flags.Has(rib.HasNexthopDependent) {
		res.NexthopUpdates = resolver.OnRouteChanged(target.ID)
	}
	return res
}

// afterRemove runs RemoveRoute's post-removal hooks for an entry the
// caller already popped out of table storage (Registry.Free's drain).
func (t *Table) afterRemove(e *rib.Entry) {
	t.Labels.Unref(e.LabelID)
	if resolver := t.nh(e.Prefix.Family); resolver != nil && e.Flags.Has(rib.HasNexthopDependent) {
		resolver.OnRouteChanged(e.ID)
	}
}

// ChangeResult reports an update-in-place's side effects.
type ChangeResult struct {
	Entry          *rib.Entry
	Changed        bool // nexthop, ifindex, label, or flags actually moved
	Redistribute   bool
	Withdraw       bool
	NexthopUpdates []nexthop.Update
}

// ChangeRoute merges a kernel notification into existing, an already-tracked
// entry for the same (prefix, prefixlen, priority) key, instead of
// fabricating a new multipath member — spec.md §4.7 fib_change's first
// branch: "update nexthop (or clear to zero if family mismatch), ifindex,
// and track whether these changed. Re-intern route label if changed.
// Recompute flags... Emit redistribution updates on: route-label change,
// connected-flag toggles (either direction), any other flag mask delta...
// notify nexthop.on_route_change" if the entry has dependents and anything
// changed. has-nexthop-dependent itself is never touched here — only
// Insert/Remove ever flip it.
func (t *Table) ChangeRoute(existing *rib.Entry, nh addr.NexthopAddr, ifindex int, labelName string, connected, static bool, mpls uint32) ChangeResult {
	wasAccepted := t.Filter != nil && !t.NoEvaluate && t.Filter.Accept(existing, t.Labels.Name(existing.LabelID))

	newNexthop := nh
	if !nh.IsUnspec() && nh.Family != existing.Prefix.Family {
		newNexthop = addr.NexthopAddr{}
	}
	nexthopChanged := !newNexthop.Equal(existing.Nexthop)
	ifindexChanged := ifindex != existing.Ifindex
	existing.Nexthop = newNexthop
	existing.Ifindex = ifindex
	existing.MPLSLabel = mpls

	oldLabelID := existing.LabelID
	labelChanged := labelName != t.Labels.Name(oldLabelID)
	if labelChanged {
		newLabelID := t.Labels.Ref(labelName)
		t.Labels.Unref(oldLabelID)
		existing.LabelID = newLabelID
	}

	const mutable = rib.Connected | rib.Static | rib.MPLS
	oldFlags := existing.Flags
	newFlags := oldFlags &^ mutable
	if connected {
		newFlags = newFlags.Set(rib.Connected)
	}
	if static {
		newFlags = newFlags.Set(rib.Static)
	}
	if mpls != 0 {
		newFlags = newFlags.Set(rib.MPLS)
	}
	existing.Flags = newFlags
	flagsChanged := oldFlags&mutable != newFlags&mutable

	res := ChangeResult{Entry: existing}
	if labelChanged || flagsChanged {
		key := redist.KeyOf(existing.Prefix, 0)
		nowAccepted := t.Filter != nil && !t.NoEvaluate && t.Filter.Accept(existing, t.Labels.Name(existing.LabelID))
		if nowAccepted {
			res.Redistribute = t.Keys.InsertDynamic(key)
		} else if wasAccepted {
			res.Withdraw = t.Keys.Remove(key)
		}
	}

	res.Changed = nexthopChanged || ifindexChanged || labelChanged || flagsChanged
	if resolver := t.nh(existing.Prefix.Family); res.Changed && resolver != nil && existing.Flags.Has(rib.HasNexthopDependent) {
		res.NexthopUpdates = resolver.OnRouteChanged(existing.ID)
	}
	return res
}

func setDependentFlag(e *rib.Entry, resolver *nexthop.Resolver) rib.Flags {
	if resolver.HasDependents(e.ID) {
		return e.Flags.Set(rib.HasNexthopDependent)
	}
	return e.Flags.Clear(rib.HasNexthopDependent)
}
