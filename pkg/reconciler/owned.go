package reconciler

import (
	"fmt"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/krerr"
	"github.com/kroutesync/krsc/pkg/ktable"
	"github.com/kroutesync/krsc/pkg/rib"
)

// InstallRoute is the BGP session layer's entry point for adding a
// daemon-owned route: unowned -> owned-not-installed immediately, then
// owned-not-installed -> owned-installed as soon as the kernel send
// succeeds (sendInstall). The kernel's own echo of that add later clears
// bgpd-inserted again (handleOwnedEcho) — it confirms the kernel's state
// matches what we sent, so there is nothing left to reconcile, not that
// installation just completed (spec.md §4.7). If the table is decoupled or
// no-fib, the route stays owned-not-installed until a later Couple.
func (r *Reconciler) InstallRoute(tableID uint32, prefix addr.Prefix, nexthop addr.NexthopAddr, priority uint8) (*rib.Entry, error) {
	t := r.Registry.Get(tableID)
	if t == nil {
		return nil, fmt.Errorf("reconciler: install route: %w", krerr.ErrUnknownTable)
	}
	e := &rib.Entry{
		Prefix:   prefix,
		Nexthop:  nexthop,
		Priority: priority,
		Flags:    rib.BGPDOwned,
	}
	t.InsertRoute(e)

	if !t.Coupled || t.NoFIB {
		return e, nil
	}
	if err := r.sendInstall(e); err != nil {
		return e, err
	}
	return e, nil
}

// WithdrawRoute reverses InstallRoute: sends the kernel delete (if the
// route was actually installed) and removes it from the table.
func (r *Reconciler) WithdrawRoute(tableID uint32, e *rib.Entry) error {
	t := r.Registry.Get(tableID)
	if t == nil {
		return fmt.Errorf("reconciler: withdraw route: %w", krerr.ErrUnknownTable)
	}
	if e.Flags.Has(rib.BGPDInserted) {
		if err := r.sendWithdraw(e); err != nil {
			return err
		}
	}
	res := t.RemoveRoute(e)
	r.deliver(res.NexthopUpdates)
	return nil
}

// sendInstall sends the kernel add/change for e and, on success, marks it
// installed — the state machine's "kr_change/couple → send RTM_ADD/CHANGE;
// on success mark installed" transition (spec.md §4.7). A send failure
// leaves bgpd-inserted untouched; it is not retried synchronously.
func (r *Reconciler) sendInstall(e *rib.Entry) error {
	err := r.Transport.Send(Msg{
		Kind:     MsgRouteAdd,
		Family:   e.Prefix.Family,
		Prefix:   e.Prefix,
		Nexthop:  e.Nexthop,
		Ifindex:  e.Ifindex,
		Priority: e.Priority,
		MPLS:     e.MPLSLabel,
	})
	if err != nil {
		return fmt.Errorf("reconciler: install route: %w", krerr.ErrTransport)
	}
	e.Flags = e.Flags.Set(rib.BGPDInserted)
	return nil
}

func (r *Reconciler) sendWithdraw(e *rib.Entry) error {
	err := r.Transport.Send(Msg{
		Kind:     MsgRouteDel,
		Family:   e.Prefix.Family,
		Prefix:   e.Prefix,
		Nexthop:  e.Nexthop,
		Ifindex:  e.Ifindex,
		Priority: e.Priority,
		MPLS:     e.MPLSLabel,
	})
	if err != nil {
		return fmt.Errorf("reconciler: withdraw route: %w", krerr.ErrTransport)
	}
	return nil
}

// handleOwnedEcho matches an inbound kernel notification against the
// daemon-owned route it confirms and clears bgpd-inserted: the echo of our
// own add means the kernel now holds this exact state, so there is nothing
// left to re-send (spec.md §4.7 fib_change point 2, "echo of our own add →
// clear installed").
func (r *Reconciler) handleOwnedEcho(t *ktable.Table, ev Event) {
	chain := t.FindChain(ev.Prefix, rib.PriorityMine)
	for _, e := range chain {
		if e.Flags.Has(rib.BGPDOwned) && e.Nexthop.Equal(ev.Nexthop) {
			e.Flags = e.Flags.Clear(rib.BGPDInserted)
			return
		}
	}
}

// Couple transitions a table to coupled, sending an install for every
// owned-not-installed route.
func (r *Reconciler) Couple(tableID uint32) error {
	t := r.Registry.Get(tableID)
	if t == nil {
		return fmt.Errorf("reconciler: couple: %w", krerr.ErrUnknownTable)
	}
	for _, e := range t.Couple() {
		if err := r.sendInstall(e); err != nil {
			return err
		}
	}
	return nil
}

// Decouple transitions a table to decoupled, withdrawing every installed
// owned route without forgetting it.
func (r *Reconciler) Decouple(tableID uint32) error {
	t := r.Registry.Get(tableID)
	if t == nil {
		return fmt.Errorf("reconciler: decouple: %w", krerr.ErrUnknownTable)
	}
	for _, e := range t.Decouple() {
		if err := r.sendWithdraw(e); err != nil {
			return err
		}
	}
	return nil
}
