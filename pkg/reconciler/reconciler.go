package reconciler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/ktable"
	"github.com/kroutesync/krsc/pkg/nexthop"
	"github.com/kroutesync/krsc/pkg/rib"
)

// Sink delivers the outward effects the reconciler's handlers produce —
// network-add/remove for redistribution and nexthop-update for resolved
// BGP nexthops — to whatever carries them onward (pkg/ipc in production).
type Sink interface {
	NetworkAdd(tableID uint32, e *rib.Entry)
	NetworkRemove(tableID uint32, e *rib.Entry)
	NexthopUpdate(u nexthop.Update)
	SessionDependOn(ifindex int, depend iface.DependState)
}

// Reconciler is the single-threaded state machine driving every table,
// nexthop, and interface update from inbound netlink events (spec.md §5:
// one goroutine owns all mutable state; the netlink bridge's own read-loop
// goroutine only ever hands events across a channel).
type Reconciler struct {
	Registry  *ktable.Registry
	Transport Transport
	Sink      Sink
	log       *logrus.Entry

	events <-chan Event

	awaitingDump map[uint32]chan struct{}
}

// New returns a Reconciler consuming events and driving registry/transport.
func New(registry *ktable.Registry, transport Transport, sink Sink, events <-chan Event, log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		Registry:     registry,
		Transport:    transport,
		Sink:         sink,
		log:          log.WithField("component", "reconciler"),
		events:       events,
		awaitingDump: make(map[uint32]chan struct{}),
	}
}

// Run drains events until ctx is cancelled or the event channel closes.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			r.handle(ev)
		}
	}
}

func (r *Reconciler) handle(ev Event) {
	switch ev.Kind {
	case EventRouteAdd:
		r.handleRouteAdd(ev)
	case EventRouteDel:
		r.handleRouteDel(ev)
	case EventLinkUpdate:
		r.handleLinkUpdate(ev)
	case EventLinkDel:
		r.handleLinkDel(ev)
	case EventDumpDone:
		r.handleDumpDone(ev)
	default:
		r.log.WithField("kind", ev.Kind).Warn("unknown event kind")
	}
}

func (r *Reconciler) handleRouteAdd(ev Event) {
	t := r.Registry.Get(ev.TableID)
	if t == nil {
		r.log.WithField("table", ev.TableID).Debug("route add for unknown table, dropped")
		return
	}
	if t.NoFIB {
		return
	}
	if ev.Protocol == ProtocolBGPD {
		r.handleOwnedEcho(t, ev)
		return
	}

	// spec.md §4.7 fib_change point 1: a notification for a
	// (prefix, prefixlen, priority) key this table already tracks updates
	// the matching chain member in place rather than fabricating a new
	// multipath path. A single-path key has only one candidate regardless
	// of what the notification's own gateway says (that is exactly what
	// may be changing); a multipath chain narrows by gateway the way
	// fib_delete's match_gw does; no match among several existing paths
	// means this is a genuine new multipath member, which falls through
	// to insert.
	chain := t.FindChain(ev.Prefix, ev.Priority)
	var existing *rib.Entry
	switch len(chain) {
	case 0:
	case 1:
		existing = chain[0]
	default:
		existing = rib.MatchGW(chain, ev.Connected, ev.Ifindex, ev.Nexthop)
	}
	if existing != nil {
		res := t.ChangeRoute(existing, ev.Nexthop, ev.Ifindex, ev.Label, ev.Connected, ev.Static, ev.MPLS)
		if res.Redistribute && r.Sink != nil {
			r.Sink.NetworkAdd(ev.TableID, existing)
		}
		if res.Withdraw && r.Sink != nil {
			r.Sink.NetworkRemove(ev.TableID, existing)
		}
		r.deliver(res.NexthopUpdates)
		return
	}

	e := &rib.Entry{
		Prefix:    ev.Prefix,
		Nexthop:   ev.Nexthop,
		Ifindex:   ev.Ifindex,
		Priority:  ev.Priority,
		MPLSLabel: ev.MPLS,
		LabelID:   t.Labels.Ref(ev.Label),
	}
	if ev.Connected {
		e.Flags = e.Flags.Set(rib.Connected)
	}
	if ev.Static {
		e.Flags = e.Flags.Set(rib.Static)
	}
	if ev.MPLS != 0 {
		e.Flags = e.Flags.Set(rib.MPLS)
	}

	res := t.InsertRoute(e)
	if res.Redistribute && r.Sink != nil {
		r.Sink.NetworkAdd(ev.TableID, e)
	}
	r.deliver(res.NexthopUpdates)
}

func (r *Reconciler) handleRouteDel(ev Event) {
	t := r.Registry.Get(ev.TableID)
	if t == nil {
		r.log.WithField("table", ev.TableID).Debug("route delete for unknown table, dropped")
		return
	}
	chain := t.FindChain(ev.Prefix, ev.Priority)
	if len(chain) == 0 {
		r.log.WithField("prefix", ev.Prefix.String()).Debug("route delete for unknown route, dropped")
		return
	}
	target := chain[0]
	if ev.Multipath {
		target = rib.MatchGW(chain, ev.Connected, ev.Ifindex, ev.Nexthop)
		if target == nil {
			r.log.WithField("prefix", ev.Prefix.String()).Debug("route delete matched no multipath member, dropped")
			return
		}
	}

	res := t.RemoveRoute(target)
	if res.Corrupted {
		r.log.WithField("prefix", ev.Prefix.String()).Error("multipath chain corruption on remove")
		return
	}
	if res.Withdraw && r.Sink != nil {
		r.Sink.NetworkRemove(ev.TableID, target)
	}
	r.deliver(res.NexthopUpdates)
}

func (r *Reconciler) handleLinkUpdate(ev Event) {
	existing := r.Registry.Ifaces.Find(ev.Ifindex)
	var changed bool
	if existing == nil {
		r.Registry.Ifaces.Insert(&iface.Record{
			Ifindex:   ev.Ifindex,
			Name:      ev.LinkName,
			Flags:     ev.LinkFlags,
			LinkState: toLinkState(ev.LinkState),
		})
		changed = true
	} else {
		existing.Flags = ev.LinkFlags
		existing.LinkState = toLinkState(ev.LinkState)
		changed = iface.UpdateReachability(existing)
	}
	if changed {
		r.deliver(r.Registry.TrackIfindex(ev.Ifindex))
		r.staleDepend(existing)
	}
}

func (r *Reconciler) handleLinkDel(ev Event) {
	rec := r.Registry.Ifaces.Remove(ev.Ifindex, func(ifindex int) {
		r.deliver(r.Registry.TrackIfindex(ifindex))
	})
	r.staleDepend(rec)
}

// staleDepend flips an active session dependency to stale and notifies the
// sink once a tracked interface becomes unreachable, mirroring
// kif_depend_state's treatment of session-dependon (spec.md §4.2/§6). It is
// a no-op for interfaces with no active dependency, or that are still
// reachable.
func (r *Reconciler) staleDepend(rec *iface.Record) {
	if rec == nil || rec.NHReachable() || rec.Depend != iface.DependActive {
		return
	}
	rec.Depend = iface.DependStale
	if r.Sink != nil {
		r.Sink.SessionDependOn(rec.Ifindex, rec.Depend)
	}
}

func (r *Reconciler) handleDumpDone(ev Event) {
	ch, ok := r.awaitingDump[ev.Seq]
	if !ok {
		return
	}
	delete(r.awaitingDump, ev.Seq)
	close(ch)
}

// AwaitDump registers interest in the dump identified by seq, returning a
// channel that closes once the matching EventDumpDone arrives. Callers send
// the dump request through Transport themselves before blocking on the
// channel, so the correlation window opens before the request is sent.
func (r *Reconciler) AwaitDump(seq uint32) <-chan struct{} {
	ch := make(chan struct{})
	r.awaitingDump[seq] = ch
	return ch
}

func (r *Reconciler) deliver(updates []nexthop.Update) {
	if r.Sink == nil {
		return
	}
	for _, u := range updates {
		r.Sink.NexthopUpdate(u)
	}
}

func toLinkState(h LinkStateHint) iface.LinkState {
	switch h {
	case LinkUp:
		return iface.LinkStateUp
	case LinkDown:
		return iface.LinkStateDown
	default:
		return iface.LinkStateUnknown
	}
}
