package netlinkbridge

import (
	"testing"

	"github.com/kroutesync/krsc/pkg/addr"
	"github.com/kroutesync/krsc/pkg/reconciler"
)

func TestSimTransportEchoesAcceptedSend(t *testing.T) {
	sim := NewSimTransport(254, 4)
	msg := reconciler.Msg{
		Kind:   reconciler.MsgRouteAdd,
		Prefix: addr.Prefix{Family: addr.V4, Bytes: []byte{192, 0, 2, 1}, Length: 32},
	}
	if err := sim.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case ev := <-sim.Events():
		if ev.Kind != reconciler.EventRouteAdd || ev.Protocol != reconciler.ProtocolBGPD {
			t.Fatalf("unexpected echo event: %+v", ev)
		}
	default:
		t.Fatal("expected an echo event to be queued")
	}
	if len(sim.Sent()) != 1 {
		t.Fatalf("got %d sent messages, want 1", len(sim.Sent()))
	}
}

func TestSimTransportRejectSuppressesEcho(t *testing.T) {
	sim := NewSimTransport(254, 4)
	sim.Reject = func(reconciler.Msg) bool { return true }
	if err := sim.Send(reconciler.Msg{Kind: reconciler.MsgRouteAdd}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case ev := <-sim.Events():
		t.Fatalf("expected no echo event, got %+v", ev)
	default:
	}
}
