package ktable

import (
	"testing"

	"github.com/kroutesync/krsc/pkg/redist"
)

// TestRemoveInteriorMultipathMemberDoesNotWithdraw exercises spec.md §4.3's
// "redistribution withdrawal is emitted only when the last entry for the
// (prefix, prefixlen) key is gone": removing one of two multipath members
// must not withdraw the network-add the head already triggered.
func TestRemoveInteriorMultipathMemberDoesNotWithdraw(t *testing.T) {
	reg := newRegistryWithUpInterface(2)
	main, _ := reg.New(254, "main", 0, redist.NewFilter([]redist.NetworkStatement{{Kind: redist.StatementConnected}}))

	head := connectedRoute(10, 24, 2)
	if res := main.InsertRoute(head); !res.Redistribute {
		t.Fatal("expected the head insert to redistribute")
	}
	backup := connectedRoute(10, 24, 2)
	main.InsertRoute(backup)

	res := main.RemoveRoute(backup)
	if res.KeyGone {
		t.Fatal("a surviving chain member must not report the key as gone")
	}
	if res.Withdraw {
		t.Fatal("removing a backup multipath member must not withdraw the announcement")
	}

	final := main.RemoveRoute(head)
	if !final.KeyGone {
		t.Fatal("removing the last path for the key must report the key as gone")
	}
	if !final.Withdraw {
		t.Fatal("removing the last path for a dynamically announced key must withdraw it")
	}
}

// TestStaticPinSurvivesRouteWithdrawal checks that a key
// recorded as a static network-statement pin (never inserted dynamically)
// is left untouched by RemoveRoute — only a dynamic key is ever dropped on
// withdrawal (spec.md §4.5).
func TestStaticPinSurvivesRouteWithdrawal(t *testing.T) {
	reg := newRegistryWithUpInterface(2)
	main, _ := reg.New(254, "main", 0, redist.NewFilter(nil))

	route := connectedRoute(10, 24, 2)
	main.V4.Insert(route)
	key := redist.KeyOf(route.Prefix, 0)
	main.Keys.InsertStatic(key)

	res := main.RemoveRoute(route)
	if res.Withdraw {
		t.Fatal("a statically pinned key must not be withdrawn by a route removal")
	}
	if !main.Keys.Contains(key) {
		t.Fatal("the static pin must survive the route's removal from the table")
	}
}
