package ipc

import "testing"

func TestRouteKeyIsDistinctPerPriority(t *testing.T) {
	a := routeKey(254, "10.0.0.0/24", 0)
	b := routeKey(254, "10.0.0.0/24", 1)
	if a == b {
		t.Fatal("routeKey must differ across priorities for the same table/prefix")
	}
}

func TestRouteKeyIsDistinctPerTable(t *testing.T) {
	a := routeKey(254, "10.0.0.0/24", 0)
	b := routeKey(255, "10.0.0.0/24", 0)
	if a == b {
		t.Fatal("routeKey must differ across tables for the same prefix/priority")
	}
}

func TestNexthopKeyIsTheAddressItself(t *testing.T) {
	if nexthopKey("192.0.2.1") != "192.0.2.1" {
		t.Fatal("nexthopKey should pass the address through unchanged")
	}
}
