package cli

import (
	"fmt"

	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/ktable"
	"github.com/kroutesync/krsc/pkg/nexthop"
	"github.com/kroutesync/krsc/pkg/rib"
)

// flagLetters renders a route's flag bits as the single-letter summary
// shown in the FLAGS column, in a fixed order so output is stable across
// runs.
func flagLetters(f rib.Flags) string {
	letters := ""
	for _, pair := range []struct {
		bit    rib.Flags
		letter string
	}{
		{rib.Connected, "C"},
		{rib.Static, "S"},
		{rib.Blackhole, "B"},
		{rib.Reject, "R"},
		{rib.BGPDOwned, "o"},
		{rib.BGPDInserted, "i"},
		{rib.MPLS, "m"},
	} {
		if f.Has(pair.bit) {
			letters += pair.letter
		}
	}
	if letters == "" {
		return "-"
	}
	return letters
}

func priorityString(p uint8) string {
	switch p {
	case rib.PriorityAny:
		return "any"
	case rib.PriorityMine:
		return "mine"
	default:
		return fmt.Sprintf("%d", p)
	}
}

// ShowKRoute renders every route a FindChain-style lookup returned,
// one row per multipath member, for the `show kroute` command.
func ShowKRoute(entries []*rib.Entry) {
	t := NewTable("PREFIX", "NEXTHOP", "IFINDEX", "PRIORITY", "FLAGS")
	for _, e := range entries {
		nh := "-"
		if !e.Nexthop.IsUnspec() {
			nh = e.Nexthop.String()
		}
		t.Row(e.Prefix.String(), nh, fmt.Sprintf("%d", e.Ifindex), priorityString(e.Priority), flagLetters(e.Flags))
	}
	t.Flush()
}

// ShowNexthop renders the resolution state of every tracked registration
// for the `show nexthop` command.
func ShowNexthop(regs []*nexthop.Registration) {
	t := NewTable("NEXTHOP", "STATE", "TRUE-NEXTHOP", "IFINDEX", "REFCOUNT")
	for _, r := range regs {
		state := "invalid"
		if r.State == nexthop.StateValid {
			state = "valid"
		}
		trueNH := "-"
		if !r.TrueNexthop.IsUnspec() {
			trueNH = r.TrueNexthop.String()
		}
		t.Row(r.Nexthop.String(), state, trueNH, fmt.Sprintf("%d", r.Ifindex), fmt.Sprintf("%d", r.RefCount))
	}
	t.Flush()
}

// ShowInterface renders the tracked interface set for the `show interface`
// command.
func ShowInterface(records []*iface.Record) {
	t := NewTable("IFINDEX", "NAME", "STATE", "UP", "NH-REACHABLE")
	for _, r := range records {
		state := "unknown"
		switch r.LinkState {
		case iface.LinkStateUp:
			state = "up"
		case iface.LinkStateDown:
			state = "down"
		}
		up := "no"
		if r.IsUp() {
			up = "yes"
		}
		reachable := "no"
		if r.NHReachable() {
			reachable = "yes"
		}
		t.Row(fmt.Sprintf("%d", r.Ifindex), r.Name, state, up, reachable)
	}
	t.Flush()
}

// ShowFIBTables renders the registry's table set for the `show fib-tables`
// command.
func ShowFIBTables(tables []*ktable.Table) {
	t := NewTable("ID", "NAME", "COUPLED", "NO-FIB", "NO-FIB-SYNC", "NO-EVALUATE")
	for _, tbl := range tables {
		t.Row(
			fmt.Sprintf("%d", tbl.ID),
			tbl.Name,
			yesNo(tbl.Coupled),
			yesNo(tbl.NoFIB),
			yesNo(tbl.NoFIBSync),
			yesNo(tbl.NoEvaluate),
		)
	}
	t.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
