package ktable

import "github.com/kroutesync/krsc/pkg/rib"

// Couple makes daemon-owned routes visible to the kernel again. A no-op if
// the table is already coupled (spec.md §8 couple/decouple no-op
// invariant): calling Couple twice in a row must not re-send anything the
// kernel already has. Returns the routes the caller must install.
func (t *Table) Couple() []*rib.Entry {
	if t.Coupled {
		return nil
	}
	t.Coupled = true
	if t.NoFIB {
		return nil
	}
	return t.ownedRoutes()
}

// Decouple hides daemon-owned routes from the kernel without forgetting
// them — a later Couple re-installs the same set. Also a no-op when
// already decoupled. Returns the routes the caller must withdraw.
func (t *Table) Decouple() []*rib.Entry {
	if !t.Coupled {
		return nil
	}
	t.Coupled = false
	var withdrawn []*rib.Entry
	t.V4.Range(func(e *rib.Entry) bool {
		if e.Flags.Has(rib.BGPDOwned) && e.Flags.Has(rib.BGPDInserted) {
			e.Flags = e.Flags.Clear(rib.BGPDInserted)
			withdrawn = append(withdrawn, e)
		}
		return true
	})
	t.V6.Range(func(e *rib.Entry) bool {
		if e.Flags.Has(rib.BGPDOwned) && e.Flags.Has(rib.BGPDInserted) {
			e.Flags = e.Flags.Clear(rib.BGPDInserted)
			withdrawn = append(withdrawn, e)
		}
		return true
	})
	return withdrawn
}

func (t *Table) ownedRoutes() []*rib.Entry {
	var owned []*rib.Entry
	collect := func(e *rib.Entry) bool {
		if e.Flags.Has(rib.BGPDOwned) && !e.Flags.Has(rib.BGPDInserted) {
			owned = append(owned, e)
		}
		return true
	}
	t.V4.Range(collect)
	t.V6.Range(collect)
	return owned
}
