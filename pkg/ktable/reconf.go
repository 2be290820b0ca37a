package ktable

// Preload marks every existing table ReconfDelete, the first half of the
// two-phase config reload: a table survives only if something in the new
// configuration touches it again before Postload runs (spec.md §3
// "Supplemented data": three-way table reconfiguration state).
func (r *Registry) Preload() {
	for _, t := range r.tables {
		t.reconf = ReconfDelete
	}
}

// Touch marks an existing table ReconfKeep (it appeared again in the new
// configuration and keeps its current contents), or creates it fresh with
// ReconfReinit if it didn't exist before this reload.
func (r *Registry) Touch(id uint32, name string, nhOwnerID uint32) (*Table, error) {
	if t, ok := r.tables[id]; ok {
		t.reconf = ReconfKeep
		t.Name = name
		return t, nil
	}
	t, err := r.New(id, name, nhOwnerID, nil)
	if err != nil {
		return nil, err
	}
	t.reconf = ReconfReinit
	return t, nil
}

// Postload frees every table still marked ReconfDelete — the config reload
// never touched it again, so it is gone — and returns their ids.
func (r *Registry) Postload() []uint32 {
	// Collect ids before freeing: Free mutates r.tables, which must not
	// happen while still ranging over it.
	var freed []uint32
	for id, t := range r.tables {
		if t.reconf == ReconfDelete {
			freed = append(freed, id)
		}
	}
	for _, id := range freed {
		_ = r.Free(id)
	}
	return freed
}

// ReconfState reports a table's current reconfiguration marker, for tests
// and show-* diagnostics.
func (t *Table) ReconfState() ReconfState { return t.reconf }
