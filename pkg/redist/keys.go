package redist

import "github.com/kroutesync/krsc/pkg/addr"

// Key identifies one RedistributionKey: a (prefix, prefixlen,
// route-distinguisher) triple (spec.md §3). RD is always zero for the v4/v6
// families this daemon installs into the kernel; it exists so the VPN
// families spec.md carries in the data model (but does not install) have
// somewhere to put a distinguisher without widening every non-VPN caller.
type Key struct {
	bytes string
	len   int
	rd    uint64
}

// KeyOf builds the Key for p with route-distinguisher rd (0 outside the
// VPN families).
func KeyOf(p addr.Prefix, rd uint64) Key {
	masked := addr.Mask(p, p.Length)
	return Key{bytes: string(masked.Bytes), len: masked.Length, rd: rd}
}

type keyState struct {
	dynamic bool
	old     bool
}

// KeySet is the redistribution-key set a RoutingTable owns (spec.md §3,
// invariant 5): which (prefix, prefixlen, rd) triples are currently
// announced, and whether each was matched dynamically by a network
// statement or pinned statically by configuration. A static entry for a
// key always wins over a dynamic one (spec.md §4.5).
type KeySet struct {
	keys map[Key]keyState
}

// NewKeySet returns an empty redistribution-key set.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[Key]keyState)}
}

// InsertDynamic records k as dynamically announced, reporting whether an
// "add" should be emitted. Spec.md §4.5's collision rule: an existing
// static key always wins (no emit, no state change); an existing dynamic
// key re-emits (the route's attributes may have changed even though the
// key itself didn't); a fresh key emits.
func (s *KeySet) InsertDynamic(k Key) (emit bool) {
	st, ok := s.keys[k]
	if ok && !st.dynamic {
		return false
	}
	s.keys[k] = keyState{dynamic: true, old: false}
	return true
}

// InsertStatic records k as a statically configured announcement,
// unconditionally overwriting any dynamic match for the same key and
// re-emitting — spec.md §4.5: "collisions where the new entry is
// non-dynamic reset the dynamic flag and re-emit."
func (s *KeySet) InsertStatic(k Key) (emit bool) {
	s.keys[k] = keyState{dynamic: false, old: false}
	return true
}

// Remove drops k if it is marked dynamic and reports whether a withdrawal
// should be emitted. A statically pinned key survives a route withdrawal —
// spec.md §4.5: "drop the RedistributionKey if marked dynamic and emit
// withdrawal" implies a static key is left alone.
func (s *KeySet) Remove(k Key) (emit bool) {
	st, ok := s.keys[k]
	if !ok || !st.dynamic {
		return false
	}
	delete(s.keys, k)
	return true
}

// Contains reports whether k is currently announced (dynamically or
// statically).
func (s *KeySet) Contains(k Key) bool {
	_, ok := s.keys[k]
	return ok
}

// Len reports the number of tracked keys, for tests.
func (s *KeySet) Len() int { return len(s.keys) }

// MarkOld marks every currently tracked key old — the first half of the
// network-statement reconfiguration's two-phase commit (spec.md §4.6
// preload/postload, applied to networks rather than tables).
func (s *KeySet) MarkOld() {
	for k, st := range s.keys {
		st.old = true
		s.keys[k] = st
	}
}

// clearOld clears k's old mark without otherwise touching its state,
// called by InsertDynamic/InsertStatic's reconfiguration-time callers so a
// key touched again during reload survives Postload.
func (s *KeySet) clearOld(k Key) {
	if st, ok := s.keys[k]; ok {
		st.old = false
		s.keys[k] = st
	}
}

// ReapplyDynamic is InsertDynamic plus clearing k's old mark, for use while
// reapplying configuration after MarkOld (spec.md §4.6 "configuration
// reapplication clears the marks on still-present items").
func (s *KeySet) ReapplyDynamic(k Key) (emit bool) {
	emit = s.InsertDynamic(k)
	s.clearOld(k)
	return emit
}

// ReapplyStatic is InsertStatic plus clearing k's old mark.
func (s *KeySet) ReapplyStatic(k Key) (emit bool) {
	emit = s.InsertStatic(k)
	s.clearOld(k)
	return emit
}

// Postload removes every key still marked old — the reload never touched
// it again — and returns them, so the caller can emit withdrawals
// (spec.md §4.6 postload: "removes networks still marked old").
func (s *KeySet) Postload() []Key {
	var removed []Key
	for k, st := range s.keys {
		if st.old {
			removed = append(removed, k)
			delete(s.keys, k)
		}
	}
	return removed
}
