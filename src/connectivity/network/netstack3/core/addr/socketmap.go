// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package addr

import "fmt"

// InsertError is returned by TryInsert when a new binding would conflict
// with an existing one.
type InsertError int

const (
	_ InsertError = iota
	ErrShadowAddrExists
	ErrShadowerExists
	ErrIndirectConflict
	ErrExists
)

func (e InsertError) Error() string {
	switch e {
	case ErrShadowAddrExists:
		return "shadow addr exists"
	case ErrShadowerExists:
		return "shadower exists"
	case ErrIndirectConflict:
		return "indirect conflict"
	case ErrExists:
		return "exists"
	default:
		return fmt.Sprintf("InsertError(%d)", int(e))
	}
}

// PosixAddrState is the value stored at an occupied AddrVec: either a
// single exclusive owner or the set of ids sharing the address under
// ReusePort.
type PosixAddrState struct {
	sharing Sharing
	ids     []SocketID
}

func (s PosixAddrState) Sharing() Sharing    { return s.sharing }
func (s PosixAddrState) IDs() []SocketID     { return append([]SocketID(nil), s.ids...) }
func (s PosixAddrState) Exclusive() (SocketID, bool) {
	if s.sharing == Exclusive && len(s.ids) == 1 {
		return s.ids[0], true
	}
	return 0, false
}

// bound is one occupied slot in the SocketMap.
type bound struct {
	addr  AddrVec
	state PosixAddrState
}

// SocketMap indexes bound sockets by AddrVec, enforcing the POSIX sharing
// rules of spec.md §4.1 on insert.
type SocketMap struct {
	byKey map[Key]*bound
	byID  map[SocketID]*bound
}

// NewSocketMap constructs an empty map.
func NewSocketMap() *SocketMap {
	return &SocketMap{
		byKey: make(map[Key]*bound),
		byID:  make(map[SocketID]*bound),
	}
}

// TryInsert attempts to bind id at addr under sharing. addr.Port() must be
// nonzero; callers are responsible for ephemeral port allocation before
// calling TryInsert.
func (m *SocketMap) TryInsert(id SocketID, a AddrVec, sharing Sharing) (SocketID, error) {
	if a.Port() == 0 {
		panic("addr: TryInsert with zero port")
	}
	if err := m.checkPosixSharing(sharing, a); err != nil {
		return 0, err
	}
	key := a.Key()
	if b, ok := m.byKey[key]; ok {
		// Exact-key collision: allowed only when both sides are
		// ReusePort.
		if b.state.sharing != ReusePort || sharing != ReusePort {
			return 0, ErrExists
		}
		b.state.ids = append(b.state.ids, id)
		m.byID[id] = b
		return id, nil
	}
	b := &bound{addr: a, state: PosixAddrState{sharing: sharing, ids: []SocketID{id}}}
	m.byKey[key] = b
	m.byID[id] = b
	return id, nil
}

// checkPosixSharing implements spec.md §4.1's three-step algorithm.
func (m *SocketMap) checkPosixSharing(sharing Sharing, dest AddrVec) error {
	// Step 1: shadow-up.
	for _, a := range Ancestors(dest) {
		if b, ok := m.byKey[a.Key()]; ok {
			if b.state.sharing != ReusePort || sharing != ReusePort {
				return ErrShadowAddrExists
			}
		}
	}

	// Step 2: shadow-down, only meaningful for Listener or
	// Connected(device=None) destinations.
	if l, ok := dest.Listener(); ok {
		_ = l
		if m.hasNonShareableDescendant(dest, sharing) {
			return ErrShadowerExists
		}
	} else if c, ok := dest.Conn(); ok && !c.Device.IsSet() {
		if m.hasNonShareableDescendant(dest, sharing) {
			return ErrShadowerExists
		}
	}

	// Step 3: indirect conflicts.
	for _, cand := range IndirectCandidates(dest) {
		count, anyShareable := m.descendantCountFiltered(cand.addr, cand.filter)
		if count > 0 && !(sharing == ReusePort && anyShareable) {
			return ErrIndirectConflict
		}
	}
	return nil
}

// hasNonShareableDescendant scans the whole map for entries that are
// strict descendants of dest and reports whether any of them (together
// with the about-to-be-inserted sharing mode) would produce a
// non-ReusePort/ReusePort mismatch.
func (m *SocketMap) hasNonShareableDescendant(dest AddrVec, sharing Sharing) bool {
	for _, b := range m.byKey {
		if !IsStrictAncestor(dest, b.addr) {
			continue
		}
		if b.state.sharing != ReusePort || sharing != ReusePort {
			return true
		}
	}
	return false
}

// descendantCountFiltered counts entries that are strict descendants of
// related and match filter, and reports whether all matching entries are
// ReusePort (so a ReusePort insert can coexist with them).
func (m *SocketMap) descendantCountFiltered(related AddrVec, filter func(Tag) bool) (count int, allReusePort bool) {
	allReusePort = true
	for _, b := range m.byKey {
		if !IsStrictAncestor(related, b.addr) {
			continue
		}
		if !filter(TagOf(b.addr)) {
			continue
		}
		count++
		if b.state.sharing != ReusePort {
			allReusePort = false
		}
	}
	return count, allReusePort
}

// DescendantCounts groups the counts of strict descendants of a by Tag,
// for diagnostics and for the indirect-conflict algorithm.
func (m *SocketMap) DescendantCounts(a AddrVec) map[Tag]int {
	counts := make(map[Tag]int)
	for _, b := range m.byKey {
		if IsStrictAncestor(a, b.addr) {
			counts[TagOf(b.addr)]++
		}
	}
	return counts
}

// IterShadows returns the strict ancestors of a that are present in the
// map, most general last (the order Ancestors produces).
func (m *SocketMap) IterShadows(a AddrVec) []AddrVec {
	var out []AddrVec
	for _, anc := range Ancestors(a) {
		if _, ok := m.byKey[anc.Key()]; ok {
			out = append(out, anc)
		}
	}
	return out
}

// GetByAddr returns the PosixAddrState bound at a, if any.
func (m *SocketMap) GetByAddr(a AddrVec) (PosixAddrState, bool) {
	b, ok := m.byKey[a.Key()]
	if !ok {
		return PosixAddrState{}, false
	}
	return b.state, true
}

// GetByID returns the AddrVec id is bound at.
func (m *SocketMap) GetByID(id SocketID) (AddrVec, bool) {
	b, ok := m.byID[id]
	if !ok {
		return AddrVec{}, false
	}
	return b.addr, true
}

// RemoveByID unbinds id. It panics if id is not present: removing an
// unknown id is a programmer error (spec.md §7).
func (m *SocketMap) RemoveByID(id SocketID) {
	b, ok := m.byID[id]
	if !ok {
		panic(fmt.Sprintf("addr: RemoveByID: unknown id %d", id))
	}
	delete(m.byID, id)
	if len(b.state.ids) == 1 {
		delete(m.byKey, b.addr.Key())
		return
	}
	filtered := b.state.ids[:0]
	for _, existing := range b.state.ids {
		if existing != id {
			filtered = append(filtered, existing)
		}
	}
	b.state.ids = filtered
}

// UpdateAddr recomputes id's AddrVec via f and re-validates sharing at the
// new address, leaving the map untouched on error.
func (m *SocketMap) UpdateAddr(id SocketID, f func(AddrVec) AddrVec) error {
	b, ok := m.byID[id]
	if !ok {
		panic(fmt.Sprintf("addr: UpdateAddr: unknown id %d", id))
	}
	newAddr := f(b.addr)
	if Equal(newAddr, b.addr) {
		return nil
	}
	sharing := b.state.sharing
	m.RemoveByID(id)
	if _, err := m.TryInsert(id, newAddr, sharing); err != nil {
		// Roll back: re-insert at the old address. This cannot itself
		// fail because the old address was valid a moment ago and no
		// other mutation has occurred between remove and re-insert.
		if _, rerr := m.TryInsert(id, b.addr, sharing); rerr != nil {
			panic(fmt.Sprintf("addr: UpdateAddr: failed to roll back: %v", rerr))
		}
		return err
	}
	return nil
}

// IterAddrs calls f for every occupied AddrVec in the map.
func (m *SocketMap) IterAddrs(f func(AddrVec, PosixAddrState)) {
	for _, b := range m.byKey {
		f(b.addr, b.state)
	}
}
