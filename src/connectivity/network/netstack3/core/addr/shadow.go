// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package addr

// Ancestors enumerates the strict ancestors of a: the AddrVecs that are
// strictly more general bindings a would also match against. The set is
// always finite because only the device, ip-specificity, and
// connected-vs-listener axes can be relaxed; remote address/port are
// never relaxed (a Connected socket only has ancestors that are also, in
// effect, a Listener at its local address, never a less-specific peer).
func Ancestors(a AddrVec) []AddrVec {
	if c, ok := a.Conn(); ok {
		return connAncestors(c)
	}
	l, _ := a.Listener()
	return listenerAncestors(l)
}

func connAncestors(c ConnAddr) []AddrVec {
	var out []AddrVec
	if c.Device.IsSet() {
		out = append(out, NewConnAddrVec(ConnAddr{Local: c.Local, Remote: c.Remote, Device: AnyDevice}))
	}
	ips := []OptionalAddr{IP(c.Local.IP), AnyIP}
	devices := []OptionalDevice{AnyDevice}
	if c.Device.IsSet() {
		devices = []OptionalDevice{c.Device, AnyDevice}
	}
	for _, ip := range ips {
		for _, dev := range devices {
			out = append(out, NewListenerAddrVec(ListenerAddr{IP: ip, Port: c.Local.Port, Device: dev}))
		}
	}
	return out
}

func listenerAncestors(l ListenerAddr) []AddrVec {
	var out []AddrVec
	if l.IP.IsSet() {
		out = append(out, NewListenerAddrVec(ListenerAddr{IP: AnyIP, Port: l.Port, Device: l.Device}))
	}
	if l.Device.IsSet() {
		out = append(out, NewListenerAddrVec(ListenerAddr{IP: l.IP, Port: l.Port, Device: AnyDevice}))
	}
	if l.IP.IsSet() && l.Device.IsSet() {
		out = append(out, NewListenerAddrVec(ListenerAddr{IP: AnyIP, Port: l.Port, Device: AnyDevice}))
	}
	return out
}

// Equal reports structural equality of two AddrVecs.
func Equal(a, b AddrVec) bool {
	if la, ok := a.Listener(); ok {
		lb, ok2 := b.Listener()
		return ok2 && la == lb
	}
	ca, ok := a.Conn()
	if !ok {
		return false
	}
	cb, ok2 := b.Conn()
	return ok2 && ca == cb
}

// IsStrictAncestor reports whether general is a strict ancestor of
// specific, i.e. whether general appears in Ancestors(specific).
func IsStrictAncestor(general, specific AddrVec) bool {
	for _, a := range Ancestors(specific) {
		if Equal(a, general) {
			return true
		}
	}
	return false
}

// indirectCandidate is one AddrVec that participates in an indirect
// conflict check against dest (spec.md §4.1 cases a-d), paired with the
// Tag filter that must be applied to the descendant scan at that address.
// Each entry is (relatedAddr, tagFilter, reason).
type indirectCandidate struct {
	addr   AddrVec
	filter func(Tag) bool
	reason string
}

// IndirectCandidates returns the set of indirect-conflict checks relevant
// to inserting dest, per spec.md §4.1. Only listener and
// Connected(device=None) destinations can participate (a Connected
// socket with a device is already maximally specific and only
// participates as the *other* side of a listener's check, handled when
// the listener is the one being inserted or scanned).
func IndirectCandidates(dest AddrVec) []indirectCandidate {
	var out []indirectCandidate
	if l, ok := dest.Listener(); ok {
		if !l.IP.IsSet() && l.Device.IsSet() {
			// case (a): Listener(any-ip, device=Some) conflicts with
			// Connected(device=None) or Listener(specific-ip, device=None)
			// at the same port.
			out = append(out,
				indirectCandidate{
					addr:   NewListenerAddrVec(ListenerAddr{IP: AnyIP, Port: l.Port, Device: AnyDevice}),
					filter: func(t Tag) bool { return t.isConn && !t.hasDevice },
					reason: "case-a-conn",
				},
				indirectCandidate{
					addr:   NewListenerAddrVec(ListenerAddr{IP: AnyIP, Port: l.Port, Device: AnyDevice}),
					filter: func(t Tag) bool { return !t.isConn && !t.hasDevice && !t.anyIP },
					reason: "case-a-listener",
				},
			)
		}
		if l.IP.IsSet() && l.Device.IsSet() {
			// case (b): Listener(specific-ip, device=Some) conflicts with
			// Connected(device=None) at the same local (ip, port).
			out = append(out, indirectCandidate{
				addr:   NewListenerAddrVec(ListenerAddr{IP: l.IP, Port: l.Port, Device: AnyDevice}),
				filter: func(t Tag) bool { return t.isConn && !t.hasDevice },
				reason: "case-b",
			})
		}
		if l.IP.IsSet() && !l.Device.IsSet() {
			// case (c): Listener(specific-ip, device=None) conflicts with
			// Listener(any-ip, device=Some) at the same port.
			out = append(out, indirectCandidate{
				addr:   NewListenerAddrVec(ListenerAddr{IP: AnyIP, Port: l.Port, Device: AnyDevice}),
				filter: func(t Tag) bool { return !t.isConn && t.hasDevice && t.anyIP },
				reason: "case-c",
			})
		}
		return out
	}
	c, _ := dest.Conn()
	if !c.Device.IsSet() {
		// case (d): Connected(device=None) conflicts with
		// Listener(specific-ip, device=Some) at same local, and with
		// Listener(any-ip, device=Some) at same port. These are two
		// separate scans: collapsing them loses information because the
		// any-ip listener's specific-listener descendants include both
		// matching and non-matching local IPs (see Design Notes,
		// "Multicast lattice descent").
		out = append(out,
			indirectCandidate{
				addr:   NewListenerAddrVec(ListenerAddr{IP: IP(c.Local.IP), Port: c.Local.Port, Device: AnyDevice}),
				filter: func(t Tag) bool { return !t.isConn && t.hasDevice },
				reason: "case-d-specific-listener",
			},
			indirectCandidate{
				addr:   NewListenerAddrVec(ListenerAddr{IP: AnyIP, Port: c.Local.Port, Device: AnyDevice}),
				filter: func(t Tag) bool { return !t.isConn && t.hasDevice && t.anyIP },
				reason: "case-d-any-listener",
			},
		)
	}
	return out
}
