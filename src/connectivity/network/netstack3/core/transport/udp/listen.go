// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp

import (
	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// Listen transitions id from Unbound to Listener, binding to ip (if set)
// and port (if nonzero; 0 requests an ephemeral listen port per spec.md
// §4.4).
func (c *Core) Listen(id addr.SocketID, ip addr.OptionalAddr, port addr.Port) (addr.SocketID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.unbound[id]
	if !ok {
		panic("udp: Listen: unknown unbound id")
	}
	if port == 0 {
		used := usedListenPortsFor(c.socketMap, ip)
		p, ok := c.alloc.TryAllocListenPort(used)
		if !ok {
			return 0, ErrFailedToAllocateLocalPort
		}
		port = p
	}

	newAddr := addr.NewListenerAddrVec(addr.ListenerAddr{IP: ip, Port: port, Device: u.device})
	listenerID := allocID(&c.nextListenerID, &c.freeListener)
	if _, err := c.socketMap.TryInsert(listenerID, newAddr, u.sharing); err != nil {
		c.freeListener = append(c.freeListener, listenerID)
		return 0, mapInsertError(err)
	}

	delete(c.unbound, id)
	c.freeUnbound = append(c.freeUnbound, id)
	c.listeners[listenerID] = &listenerSocket{
		options:     u.options,
		memberships: u.memberships,
	}
	return listenerID, nil
}

// usedListenPortsFor computes used_ports honoring the requested bind IP:
// an unspecified bind IP must avoid every occupied port regardless of
// that occupant's IP (it would shadow all of them), while a specific bind
// IP only needs to avoid ports used at that IP or at the wildcard.
func usedListenPortsFor(m *addr.SocketMap, ip addr.OptionalAddr) map[addr.Port]struct{} {
	if !ip.IsSet() {
		used := make(map[addr.Port]struct{})
		m.IterAddrs(func(a addr.AddrVec, _ addr.PosixAddrState) {
			used[a.Port()] = struct{}{}
		})
		return used
	}
	return usedListenPortsAt(m, ip.Get())
}

func usedListenPortsAt(m *addr.SocketMap, ip tcpip.Address) map[addr.Port]struct{} {
	used := make(map[addr.Port]struct{})
	m.IterAddrs(func(a addr.AddrVec, _ addr.PosixAddrState) {
		if l, ok := a.Listener(); ok {
			if !l.IP.IsSet() || l.IP.Get() == ip {
				used[l.Port] = struct{}{}
			}
			return
		}
		if conn, ok := a.Conn(); ok && conn.Local.IP == ip {
			used[conn.Local.Port] = struct{}{}
		}
	})
	return used
}

func mapInsertError(err error) error {
	switch err {
	case addr.ErrShadowAddrExists, addr.ErrShadowerExists, addr.ErrIndirectConflict, addr.ErrExists:
		return ErrAddressInUse
	default:
		return err
	}
}
