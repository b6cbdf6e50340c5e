// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp

import (
	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/ipsocket"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/ports"
)

// Connect transitions id from Unbound to Connected: an IP socket is
// created to remoteIP, and the result is inserted into the SocketMap at
// (localIP, localPort)->(remoteIP, remotePort). If localPort is 0, a
// local port is allocated (flow-keyed, spec.md §4.4); otherwise the
// caller's explicit port is used as-is and a collision surfaces as
// ErrAddressInUse (spec.md §7), matching the original's behavior for a
// socket that was already bound to a local port before connecting.
func (c *Core) Connect(id addr.SocketID, localIP addr.OptionalAddr, localPort addr.Port, remoteIP tcpip.Address, remotePort addr.Port) (addr.SocketID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.unbound[id]
	if !ok {
		panic("udp: Connect: unknown unbound id")
	}

	sock, err := c.ips.NewIPSocket(u.device, localIP, remoteIP, ipsocket.UDP, u.options)
	if err != nil {
		return 0, SendError{Create: err.(ipsocket.Error)}
	}

	if localPort == 0 {
		localPort, err = c.allocLocalPortLocked(sock.LocalIP, remoteIP, remotePort, u.device)
		if err != nil {
			return 0, err
		}
	}

	newAddr := addr.NewConnAddrVec(addr.ConnAddr{
		Local:  addr.IPPort{IP: sock.LocalIP, Port: localPort},
		Remote: addr.IPPort{IP: remoteIP, Port: remotePort},
		Device: u.device,
	})
	connID := allocID(&c.nextConnID, &c.freeConn)
	if _, err := c.socketMap.TryInsert(connID, newAddr, u.sharing); err != nil {
		c.freeConn = append(c.freeConn, connID)
		return 0, mapInsertError(err)
	}

	delete(c.unbound, id)
	c.freeUnbound = append(c.freeUnbound, id)
	c.conns[connID] = &connSocket{
		ipSocket:    sock,
		options:     u.options,
		memberships: u.memberships,
	}
	return connID, nil
}

func (c *Core) allocLocalPortLocked(localIP, remoteIP tcpip.Address, remotePort addr.Port, dev addr.OptionalDevice) (addr.Port, error) {
	flow := ports.FlowID{LocalIP: localIP, RemoteIP: remoteIP, RemotePort: remotePort}
	p, err := c.alloc.TryAllocLocalPort(flow, func(candidate addr.Port) bool {
		return ports.IsAvailable(c.socketMap, localIP, remoteIP, candidate, remotePort)
	})
	if err != nil {
		return 0, ErrFailedToAllocateLocalPort
	}
	return p, nil
}
