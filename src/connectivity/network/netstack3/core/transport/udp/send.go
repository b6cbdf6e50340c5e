// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp

import (
	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/ipsocket"
)

// Send implements the stateless send path of spec.md §4.3: a temporary
// Exclusive connection is created at the given 4-tuple, used once, and
// torn down. body is returned on every failure path so the caller can
// retry or reformat.
func (c *Core) Send(localIP addr.OptionalAddr, remoteIP tcpip.Address, remotePort addr.Port, opts ipsocket.Options, body []byte) ([]byte, error) {
	unbound := c.CreateUnbound(addr.Exclusive, opts)

	connID, err := c.Connect(unbound, localIP, 0, remoteIP, remotePort)
	if err != nil {
		c.mu.Lock()
		if _, ok := c.unbound[unbound]; ok {
			delete(c.unbound, unbound)
			c.freeUnbound = append(c.freeUnbound, unbound)
		}
		c.mu.Unlock()
		if lerr, ok := err.(LifecycleError); ok && lerr == ErrAddressInUse {
			return body, ErrSockAddrConflict
		}
		return body, err
	}

	out, sendErr := c.SendConn(connID, body)
	c.RemoveConn(connID)
	return out, sendErr
}

// SendConn implements spec.md §4.3 send_conn: look up the connection's
// IpSocket and submit body through it.
func (c *Core) SendConn(connID addr.SocketID, body []byte) ([]byte, error) {
	c.mu.Lock()
	conn, ok := c.conns[connID]
	c.mu.Unlock()
	if !ok {
		panic("udp: SendConn: unknown connection id")
	}
	out, err := c.ips.SendIPPacket(conn.ipSocket, body)
	if err != nil {
		return out, SendError{Send: err.(ipsocket.Error)}
	}
	return nil, nil
}

// SendListener implements spec.md §4.3 send_listener: a fresh IpSocket is
// created honoring the listener's bound device and local IP, then used
// once. An Mtu error is surfaced as such; an unroutable error here is
// unreachable by construction (the caller supplied a concrete
// destination), so it is wrapped the same as any other send error rather
// than special-cased.
func (c *Core) SendListener(listenerID addr.SocketID, remoteIP tcpip.Address, remotePort addr.Port, body []byte) ([]byte, error) {
	c.mu.Lock()
	l, ok := c.listeners[listenerID]
	if !ok {
		c.mu.Unlock()
		panic("udp: SendListener: unknown listener id")
	}
	a, _ := c.socketMap.GetByID(listenerID)
	listenerAddr, _ := a.Listener()
	opts := l.options
	c.mu.Unlock()

	sock, err := c.ips.NewIPSocket(listenerAddr.Device, listenerAddr.IP, remoteIP, ipsocket.UDP, opts)
	if err != nil {
		return body, SendError{Create: err.(ipsocket.Error)}
	}
	out, err := c.ips.SendIPPacket(sock, body)
	if err != nil {
		return out, SendError{Send: err.(ipsocket.Error)}
	}
	return nil, nil
}
