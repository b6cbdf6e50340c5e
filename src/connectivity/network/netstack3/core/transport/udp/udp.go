// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package udp implements UdpCore (spec.md §3.1, §4.2-§4.6): socket
// lifecycle, receive demultiplex, send paths, device binding, multicast
// membership, and ICMP error steering, over the SocketMap/PortAllocator
// primitives and the narrow IpSocketProvider/device.Registry
// collaborators.
package udp

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/device"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/ipsocket"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/ports"
)

// LifecycleError is the discriminated socket-lifecycle error union of
// spec.md §7.
type LifecycleError int

const (
	_ LifecycleError = iota
	ErrAddressInUse
	ErrCannotBindToAddress
	ErrFailedToAllocateLocalPort
	ErrSockAddrConflict
	ErrLocalIPAddrMismatch
)

func (e LifecycleError) Error() string {
	switch e {
	case ErrAddressInUse:
		return "address in use"
	case ErrCannotBindToAddress:
		return "cannot bind to address"
	case ErrFailedToAllocateLocalPort:
		return "failed to allocate local port"
	case ErrSockAddrConflict:
		return "socket address conflict"
	case ErrLocalIPAddrMismatch:
		return "local ip address mismatch"
	default:
		return fmt.Sprintf("udp.LifecycleError(%d)", int(e))
	}
}

// SendError wraps the creation/send errors of spec.md §7.
type SendError struct {
	Create ipsocket.Error
	Send   ipsocket.Error
}

func (e SendError) Error() string {
	if e.Create != 0 {
		return fmt.Sprintf("udp: create sock: %v", ipsocket.Error(e.Create))
	}
	return fmt.Sprintf("udp: send: %v", ipsocket.Error(e.Send))
}

// membership is one joined (group, device) pair for a socket.
type membership struct {
	group  tcpip.Address
	device addr.DeviceID
}

// unboundSocket is the state of a socket that has not yet been bound by
// Listen or Connect.
type unboundSocket struct {
	sharing      addr.Sharing
	device       addr.OptionalDevice
	options      ipsocket.Options
	memberships  map[membership]struct{}
}

// listenerSocket is the state of a socket bound via Listen.
type listenerSocket struct {
	options     ipsocket.Options
	memberships map[membership]struct{}
}

// connSocket is the state of a socket bound via Connect.
type connSocket struct {
	ipSocket    ipsocket.IPSocket
	options     ipsocket.Options
	memberships map[membership]struct{}
}

// Stats counts receive-path outcomes, supplementing spec.md's operation
// list with the observability the original UdpSockets implementation
// keeps internally (SPEC_FULL.md). Deliver updates PacketsReceived and
// PacketsDroppedNoMatchingSocket.
type Stats struct {
	PacketsReceived             uint64
	// PacketsDroppedQueueFull is never incremented: Core holds no
	// receive queue.
	PacketsDroppedQueueFull     uint64
	PacketsDroppedNoMatchingSocket uint64
}

// Core owns the SocketMap, the unbound table, and the per-socket
// collaborator state (IP sockets and multicast memberships). All methods
// assume single-threaded-cooperative access per caller per spec.md §5; mu
// only guards against accidental concurrent callers, it does not
// implement any ordering guarantee beyond mutual exclusion.
type Core struct {
	mu sync.Mutex

	sendPortUnreachable bool

	alloc *ports.Allocator
	ips   ipsocket.Provider
	dev   device.Registry

	ipv6 bool

	nextUnboundID addr.SocketID
	freeUnbound   []addr.SocketID
	unbound       map[addr.SocketID]*unboundSocket

	nextListenerID addr.SocketID
	freeListener   []addr.SocketID
	listeners      map[addr.SocketID]*listenerSocket

	nextConnID addr.SocketID
	freeConn   []addr.SocketID
	conns      map[addr.SocketID]*connSocket

	socketMap *addr.SocketMap

	stats Stats
}

// Builder configures a Core before construction; send_port_unreachable is
// the only knob spec.md §6 names.
type Builder struct {
	sendPortUnreachable bool
}

func NewBuilder() *Builder { return &Builder{} }

// SendPortUnreachable toggles RFC 1122 §4.1.3.1 ICMP port-unreachable
// replies. Disabled by default: replying to spoofed sources is a DoS
// amplifier (spec.md §6).
func (b *Builder) SendPortUnreachable(v bool) *Builder {
	b.sendPortUnreachable = v
	return b
}

func (b *Builder) Build(ips ipsocket.Provider, dev device.Registry, alloc *ports.Allocator, ipv6 bool) *Core {
	return &Core{
		sendPortUnreachable: b.sendPortUnreachable,
		alloc:               alloc,
		ips:                 ips,
		dev:                 dev,
		ipv6:                ipv6,
		unbound:              make(map[addr.SocketID]*unboundSocket),
		listeners:            make(map[addr.SocketID]*listenerSocket),
		conns:                make(map[addr.SocketID]*connSocket),
		socketMap:            addr.NewSocketMap(),
	}
}

func (c *Core) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// LookupAddr returns the AddrVec a bound (Listener or Connected) socket
// currently occupies.
func (c *Core) LookupAddr(id addr.SocketID) (addr.AddrVec, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketMap.GetByID(id)
}

// allocID pops a freed id if one exists (ids are reused first, spec.md
// §8 "Socket id density"), else extends the dense range.
func allocID(next *addr.SocketID, free *[]addr.SocketID) addr.SocketID {
	if n := len(*free); n > 0 {
		id := (*free)[n-1]
		*free = (*free)[:n-1]
		return id
	}
	id := *next
	*next++
	return id
}

// CreateUnbound allocates a new Unbound socket.
func (c *Core) CreateUnbound(sharing addr.Sharing, opts ipsocket.Options) addr.SocketID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := allocID(&c.nextUnboundID, &c.freeUnbound)
	c.unbound[id] = &unboundSocket{
		sharing:     sharing,
		device:      addr.AnyDevice,
		options:     opts,
		memberships: make(map[membership]struct{}),
	}
	return id
}

// SetDeviceBinding changes the device binding of a socket (addr.AnyDevice
// clears it, i.e. UnsetDeviceBinding). For an Unbound socket this only
// updates the value applied at the next Listen/Connect. For an already
// bound Listener or Connected socket it re-runs the same POSIX sharing
// check §4.1 would run at creation time against the AddrVec with the new
// device substituted in, leaving the socket unchanged on conflict
// (SPEC_FULL.md, mirroring the original's set_udp_device).
func (c *Core) SetDeviceBinding(id addr.SocketID, dev addr.OptionalDevice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.unbound[id]; ok {
		u.device = dev
		return nil
	}
	if _, ok := c.listeners[id]; ok {
		return c.socketMap.UpdateAddr(id, func(a addr.AddrVec) addr.AddrVec {
			l, _ := a.Listener()
			l.Device = dev
			return addr.NewListenerAddrVec(l)
		})
	}
	if _, ok := c.conns[id]; ok {
		return c.socketMap.UpdateAddr(id, func(a addr.AddrVec) addr.AddrVec {
			conn, _ := a.Conn()
			conn.Device = dev
			return addr.NewConnAddrVec(conn)
		})
	}
	panic(fmt.Sprintf("udp: SetDeviceBinding: unknown id %d", id))
}

// removeAllMemberships leaves every multicast group m joined, per
// spec.md §3.1 "Removing any socket triggers leave of all its multicast
// memberships."
func (c *Core) removeAllMemberships(m map[membership]struct{}) {
	for ms := range m {
		c.dev.LeaveMulticastGroup(ms.device, ms.group)
		glog.V(2).Infof("udp: left multicast group %s on device %d during teardown", ms.group, ms.device)
	}
}

// RemoveUnbound discards an Unbound socket that was never bound.
func (c *Core) RemoveUnbound(id addr.SocketID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.unbound[id]
	if !ok {
		panic(fmt.Sprintf("udp: RemoveUnbound: unknown id %d", id))
	}
	c.removeAllMemberships(u.memberships)
	delete(c.unbound, id)
	c.freeUnbound = append(c.freeUnbound, id)
}

// RemoveListener removes a Listener socket and releases its multicast
// memberships.
func (c *Core) RemoveListener(id addr.SocketID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listeners[id]
	if !ok {
		panic(fmt.Sprintf("udp: RemoveListener: unknown id %d", id))
	}
	c.socketMap.RemoveByID(id)
	c.removeAllMemberships(l.memberships)
	delete(c.listeners, id)
	c.freeListener = append(c.freeListener, id)
}

// RemoveConn removes a Connected socket and releases its multicast
// memberships.
func (c *Core) RemoveConn(id addr.SocketID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[id]
	if !ok {
		panic(fmt.Sprintf("udp: RemoveConn: unknown id %d", id))
	}
	c.socketMap.RemoveByID(id)
	c.removeAllMemberships(conn.memberships)
	delete(c.conns, id)
	c.freeConn = append(c.freeConn, id)
}

// timeNow is overridden in tests; production wires time.Now.
var timeNow = time.Now
