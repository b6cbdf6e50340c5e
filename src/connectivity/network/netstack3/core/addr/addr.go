// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package addr defines the address-vector lattice used to index UDP
// sockets: the shadow relation between listener and connected addresses,
// and the tags used to detect direct and indirect sharing conflicts.
package addr

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"
)

// SocketID is a dense, typed handle into a side table. It carries no
// pointer identity so it can be copied freely across owners.
type SocketID uint32

// State names the side table a SocketID indexes into. A SocketID does not
// carry its State; ids are dense per state.
type State int

const (
	Unbound State = iota
	Listener
	Connected
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "Unbound"
	case Listener:
		return "Listener"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sharing is the POSIX-style sharing mode of a bound socket.
type Sharing int

const (
	Exclusive Sharing = iota
	ReusePort
)

func (s Sharing) String() string {
	if s == ReusePort {
		return "ReusePort"
	}
	return "Exclusive"
}

// Port is a transport-layer port. The zero value is never a valid bound
// port: SocketMap.TryInsert panics on it, and the udp package's
// Listen/Connect treat 0 as a request for an ephemeral port.
type Port uint16

// DeviceID identifies a network interface. It is opaque to this package;
// the device subsystem (see netstack3/core/device) is the source of
// truth.
type DeviceID uint32

// OptionalDevice is a DeviceID or "no device" (the wildcard).
type OptionalDevice struct {
	id  DeviceID
	set bool
}

// AnyDevice is the wildcard device binding.
var AnyDevice = OptionalDevice{}

// Device wraps a concrete device id.
func Device(id DeviceID) OptionalDevice { return OptionalDevice{id: id, set: true} }

func (d OptionalDevice) IsSet() bool    { return d.set }
func (d OptionalDevice) Get() DeviceID  { return d.id }
func (d OptionalDevice) String() string {
	if !d.set {
		return "*"
	}
	return fmt.Sprintf("%d", d.id)
}

// OptionalAddr is a tcpip.Address or "unspecified" (the wildcard IP).
type OptionalAddr struct {
	ip  tcpip.Address
	set bool
}

var AnyIP = OptionalAddr{}

func IP(ip tcpip.Address) OptionalAddr { return OptionalAddr{ip: ip, set: true} }

func (a OptionalAddr) IsSet() bool   { return a.set }
func (a OptionalAddr) Get() tcpip.Address { return a.ip }
func (a OptionalAddr) String() string {
	if !a.set {
		return "*"
	}
	return a.ip.String()
}

// IPPort is a concrete (IP, port) pair, used for the local/remote halves
// of a ConnAddr.
type IPPort struct {
	IP   tcpip.Address
	Port Port
}

func (p IPPort) String() string { return fmt.Sprintf("%s:%d", p.IP, p.Port) }

// ListenerAddr is the AddrVec case for a socket bound via Listen.
type ListenerAddr struct {
	IP     OptionalAddr
	Port   Port
	Device OptionalDevice
}

func (l ListenerAddr) String() string {
	return fmt.Sprintf("Listener{ip=%s port=%d device=%s}", l.IP, l.Port, l.Device)
}

// ConnAddr is the AddrVec case for a socket bound via Connect.
type ConnAddr struct {
	Local  IPPort
	Remote IPPort
	Device OptionalDevice
}

func (c ConnAddr) String() string {
	return fmt.Sprintf("Connected{local=%s remote=%s device=%s}", c.Local, c.Remote, c.Device)
}

// AddrVec is the tagged sum over ListenerAddr and ConnAddr that indexes
// the SocketMap.
type AddrVec struct {
	listener *ListenerAddr
	conn     *ConnAddr
}

// NewListenerAddrVec wraps a ListenerAddr.
func NewListenerAddrVec(l ListenerAddr) AddrVec { return AddrVec{listener: &l} }

// NewConnAddrVec wraps a ConnAddr.
func NewConnAddrVec(c ConnAddr) AddrVec { return AddrVec{conn: &c} }

// Listener returns the ListenerAddr and reports whether a is the Listener
// case; ok is false for the zero AddrVec.
func (a AddrVec) Listener() (ListenerAddr, bool) {
	if a.listener == nil {
		return ListenerAddr{}, false
	}
	return *a.listener, true
}

// Conn reports whether a is the Connected case.
func (a AddrVec) Conn() (ConnAddr, bool) {
	if a.conn == nil {
		return ConnAddr{}, false
	}
	return *a.conn, true
}

func (a AddrVec) String() string {
	if l, ok := a.Listener(); ok {
		return l.String()
	}
	if c, ok := a.Conn(); ok {
		return c.String()
	}
	return "AddrVec{}"
}

// Port returns the bound port common to both cases.
func (a AddrVec) Port() Port {
	if l, ok := a.Listener(); ok {
		return l.Port
	}
	c, _ := a.Conn()
	return c.Local.Port
}

// Device returns the device binding common to both cases.
func (a AddrVec) Device() OptionalDevice {
	if l, ok := a.Listener(); ok {
		return l.Device
	}
	c, _ := a.Conn()
	return c.Device
}

// Key returns a value usable as a Go map key for exact-match lookup. It is
// deliberately a comparable struct rather than a string so no allocation
// or escaping is required on the hot demux path.
type Key struct {
	isConn     bool
	ip         tcpip.Address
	ipSet      bool
	port       Port
	remoteIP   tcpip.Address
	remotePort Port
	device     DeviceID
	deviceSet  bool
}

func (a AddrVec) Key() Key {
	if c, ok := a.Conn(); ok {
		k := Key{
			isConn:     true,
			ip:         c.Local.IP,
			ipSet:      true,
			port:       c.Local.Port,
			remoteIP:   c.Remote.IP,
			remotePort: c.Remote.Port,
		}
		if c.Device.IsSet() {
			k.device, k.deviceSet = c.Device.Get(), true
		}
		return k
	}
	l, _ := a.Listener()
	k := Key{port: l.Port}
	if l.IP.IsSet() {
		k.ip, k.ipSet = l.IP.Get(), true
	}
	if l.Device.IsSet() {
		k.device, k.deviceSet = l.Device.Get(), true
	}
	return k
}

// Tag classifies an AddrVec along the two axes that matter for shadowing
// and indirect-conflict detection: whether it is a listener or a
// connection, and whether it carries a specific device binding. Six
// combinations are reachable (connections are never "any IP" the way a
// listener can be, so the Tag space folds listener-ip-specificity in
// separately where needed).
type Tag struct {
	isConn    bool
	hasDevice bool
	anyIP     bool // only meaningful when !isConn
}

func TagOf(a AddrVec) Tag {
	if c, ok := a.Conn(); ok {
		return Tag{isConn: true, hasDevice: c.Device.IsSet()}
	}
	l, _ := a.Listener()
	return Tag{hasDevice: l.Device.IsSet(), anyIP: !l.IP.IsSet()}
}
