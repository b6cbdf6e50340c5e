// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// MulticastError is the discriminated multicast error union of spec.md
// §7.
type MulticastError int

const (
	_ MulticastError = iota
	ErrAddressNotAvailable
	ErrNoDeviceWithAddress
	ErrNoDeviceAvailable
	ErrNoMembershipChange
	ErrWrongDevice
)

func (e MulticastError) Error() string {
	switch e {
	case ErrAddressNotAvailable:
		return "address not available"
	case ErrNoDeviceWithAddress:
		return "no device with address"
	case ErrNoDeviceAvailable:
		return "no device available"
	case ErrNoMembershipChange:
		return "no membership change"
	case ErrWrongDevice:
		return "wrong device"
	default:
		return fmt.Sprintf("udp.MulticastError(%d)", int(e))
	}
}

func (c *Core) membershipsFor(id addr.SocketID) (*map[membership]struct{}, addr.OptionalDevice, bool) {
	if u, ok := c.unbound[id]; ok {
		return &u.memberships, u.device, true
	}
	if l, ok := c.listeners[id]; ok {
		a, _ := c.socketMap.GetByID(id)
		la, _ := a.Listener()
		return &l.memberships, la.Device, true
	}
	if conn, ok := c.conns[id]; ok {
		a, _ := c.socketMap.GetByID(id)
		ca, _ := a.Conn()
		return &conn.memberships, ca.Device, true
	}
	return nil, addr.OptionalDevice{}, false
}

// SetMulticastMembership implements spec.md §4.5. ifaceAddr/ifaceID are
// optional (the zero value of addr.OptionalAddr/addr.OptionalDevice means
// "unset").
func (c *Core) SetMulticastMembership(id addr.SocketID, group tcpip.Address, ifaceAddr addr.OptionalAddr, ifaceID addr.OptionalDevice, want bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	memberships, boundDevice, ok := c.membershipsFor(id)
	if !ok {
		panic(fmt.Sprintf("udp: SetMulticastMembership: unknown id %d", id))
	}

	dev, err := c.resolveMulticastInterfaceLocked(group, ifaceAddr, ifaceID, boundDevice)
	if err != nil {
		return err
	}

	key := membership{group: group, device: dev}
	_, already := (*memberships)[key]
	if already == want {
		return ErrNoMembershipChange
	}

	if want {
		c.dev.JoinMulticastGroup(dev, group)
		(*memberships)[key] = struct{}{}
	} else {
		c.dev.LeaveMulticastGroup(dev, group)
		delete(*memberships, key)
	}
	return nil
}

// resolveMulticastInterfaceLocked implements the four-step interface
// selection of spec.md §4.5.
func (c *Core) resolveMulticastInterfaceLocked(group tcpip.Address, ifaceAddr addr.OptionalAddr, ifaceID addr.OptionalDevice, boundDevice addr.OptionalDevice) (addr.DeviceID, error) {
	if ifaceID.IsSet() && ifaceAddr.IsSet() {
		dev, ok := c.dev.DeviceWithAddress(ifaceAddr.Get())
		if !ok || dev != ifaceID.Get() {
			return 0, ErrAddressNotAvailable
		}
		return dev, nil
	}
	if ifaceID.IsSet() {
		return ifaceID.Get(), nil
	}
	if ifaceAddr.IsSet() {
		dev, ok := c.dev.DeviceWithAddress(ifaceAddr.Get())
		if !ok {
			return 0, ErrNoDeviceWithAddress
		}
		return dev, nil
	}
	if boundDevice.IsSet() {
		return boundDevice.Get(), nil
	}
	dev, ok := c.dev.RouteMulticast(group)
	if !ok {
		return 0, ErrNoDeviceAvailable
	}
	return dev, nil
}
