// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package device models the narrow slice of the device subsystem that
// UdpCore depends on: per-(device, group) multicast refcounts and
// address-to-device resolution. The device driver shims themselves are
// out of scope (spec.md §1).
package device

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// Registry is the external collaborator UdpCore uses to resolve devices
// by assigned address, route multicast groups to an outbound device, and
// refcount multicast group membership. A production implementation backs
// this with the real interface table; tests back it with a fake.
type Registry interface {
	// DeviceWithAddress returns the device that ip is assigned to, if
	// any.
	DeviceWithAddress(ip tcpip.Address) (addr.DeviceID, bool)
	// RouteMulticast returns the device that would be used to originate
	// traffic to group, if routing has an answer.
	RouteMulticast(group tcpip.Address) (addr.DeviceID, bool)
	// JoinMulticastGroup increments the (device, group) refcount,
	// joining at the link layer on the 0->1 transition.
	JoinMulticastGroup(device addr.DeviceID, group tcpip.Address)
	// LeaveMulticastGroup decrements the (device, group) refcount,
	// leaving at the link layer on the 1->0 transition. It is a
	// programmer error to call this more times than JoinMulticastGroup
	// for the same pair (spec.md §8, "Multicast refcount").
	LeaveMulticastGroup(device addr.DeviceID, group tcpip.Address)
}

type membershipKey struct {
	device addr.DeviceID
	group  tcpip.Address
}

// FakeRegistry is an in-memory Registry for tests and for standalone
// callers that don't need real routing.
type FakeRegistry struct {
	addrs       map[tcpip.Address]addr.DeviceID
	multicastRt map[tcpip.Address]addr.DeviceID
	refcounts   map[membershipKey]int
}

// NewFakeRegistry constructs an empty FakeRegistry.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		addrs:       make(map[tcpip.Address]addr.DeviceID),
		multicastRt: make(map[tcpip.Address]addr.DeviceID),
		refcounts:   make(map[membershipKey]int),
	}
}

// AssignAddress records that ip is assigned to device, for
// DeviceWithAddress.
func (r *FakeRegistry) AssignAddress(ip tcpip.Address, device addr.DeviceID) {
	r.addrs[ip] = device
}

// SetMulticastRoute records the device RouteMulticast should return for
// group.
func (r *FakeRegistry) SetMulticastRoute(group tcpip.Address, device addr.DeviceID) {
	r.multicastRt[group] = device
}

func (r *FakeRegistry) DeviceWithAddress(ip tcpip.Address) (addr.DeviceID, bool) {
	d, ok := r.addrs[ip]
	return d, ok
}

func (r *FakeRegistry) RouteMulticast(group tcpip.Address) (addr.DeviceID, bool) {
	d, ok := r.multicastRt[group]
	return d, ok
}

func (r *FakeRegistry) JoinMulticastGroup(device addr.DeviceID, group tcpip.Address) {
	r.refcounts[membershipKey{device, group}]++
}

func (r *FakeRegistry) LeaveMulticastGroup(device addr.DeviceID, group tcpip.Address) {
	k := membershipKey{device, group}
	n, ok := r.refcounts[k]
	if !ok || n <= 0 {
		panic(fmt.Sprintf("device: LeaveMulticastGroup: refcount underflow for device=%d group=%s", device, group))
	}
	if n == 1 {
		delete(r.refcounts, k)
		return
	}
	r.refcounts[k] = n - 1
}

// Refcount returns the current join count for (device, group), for test
// assertions.
func (r *FakeRegistry) Refcount(device addr.DeviceID, group tcpip.Address) int {
	return r.refcounts[membershipKey{device, group}]
}
