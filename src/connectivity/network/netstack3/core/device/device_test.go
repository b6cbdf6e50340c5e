// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package device_test

import (
	"testing"

	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/device"
)

func TestMulticastRefcount(t *testing.T) {
	r := device.NewFakeRegistry()
	group := tcpip.Address("\xe0\x00\x00\x01")
	dev := addr.DeviceID(1)

	const k = 3
	for i := 0; i < k; i++ {
		r.JoinMulticastGroup(dev, group)
	}
	if got := r.Refcount(dev, group); got != k {
		t.Fatalf("refcount after %d joins = %d, want %d", k, got, k)
	}
	for i := 0; i < k; i++ {
		r.LeaveMulticastGroup(dev, group)
	}
	if got := r.Refcount(dev, group); got != 0 {
		t.Fatalf("refcount after %d leaves = %d, want 0", k, got)
	}
}

func TestMulticastRefcountUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on refcount underflow")
		}
	}()
	r := device.NewFakeRegistry()
	r.LeaveMulticastGroup(addr.DeviceID(1), tcpip.Address("\xe0\x00\x00\x01"))
}
