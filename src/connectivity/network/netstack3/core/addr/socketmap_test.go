// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package addr

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/gvisor/pkg/tcpip"
)

func ip(s string) tcpip.Address {
	return tcpip.Address(net.ParseIP(s).To4())
}

func TestTryInsertReusePortFanOut(t *testing.T) {
	m := NewSocketMap()
	first := NewListenerAddrVec(ListenerAddr{Port: 100})

	if _, err := m.TryInsert(0, first, ReusePort); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := m.TryInsert(1, first, ReusePort); err != nil {
		t.Fatalf("second reuseport insert: %v", err)
	}
	if _, err := m.TryInsert(2, first, Exclusive); err != ErrExists {
		t.Fatalf("exclusive insert over reuseport group: got %v, want ErrExists", err)
	}
}

func TestShadowSymmetry(t *testing.T) {
	general := NewListenerAddrVec(ListenerAddr{Port: 100})
	specific := NewListenerAddrVec(ListenerAddr{IP: IP(ip("10.0.0.1")), Port: 100})

	m := NewSocketMap()
	if _, err := m.TryInsert(0, general, Exclusive); err != nil {
		t.Fatalf("insert general: %v", err)
	}
	if _, err := m.TryInsert(1, specific, Exclusive); err != ErrShadowAddrExists {
		t.Fatalf("insert specific after general: got %v, want ErrShadowAddrExists", err)
	}

	m2 := NewSocketMap()
	if _, err := m2.TryInsert(0, specific, Exclusive); err != nil {
		t.Fatalf("insert specific: %v", err)
	}
	if _, err := m2.TryInsert(1, general, Exclusive); err != ErrShadowerExists {
		t.Fatalf("insert general after specific: got %v, want ErrShadowerExists", err)
	}
}

func TestDeviceDemuxIndirectConflict(t *testing.T) {
	// Listener(any-ip, device=X) and Listener(specific-ip, device=None)
	// at the same port indirectly conflict (case a) unless both are
	// ReusePort.
	m := NewSocketMap()
	anyIPDeviceX := NewListenerAddrVec(ListenerAddr{Port: 100, Device: Device(1)})
	specificNoDevice := NewListenerAddrVec(ListenerAddr{IP: IP(ip("10.0.0.1")), Port: 100})

	if _, err := m.TryInsert(0, specificNoDevice, Exclusive); err != nil {
		t.Fatalf("insert specificNoDevice: %v", err)
	}
	if _, err := m.TryInsert(1, anyIPDeviceX, Exclusive); err != ErrIndirectConflict {
		t.Fatalf("insert anyIPDeviceX: got %v, want ErrIndirectConflict", err)
	}

	m2 := NewSocketMap()
	if _, err := m2.TryInsert(0, specificNoDevice, ReusePort); err != nil {
		t.Fatalf("insert specificNoDevice reuseport: %v", err)
	}
	if _, err := m2.TryInsert(1, anyIPDeviceX, ReusePort); err != nil {
		t.Fatalf("insert anyIPDeviceX reuseport: %v", err)
	}
}

func TestConnectConflictAndRecovery(t *testing.T) {
	m := NewSocketMap()
	c := NewConnAddrVec(ConnAddr{
		Local:  IPPort{IP: ip("10.0.0.1"), Port: 100},
		Remote: IPPort{IP: ip("10.0.0.2"), Port: 200},
	})
	id0, err := m.TryInsert(0, c, Exclusive)
	if err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if _, err := m.TryInsert(1, c, Exclusive); err != ErrExists {
		t.Fatalf("second connect: got %v, want ErrExists", err)
	}
	m.RemoveByID(id0)
	if _, err := m.TryInsert(1, c, Exclusive); err != nil {
		t.Fatalf("connect after remove: %v", err)
	}
}

func TestRemoveByIDForgetsID(t *testing.T) {
	m := NewSocketMap()
	var ids []SocketID
	for i := SocketID(0); i < 4; i++ {
		a := NewListenerAddrVec(ListenerAddr{Port: Port(100 + i)})
		if _, err := m.TryInsert(i, a, Exclusive); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, i)
	}
	m.RemoveByID(ids[1])
	if _, ok := m.GetByID(ids[1]); ok {
		t.Fatalf("expected id %d to be removed", ids[1])
	}
}

func TestGetByIDReturnsStoredAddr(t *testing.T) {
	m := NewSocketMap()
	want := NewListenerAddrVec(ListenerAddr{IP: IP(ip("10.0.0.1")), Port: 100, Device: Device(3)})
	id, err := m.TryInsert(0, want, Exclusive)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok := m.GetByID(id)
	if !ok {
		t.Fatalf("GetByID(%d): not found", id)
	}
	opts := cmp.AllowUnexported(AddrVec{}, OptionalAddr{}, OptionalDevice{})
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Fatalf("GetByID(%d) mismatch (-want +got):\n%s", id, diff)
	}
}
