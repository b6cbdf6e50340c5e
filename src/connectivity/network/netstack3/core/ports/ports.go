// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ports implements ephemeral local-port allocation for UDP
// sockets: flow-keyed hashing for connect, and a randomized linear scan
// for listen, per spec.md §4.4.
package ports

import (
	"hash/fnv"
	"math/rand"

	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// EphemeralLow and EphemeralHigh bound the ephemeral port range,
// inclusive, per spec.md §6.
const (
	EphemeralLow  = 49152
	EphemeralHigh = 65535

	rangeSize  = EphemeralHigh - EphemeralLow + 1
	flowTable  = 20
)

// FlowID is the key used to spread connect-time port allocation attempts
// across a small hash table, per spec.md §4.4.
type FlowID struct {
	LocalIP    tcpip.Address
	RemoteIP   tcpip.Address
	RemotePort addr.Port
}

func (f FlowID) hash() uint32 {
	h := fnv.New32a()
	h.Write([]byte(f.LocalIP))
	h.Write([]byte(f.RemoteIP))
	h.Write([]byte{byte(f.RemotePort >> 8), byte(f.RemotePort)})
	return h.Sum32()
}

// Allocator holds the small amount of state needed to spread repeated
// allocation attempts for the same flow across different starting
// candidates, and to source randomness for listen-port selection.
type Allocator struct {
	rng   *rand.Rand
	table [flowTable]uint32 // per flow-hash bucket: one past the last allocated offset, 0 if unset
}

// NewAllocator constructs an Allocator. seed should come from a
// cryptographically-unpredictable source in production; tests may pin it
// for determinism.
func NewAllocator(seed int64) *Allocator {
	return &Allocator{rng: rand.New(rand.NewSource(seed))}
}

// IsAvailable reports whether no entry occupies ConnAddr{(localIP, p),
// (remoteIP, remotePort), device: None}, no entry shadows it, and no
// entry is a descendant of it, per spec.md §4.4.
func IsAvailable(m *addr.SocketMap, localIP, remoteIP tcpip.Address, p addr.Port, remotePort addr.Port) bool {
	a := addr.NewConnAddrVec(addr.ConnAddr{
		Local:  addr.IPPort{IP: localIP, Port: p},
		Remote: addr.IPPort{IP: remoteIP, Port: remotePort},
	})
	if _, ok := m.GetByAddr(a); ok {
		return false
	}
	if len(m.IterShadows(a)) > 0 {
		return false
	}
	if len(m.DescendantCounts(a)) > 0 {
		return false
	}
	return true
}

// ErrCouldNotAllocateLocalPort is returned when every candidate in the
// ephemeral range is occupied.
type ErrCouldNotAllocateLocalPort struct{}

func (ErrCouldNotAllocateLocalPort) Error() string { return "could not allocate local port" }

// TryAllocLocalPort probes the ephemeral range for flow, starting from a
// flow-keyed offset, and returns the first port for which available
// reports true.
func (a *Allocator) TryAllocLocalPort(flow FlowID, available func(addr.Port) bool) (addr.Port, error) {
	bucket := flow.hash() % flowTable
	start := a.table[bucket]
	if start == 0 {
		start = uint32(a.rng.Intn(rangeSize))
	}
	for i := 0; i < rangeSize; i++ {
		offset := (start + uint32(i)) % rangeSize
		p := addr.Port(EphemeralLow + offset)
		if available(p) {
			a.table[bucket] = offset + 1
			return p, nil
		}
	}
	return 0, ErrCouldNotAllocateLocalPort{}
}

// TryAllocListenPort iterates the ephemeral range starting at a random
// offset and returns the first port not in used.
func (a *Allocator) TryAllocListenPort(used map[addr.Port]struct{}) (addr.Port, bool) {
	start := uint32(a.rng.Intn(rangeSize))
	for i := 0; i < rangeSize; i++ {
		offset := (start + uint32(i)) % rangeSize
		p := addr.Port(EphemeralLow + offset)
		if _, occupied := used[p]; !occupied {
			return p, true
		}
	}
	return 0, false
}

// UsedListenPorts computes the used_ports set of spec.md §4.4: ports in
// use by sockets whose local IP matches localIP, plus any unspecified-IP
// listener.
func UsedListenPorts(m *addr.SocketMap, localIP tcpip.Address) map[addr.Port]struct{} {
	used := make(map[addr.Port]struct{})
	m.IterAddrs(func(a addr.AddrVec, _ addr.PosixAddrState) {
		if l, ok := a.Listener(); ok {
			if !l.IP.IsSet() || l.IP.Get() == localIP {
				used[l.Port] = struct{}{}
			}
			return
		}
		if c, ok := a.Conn(); ok && c.Local.IP == localIP {
			used[c.Local.Port] = struct{}{}
		}
	})
	return used
}
