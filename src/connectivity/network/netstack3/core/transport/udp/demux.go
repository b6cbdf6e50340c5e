// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp

import (
	"hash/fnv"

	"github.com/golang/glog"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// FourTuple identifies a received (or, for ICMP steering, embedded)
// datagram.
type FourTuple struct {
	SrcIP, DstIP     tcpip.Address
	SrcPort, DstPort addr.Port
}

// candidateAddrs enumerates the six AddrVecs of spec.md §4.2, in priority
// order, most specific first.
func candidateAddrs(t FourTuple, recvDevice addr.DeviceID) []addr.AddrVec {
	return []addr.AddrVec{
		addr.NewConnAddrVec(addr.ConnAddr{
			Local:  addr.IPPort{IP: t.DstIP, Port: t.DstPort},
			Remote: addr.IPPort{IP: t.SrcIP, Port: t.SrcPort},
			Device: addr.Device(recvDevice),
		}),
		addr.NewConnAddrVec(addr.ConnAddr{
			Local:  addr.IPPort{IP: t.DstIP, Port: t.DstPort},
			Remote: addr.IPPort{IP: t.SrcIP, Port: t.SrcPort},
		}),
		addr.NewListenerAddrVec(addr.ListenerAddr{IP: addr.IP(t.DstIP), Port: t.DstPort, Device: addr.Device(recvDevice)}),
		addr.NewListenerAddrVec(addr.ListenerAddr{IP: addr.IP(t.DstIP), Port: t.DstPort}),
		addr.NewListenerAddrVec(addr.ListenerAddr{Port: t.DstPort, Device: addr.Device(recvDevice)}),
		addr.NewListenerAddrVec(addr.ListenerAddr{Port: t.DstPort}),
	}
}

// reusePortHash picks a stable index into a ReusePort group for a given
// 4-tuple, per spec.md §4.2 step 4 and the "Reuse-port consistency"
// property of §8: the same 4-tuple always selects the same id, and
// across all 4-tuples selection is a function of the hash only.
func reusePortHash(t FourTuple, n int) int {
	h := fnv.New32a()
	h.Write([]byte(t.SrcIP))
	h.Write([]byte(t.DstIP))
	h.Write([]byte{byte(t.SrcPort >> 8), byte(t.SrcPort), byte(t.DstPort >> 8), byte(t.DstPort)})
	return int(h.Sum32() % uint32(n))
}

func isMulticast(ip tcpip.Address) bool {
	return header.IsV4MulticastAddress(ip) || header.IsV6MulticastAddress(ip)
}

// Deliver implements spec.md §4.2: demultiplex an inbound datagram to the
// socket id(s) that should receive it. When no socket matches, ids is
// empty and portUnreachable reports whether the caller should signal ICMP
// port-unreachable (always false for a multicast destination).
func (c *Core) Deliver(t FourTuple, recvDevice addr.DeviceID) (ids []addr.SocketID, portUnreachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.PacketsReceived++

	candidates := candidateAddrs(t, recvDevice)

	if isMulticast(t.DstIP) {
		for _, cand := range candidates {
			state, ok := c.socketMap.GetByAddr(cand)
			if !ok {
				continue
			}
			ids = append(ids, state.IDs()...)
		}
		if len(ids) == 0 {
			c.stats.PacketsDroppedNoMatchingSocket++
			glog.V(2).Infof("udp: no multicast listener for %+v", t)
		}
		return ids, false
	}

	for _, cand := range candidates {
		state, ok := c.socketMap.GetByAddr(cand)
		if !ok {
			continue
		}
		if id, ok := state.Exclusive(); ok {
			return []addr.SocketID{id}, false
		}
		group := state.IDs()
		idx := reusePortHash(t, len(group))
		return []addr.SocketID{group[idx]}, false
	}

	c.stats.PacketsDroppedNoMatchingSocket++
	if c.sendPortUnreachable {
		return nil, true
	}
	glog.V(2).Infof("udp: dropping unmatched datagram %+v", t)
	return nil, false
}
