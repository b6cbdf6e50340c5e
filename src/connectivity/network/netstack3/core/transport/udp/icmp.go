// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// ParseEmbeddedUDPv4 extracts the embedded (src_ip, dst_ip, src_port,
// dst_port) 4-tuple from an ICMPv4 error's payload: an IPv4 header
// immediately followed by at least 8 bytes of the original UDP header.
// The caller already stripped the outer IP header; raw starts at the
// ICMP message.
func ParseEmbeddedUDPv4(raw []byte) (FourTuple, error) {
	msg, err := icmp.ParseMessage(ipv4.ICMPTypeDestinationUnreachable.Protocol(), raw)
	if err != nil {
		return FourTuple{}, fmt.Errorf("udp: icmp: parse message: %w", err)
	}
	var payload []byte
	switch b := msg.Body.(type) {
	case *icmp.DstUnreach:
		payload = b.Data
	case *icmp.TimeExceeded:
		payload = b.Data
	case *icmp.ParamProb:
		payload = b.Data
	default:
		return FourTuple{}, fmt.Errorf("udp: icmp: unsupported message type %v", msg.Type)
	}

	ipHdr, err := ipv4.ParseHeader(payload)
	if err != nil {
		return FourTuple{}, fmt.Errorf("udp: icmp: parse embedded ip header: %w", err)
	}
	udpOff := ipHdr.Len
	if len(payload) < udpOff+8 {
		return FourTuple{}, fmt.Errorf("udp: icmp: embedded packet too short for udp header")
	}
	udp := payload[udpOff : udpOff+8]

	return FourTuple{
		SrcIP:   tcpip.Address(ipHdr.Src.To4()),
		DstIP:   tcpip.Address(ipHdr.Dst.To4()),
		SrcPort: addr.Port(binary.BigEndian.Uint16(udp[0:2])),
		DstPort: addr.Port(binary.BigEndian.Uint16(udp[2:4])),
	}, nil
}

// DeliverICMPError implements spec.md §4.6: look up the socket that
// originated the embedded UDP datagram and return its id. The embedded
// packet's addresses are the "original outbound" 4-tuple (open question
// in spec.md §9): the packet looked unreachable from src->dst, so from
// the socket's point of view its local address was the embedded source
// and its remote address was the embedded destination -- i.e. the
// lookup uses the same six-slot priority list as Deliver, but with the
// embedded src/dst swapped relative to an inbound datagram.
func (c *Core) DeliverICMPError(embedded FourTuple, recvDevice addr.DeviceID) (addr.SocketID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lookup := FourTuple{
		SrcIP:   embedded.DstIP,
		DstIP:   embedded.SrcIP,
		SrcPort: embedded.DstPort,
		DstPort: embedded.SrcPort,
	}
	for _, cand := range candidateAddrs(lookup, recvDevice) {
		state, ok := c.socketMap.GetByAddr(cand)
		if !ok {
			continue
		}
		if id, ok := state.Exclusive(); ok {
			return id, true
		}
		ids := state.IDs()
		return ids[reusePortHash(lookup, len(ids))], true
	}
	return 0, false
}
