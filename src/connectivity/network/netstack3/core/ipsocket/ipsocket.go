// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ipsocket declares the narrow interface UdpCore uses to reach
// the IP layer. The IP socket creation/send path itself is out of scope
// (spec.md §1): it is assumed as an external collaborator that produces
// routable sockets and sends packets.
package ipsocket

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
)

// Proto identifies the transport protocol an IPSocket carries.
type Proto int

const (
	UDP Proto = iota
)

// Options configures a new IP socket: TTL/hop-limit, multicast hop limit,
// broadcast allowance. These mirror the per-socket options the original
// UdpSocketOptions carries (see SPEC_FULL.md's UdpCore supplement).
type Options struct {
	HopLimit          uint8 // 0 means "use the route's default"
	MulticastHopLimit uint8
	Broadcast         bool
}

// Error is the discriminated IpSockCreationError / IpSockSendError union
// of spec.md §6/§7.
type Error int

const (
	_ Error = iota
	ErrMtu
	ErrUnroutable
	ErrCreationUnroutable
	ErrNoRouteToHost
)

func (e Error) Error() string {
	switch e {
	case ErrMtu:
		return "mtu exceeded"
	case ErrUnroutable:
		return "unroutable"
	case ErrCreationUnroutable:
		return "no route for socket creation"
	case ErrNoRouteToHost:
		return "no route to host"
	default:
		return fmt.Sprintf("ipsocket.Error(%d)", int(e))
	}
}

// IPSocket is an opaque, already-routed IP-layer socket: a committed
// choice of local/remote address, outbound device, and TTL, ready to send
// through.
type IPSocket struct {
	LocalIP  tcpip.Address
	RemoteIP tcpip.Address
	Device   addr.OptionalDevice
	Options  Options
}

// Provider is the external collaborator of spec.md §6:
// `new_ip_socket`/`send_ip_packet`.
type Provider interface {
	// NewIPSocket creates a routed IP socket. device and localIP are
	// optional constraints; remoteIP is required.
	NewIPSocket(device addr.OptionalDevice, localIP addr.OptionalAddr, remoteIP tcpip.Address, proto Proto, opts Options) (IPSocket, error)
	// SendIPPacket submits body over sock. On failure, body is returned
	// unmodified so the caller can retry or reformat.
	SendIPPacket(sock IPSocket, body []byte) ([]byte, error)
}
