// Copyright 2024 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package udp_test

import (
	"net"

	"gvisor.dev/gvisor/pkg/tcpip"

	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/addr"
	"go.fuchsia.dev/core/src/connectivity/network/netstack3/core/ipsocket"
)

func ip(s string) tcpip.Address {
	return tcpip.Address(net.ParseIP(s).To4())
}

// fakeProvider is a trivial ipsocket.Provider: unless failCreate or
// failSend is set it succeeds, choosing a caller-supplied local IP or
// falling back to a fixed default, and records every sent packet for
// assertions.
type fakeProvider struct {
	defaultLocalIP tcpip.Address
	sent           []sentPacket
	failCreate     error
	failSend       error
}

type sentPacket struct {
	sock ipsocket.IPSocket
	body []byte
}

func newFakeProvider(defaultLocalIP tcpip.Address) *fakeProvider {
	return &fakeProvider{defaultLocalIP: defaultLocalIP}
}

func (p *fakeProvider) NewIPSocket(device addr.OptionalDevice, localIP addr.OptionalAddr, remoteIP tcpip.Address, proto ipsocket.Proto, opts ipsocket.Options) (ipsocket.IPSocket, error) {
	if p.failCreate != nil {
		return ipsocket.IPSocket{}, p.failCreate
	}
	local := p.defaultLocalIP
	if localIP.IsSet() {
		local = localIP.Get()
	}
	return ipsocket.IPSocket{LocalIP: local, RemoteIP: remoteIP, Device: device, Options: opts}, nil
}

func (p *fakeProvider) SendIPPacket(sock ipsocket.IPSocket, body []byte) ([]byte, error) {
	if p.failSend != nil {
		return body, p.failSend
	}
	p.sent = append(p.sent, sentPacket{sock: sock, body: body})
	return nil, nil
}
