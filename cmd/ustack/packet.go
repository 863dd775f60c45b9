package main

import (
	"fmt"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

var (
	loopbackAddr = tcpip.AddrFrom4([4]byte{127, 0, 0, 1})
	echoData     = []byte("1234567890!@#$%^&*()")
)

// echoRequest builds an IPv4 ICMP echo request from 127.0.0.1 to itself.
func echoRequest(id, seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: echoData},
	}
	body, err := msg.Marshal(nil)
	if err != nil {
		return nil, fmt.Errorf("marshal icmp echo: %w", err)
	}

	pkt := make([]byte, header.IPv4MinimumSize+len(body))
	ip := header.IPv4(pkt)
	ip.Encode(&header.IPv4Fields{
		TotalLength: uint16(len(pkt)),
		ID:          uint16(id),
		TTL:         0xff,
		Protocol:    uint8(header.ICMPv4ProtocolNumber),
		SrcAddr:     loopbackAddr,
		DstAddr:     loopbackAddr,
	})
	ip.SetChecksum(^ip.CalculateChecksum())
	copy(pkt[header.IPv4MinimumSize:], body)
	return pkt, nil
}
