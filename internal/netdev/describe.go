package netdev

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// Describe renders a one-line summary of payload for diagnostics. Only the
// network header is inspected; nothing is validated beyond what is needed to
// read it safely.
func Describe(etherType uint16, payload []byte) string {
	switch tcpip.NetworkProtocolNumber(etherType) {
	case header.IPv4ProtocolNumber:
		ip := header.IPv4(payload)
		if !ip.IsValid(len(payload)) {
			return fmt.Sprintf("ipv4 malformed len=%d", len(payload))
		}
		return fmt.Sprintf("ipv4 %s > %s proto=%d len=%d",
			ip.SourceAddress(), ip.DestinationAddress(), ip.Protocol(), ip.TotalLength())
	case header.IPv6ProtocolNumber:
		ip := header.IPv6(payload)
		if !ip.IsValid(len(payload)) {
			return fmt.Sprintf("ipv6 malformed len=%d", len(payload))
		}
		return fmt.Sprintf("ipv6 %s > %s next=%d len=%d",
			ip.SourceAddress(), ip.DestinationAddress(), ip.NextHeader(), ip.PayloadLength())
	case header.ARPProtocolNumber:
		arp := header.ARP(payload)
		if !arp.IsValid() {
			return fmt.Sprintf("arp malformed len=%d", len(payload))
		}
		return fmt.Sprintf("arp op=%d", arp.Op())
	}
	return fmt.Sprintf("type=0x%04x len=%d", etherType, len(payload))
}
