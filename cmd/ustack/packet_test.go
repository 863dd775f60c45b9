package main

import (
	"testing"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/tinyrange/ustack/internal/netdev"
)

func TestEchoRequest(t *testing.T) {
	pkt, err := echoRequest(0x80, 1)
	if err != nil {
		t.Fatalf("echoRequest: %v", err)
	}
	if len(pkt) != 48 {
		t.Fatalf("len = %d, want 48", len(pkt))
	}

	ip := header.IPv4(pkt)
	if !ip.IsValid(len(pkt)) {
		t.Fatalf("invalid ipv4 header")
	}
	if !ip.IsChecksumValid() {
		t.Fatalf("bad ipv4 checksum")
	}
	if got := netdev.Describe(0x0800, pkt); got != "ipv4 127.0.0.1 > 127.0.0.1 proto=1 len=48" {
		t.Fatalf("Describe = %q", got)
	}

	msg, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), ip.Payload())
	if err != nil {
		t.Fatalf("parse icmp: %v", err)
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if msg.Type != ipv4.ICMPTypeEcho || !ok {
		t.Fatalf("got %v %T, want echo request", msg.Type, msg.Body)
	}
	if echo.ID != 0x80 || echo.Seq != 1 || string(echo.Data) != string(echoData) {
		t.Fatalf("echo = %+v", echo)
	}
}
