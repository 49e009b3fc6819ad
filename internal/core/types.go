// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16 // 0x0800=IPv4, 0x86DD=IPv6, 0x0806=ARP
}

// IPv4Header represents the fixed part of an IPv4 header.
type IPv4Header struct {
	SrcIP    netip.Addr // Go stdlib value type, zero allocation
	DstIP    netip.Addr
	Protocol uint8
	TotalLen uint16
}

// IPv6Header represents an IPv6 base header after the extension-header
// chain has been walked. Protocol is the terminal transport protocol,
// not the base header's next-header value.
type IPv6Header struct {
	SrcIP      netip.Addr
	DstIP      netip.Addr
	Protocol   uint8
	PayloadLen uint16
}

// TransportHeader represents L4 transport layer header (TCP/UDP).
type TransportHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}
