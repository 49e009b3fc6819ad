package decoder

import (
	"net/netip"
	"testing"

	"github.com/nivex/fastgate/internal/core"
)

// Helper to build an Ethernet header with the given ethertype.
func makeEthernet(etherType uint16) []byte {
	eth := make([]byte, 14)
	// Dst MAC: 00:11:22:33:44:55
	eth[0], eth[1], eth[2] = 0x00, 0x11, 0x22
	eth[3], eth[4], eth[5] = 0x33, 0x44, 0x55
	// Src MAC: AA:BB:CC:DD:EE:FF
	eth[6], eth[7], eth[8] = 0xAA, 0xBB, 0xCC
	eth[9], eth[10], eth[11] = 0xDD, 0xEE, 0xFF
	eth[12] = byte(etherType >> 8)
	eth[13] = byte(etherType)
	return eth
}

// Helper to build an IPv4 header for the given protocol.
func makeIPv4(protocol uint8, ihl int) []byte {
	ip := make([]byte, ihl*4)
	ip[0] = 0x40 | byte(ihl) // Version 4
	ip[2], ip[3] = 0x00, 0x1C
	ip[8] = 64 // TTL
	ip[9] = protocol
	// Src IP: 192.168.1.1
	ip[12], ip[13], ip[14], ip[15] = 192, 168, 1, 1
	// Dst IP: 192.168.1.2
	ip[16], ip[17], ip[18], ip[19] = 192, 168, 1, 2
	return ip
}

// Helper to build an IPv6 base header with the given next header.
func makeIPv6(nextHeader uint8) []byte {
	ip := make([]byte, 40)
	ip[0] = 0x60 // Version 6
	ip[4], ip[5] = 0x00, 0x08
	ip[6] = nextHeader
	ip[7] = 64 // Hop limit
	// Src IP: 2001:db8::1
	ip[8], ip[9] = 0x20, 0x01
	ip[10], ip[11] = 0x0d, 0xb8
	ip[23] = 0x01
	// Dst IP: 2001:db8::2
	ip[24], ip[25] = 0x20, 0x01
	ip[26], ip[27] = 0x0d, 0xb8
	ip[39] = 0x02
	return ip
}

func makeUDP(srcPort, dstPort uint16) []byte {
	udp := make([]byte, 8)
	udp[0], udp[1] = byte(srcPort>>8), byte(srcPort)
	udp[2], udp[3] = byte(dstPort>>8), byte(dstPort)
	udp[4], udp[5] = 0x00, 0x08
	return udp
}

func makeTCP(srcPort, dstPort uint16) []byte {
	tcp := make([]byte, 20)
	tcp[0], tcp[1] = byte(srcPort>>8), byte(srcPort)
	tcp[2], tcp[3] = byte(dstPort>>8), byte(dstPort)
	tcp[12] = 0x50 // Data offset: 5 words
	return tcp
}

func TestParseEthernet(t *testing.T) {
	frame := makeEthernet(EtherTypeIPv4)
	c := NewCursor(frame)

	eth, err := ParseEthernet(&c)
	if err != nil {
		t.Fatalf("ParseEthernet failed: %v", err)
	}

	if eth.EtherType != EtherTypeIPv4 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", eth.EtherType)
	}
	expectedSrcMAC := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if eth.SrcMAC != expectedSrcMAC {
		t.Errorf("Expected SrcMAC %v, got %v", expectedSrcMAC, eth.SrcMAC)
	}
	if c.Offset() != 14 {
		t.Errorf("Expected cursor at 14, got %d", c.Offset())
	}
}

func TestParseEthernetTooShort(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03})
	if _, err := ParseEthernet(&c); err != core.ErrPacketTooShort {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestParseEthernetVLANNotUnwrapped(t *testing.T) {
	// A VLAN-tagged frame surfaces the TPID as the ethertype; the
	// decoder never looks inside the tag.
	frame := makeEthernet(0x8100)
	c := NewCursor(frame)

	eth, err := ParseEthernet(&c)
	if err != nil {
		t.Fatalf("ParseEthernet failed: %v", err)
	}
	if eth.EtherType != 0x8100 {
		t.Errorf("Expected TPID 0x8100 as ethertype, got 0x%04x", eth.EtherType)
	}
}

func TestParseIPv4(t *testing.T) {
	c := NewCursor(makeIPv4(core.ProtoNumUDP, 5))

	ip, err := ParseIPv4(&c)
	if err != nil {
		t.Fatalf("ParseIPv4 failed: %v", err)
	}

	if ip.Protocol != core.ProtoNumUDP {
		t.Errorf("Expected protocol 17, got %d", ip.Protocol)
	}
	if ip.SrcIP != netip.MustParseAddr("192.168.1.1") {
		t.Errorf("Expected SrcIP 192.168.1.1, got %v", ip.SrcIP)
	}
	if ip.DstIP != netip.MustParseAddr("192.168.1.2") {
		t.Errorf("Expected DstIP 192.168.1.2, got %v", ip.DstIP)
	}
	if c.Offset() != 20 {
		t.Errorf("Expected cursor at 20, got %d", c.Offset())
	}
}

func TestParseIPv4WithOptions(t *testing.T) {
	// IHL 7 means 8 bytes of options; the cursor must land after them.
	c := NewCursor(makeIPv4(core.ProtoNumTCP, 7))

	ip, err := ParseIPv4(&c)
	if err != nil {
		t.Fatalf("ParseIPv4 failed: %v", err)
	}
	if ip.Protocol != core.ProtoNumTCP {
		t.Errorf("Expected protocol 6, got %d", ip.Protocol)
	}
	if c.Offset() != 28 {
		t.Errorf("Expected cursor at 28, got %d", c.Offset())
	}
}

func TestParseIPv4Truncated(t *testing.T) {
	c := NewCursor(makeIPv4(core.ProtoNumUDP, 5)[:19])
	if _, err := ParseIPv4(&c); err != core.ErrPacketTooShort {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestParseIPv4BadIHL(t *testing.T) {
	pkt := makeIPv4(core.ProtoNumUDP, 5)
	pkt[0] = 0x42 // IHL 2, below minimum
	c := NewCursor(pkt)
	if _, err := ParseIPv4(&c); err != core.ErrPacketTooShort {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestParseIPv6NoExtensions(t *testing.T) {
	c := NewCursor(makeIPv6(core.ProtoNumTCP))

	ip, err := ParseIPv6(&c)
	if err != nil {
		t.Fatalf("ParseIPv6 failed: %v", err)
	}

	if ip.Protocol != core.ProtoNumTCP {
		t.Errorf("Expected protocol 6, got %d", ip.Protocol)
	}
	if ip.SrcIP != netip.MustParseAddr("2001:db8::1") {
		t.Errorf("Expected SrcIP 2001:db8::1, got %v", ip.SrcIP)
	}
	if c.Offset() != 40 {
		t.Errorf("Expected cursor at 40, got %d", c.Offset())
	}
}

func TestParseIPv6ExtensionChain(t *testing.T) {
	// Hop-by-hop (16 bytes) then destination options (8 bytes) then UDP.
	pkt := makeIPv6(extHopByHop)

	hbh := make([]byte, 16)
	hbh[0] = extDestOpts
	hbh[1] = 1 // (1+1)*8 = 16 bytes
	pkt = append(pkt, hbh...)

	dst := make([]byte, 8)
	dst[0] = core.ProtoNumUDP
	dst[1] = 0
	pkt = append(pkt, dst...)

	pkt = append(pkt, makeUDP(5000, 5001)...)

	c := NewCursor(pkt)
	ip, err := ParseIPv6(&c)
	if err != nil {
		t.Fatalf("ParseIPv6 failed: %v", err)
	}
	if ip.Protocol != core.ProtoNumUDP {
		t.Errorf("Expected terminal protocol 17, got %d", ip.Protocol)
	}
	if c.Offset() != 40+16+8 {
		t.Errorf("Expected cursor at %d, got %d", 40+16+8, c.Offset())
	}

	tr, err := ParseTransport(&c, ip.Protocol)
	if err != nil {
		t.Fatalf("ParseTransport failed: %v", err)
	}
	if tr.DstPort != 5001 {
		t.Errorf("Expected DstPort 5001, got %d", tr.DstPort)
	}
}

func TestParseIPv6FragmentFixedLength(t *testing.T) {
	// Fragment headers are always 8 bytes; byte 1 is reserved and must
	// not be read as a length.
	pkt := makeIPv6(extFragment)

	frag := make([]byte, 8)
	frag[0] = core.ProtoNumTCP
	frag[1] = 0xFF // reserved; a length read here would walk off the frame
	pkt = append(pkt, frag...)
	pkt = append(pkt, makeTCP(80, 443)...)

	c := NewCursor(pkt)
	ip, err := ParseIPv6(&c)
	if err != nil {
		t.Fatalf("ParseIPv6 failed: %v", err)
	}
	if ip.Protocol != core.ProtoNumTCP {
		t.Errorf("Expected terminal protocol 6, got %d", ip.Protocol)
	}
	if c.Offset() != 48 {
		t.Errorf("Expected cursor at 48, got %d", c.Offset())
	}
}

func TestParseIPv6ChainTooDeep(t *testing.T) {
	// Seven chained hop-by-hop headers exceed the six-hop cap.
	pkt := makeIPv6(extHopByHop)
	for i := 0; i < 7; i++ {
		ext := make([]byte, 8)
		ext[0] = extHopByHop
		ext[1] = 0
		pkt = append(pkt, ext...)
	}

	c := NewCursor(pkt)
	if _, err := ParseIPv6(&c); err != core.ErrExtChainTooDeep {
		t.Errorf("Expected ErrExtChainTooDeep, got %v", err)
	}
}

func TestParseIPv6ChainAtHopCap(t *testing.T) {
	// Exactly six extension headers with the transport right behind
	// them sit on the cap and must still parse.
	pkt := makeIPv6(extHopByHop)
	for i := 0; i < 6; i++ {
		ext := make([]byte, 8)
		if i < 5 {
			ext[0] = extHopByHop
		} else {
			ext[0] = core.ProtoNumUDP
		}
		pkt = append(pkt, ext...)
	}
	pkt = append(pkt, makeUDP(5000, 5001)...)

	c := NewCursor(pkt)
	ip, err := ParseIPv6(&c)
	if err != nil {
		t.Fatalf("ParseIPv6 failed: %v", err)
	}
	if ip.Protocol != core.ProtoNumUDP {
		t.Errorf("Expected terminal protocol 17, got %d", ip.Protocol)
	}
	if c.Offset() != 40+6*8 {
		t.Errorf("Expected cursor at %d, got %d", 40+6*8, c.Offset())
	}
}

func TestParseIPv6TruncatedExtension(t *testing.T) {
	pkt := makeIPv6(extRouting)
	pkt = append(pkt, extHopByHop, 0x03) // claims 32 bytes, only 2 present

	c := NewCursor(pkt)
	if _, err := ParseIPv6(&c); err != core.ErrPacketTooShort {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestParseTransportUDP(t *testing.T) {
	c := NewCursor(makeUDP(5000, 5001))

	tr, err := ParseTransport(&c, core.ProtoNumUDP)
	if err != nil {
		t.Fatalf("ParseTransport failed: %v", err)
	}
	if tr.SrcPort != 5000 || tr.DstPort != 5001 {
		t.Errorf("Expected ports 5000->5001, got %d->%d", tr.SrcPort, tr.DstPort)
	}
}

func TestParseTransportTCP(t *testing.T) {
	c := NewCursor(makeTCP(34567, 443))

	tr, err := ParseTransport(&c, core.ProtoNumTCP)
	if err != nil {
		t.Fatalf("ParseTransport failed: %v", err)
	}
	if tr.SrcPort != 34567 || tr.DstPort != 443 {
		t.Errorf("Expected ports 34567->443, got %d->%d", tr.SrcPort, tr.DstPort)
	}
}

func TestParseTransportPortless(t *testing.T) {
	c := NewCursor(make([]byte, 8))
	if _, err := ParseTransport(&c, core.ProtoNumICMP); err != core.ErrNoTransport {
		t.Errorf("Expected ErrNoTransport, got %v", err)
	}
}

func TestParseTransportTruncated(t *testing.T) {
	c := NewCursor(makeTCP(80, 443)[:10])
	if _, err := ParseTransport(&c, core.ProtoNumTCP); err != core.ErrPacketTooShort {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}
