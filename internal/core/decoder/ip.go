package decoder

import (
	"encoding/binary"
	"net/netip"

	"github.com/nivex/fastgate/internal/core"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
	ipv6ExtHeaderLen = 8 // minimum extension header size

	// maxExtensionHops bounds the IPv6 extension-header walk. A chain
	// longer than this fails the parse rather than looping further.
	maxExtensionHops = 6
)

// IPv6 extension headers the walk knows how to skip.
const (
	extHopByHop = 0
	extRouting  = 43
	extFragment = 44
	extDestOpts = 60
)

// ParseIPv4 reads an IPv4 header at the cursor and advances past it,
// honoring the IHL field so transport parsing starts after any options.
func ParseIPv4(c *Cursor) (core.IPv4Header, error) {
	if !c.has(ipv4HeaderMinLen) {
		return core.IPv4Header{}, core.ErrPacketTooShort
	}

	d := c.data[c.off:]

	// IHL is in 32-bit words; anything below 5 is malformed.
	headerLen := int(d[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || !c.has(headerLen) {
		return core.IPv4Header{}, core.ErrPacketTooShort
	}

	ip := core.IPv4Header{
		TotalLen: binary.BigEndian.Uint16(d[2:4]),
		Protocol: d[9],
		SrcIP:    netip.AddrFrom4([4]byte(d[12:16])),
		DstIP:    netip.AddrFrom4([4]byte(d[16:20])),
	}

	c.off += headerLen
	return ip, nil
}

// ParseIPv6 reads an IPv6 base header and walks the extension-header
// chain until it finds the terminal transport protocol, advancing the
// cursor to the transport header. The walk skips at most
// maxExtensionHops headers; deeper chains fail with ErrExtChainTooDeep.
func ParseIPv6(c *Cursor) (core.IPv6Header, error) {
	if !c.has(ipv6HeaderLen) {
		return core.IPv6Header{}, core.ErrPacketTooShort
	}

	d := c.data[c.off:]
	ip := core.IPv6Header{
		PayloadLen: binary.BigEndian.Uint16(d[4:6]),
		SrcIP:      netip.AddrFrom16([16]byte(d[8:24])),
		DstIP:      netip.AddrFrom16([16]byte(d[24:40])),
	}

	cur := d[6]
	c.off += ipv6HeaderLen

	for hop := 0; ; hop++ {
		if !isExtensionHeader(cur) {
			ip.Protocol = cur
			return ip, nil
		}
		if hop == maxExtensionHops {
			return core.IPv6Header{}, core.ErrExtChainTooDeep
		}
		if !c.has(ipv6ExtHeaderLen) {
			return core.IPv6Header{}, core.ErrPacketTooShort
		}

		ext := c.data[c.off:]

		// Fragment headers are fixed at 8 bytes; the others carry
		// their length in 8-byte units excluding the first 8.
		extLen := ipv6ExtHeaderLen
		if cur != extFragment {
			extLen = (int(ext[1]) + 1) * 8
		}
		if !c.has(extLen) {
			return core.IPv6Header{}, core.ErrPacketTooShort
		}

		cur = ext[0]
		c.off += extLen
	}
}

func isExtensionHeader(proto uint8) bool {
	switch proto {
	case extHopByHop, extRouting, extFragment, extDestOpts:
		return true
	default:
		return false
	}
}
