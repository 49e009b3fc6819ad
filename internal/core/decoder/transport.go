package decoder

import (
	"encoding/binary"

	"github.com/nivex/fastgate/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
)

// ParseTransport reads the fixed TCP or UDP header at the cursor and
// extracts the port pair. Protocols without a port concept fail with
// ErrNoTransport so the caller can fall back to its portless policy.
func ParseTransport(c *Cursor, protocol uint8) (core.TransportHeader, error) {
	switch protocol {
	case core.ProtoNumTCP:
		return parseTCP(c)
	case core.ProtoNumUDP:
		return parseUDP(c)
	default:
		return core.TransportHeader{}, core.ErrNoTransport
	}
}

func parseUDP(c *Cursor) (core.TransportHeader, error) {
	if !c.has(udpHeaderLen) {
		return core.TransportHeader{}, core.ErrPacketTooShort
	}

	d := c.data[c.off:]
	t := core.TransportHeader{
		SrcPort:  binary.BigEndian.Uint16(d[0:2]),
		DstPort:  binary.BigEndian.Uint16(d[2:4]),
		Protocol: core.ProtoNumUDP,
	}

	c.off += udpHeaderLen
	return t, nil
}

func parseTCP(c *Cursor) (core.TransportHeader, error) {
	if !c.has(tcpHeaderMinLen) {
		return core.TransportHeader{}, core.ErrPacketTooShort
	}

	d := c.data[c.off:]
	t := core.TransportHeader{
		SrcPort:  binary.BigEndian.Uint16(d[0:2]),
		DstPort:  binary.BigEndian.Uint16(d[2:4]),
		Protocol: core.ProtoNumTCP,
	}

	c.off += tcpHeaderMinLen
	return t, nil
}
