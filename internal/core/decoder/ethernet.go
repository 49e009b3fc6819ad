package decoder

import (
	"encoding/binary"

	"github.com/nivex/fastgate/internal/core"
)

const ethernetHeaderLen = 14

// ParseEthernet reads the fixed 14-byte Ethernet header at the cursor
// and advances past it. VLAN tags are not unwrapped; a tagged frame
// surfaces its TPID as the EtherType and falls through classification
// as an unknown ethertype.
func ParseEthernet(c *Cursor) (core.EthernetHeader, error) {
	if !c.has(ethernetHeaderLen) {
		return core.EthernetHeader{}, core.ErrPacketTooShort
	}

	d := c.data[c.off:]
	eth := core.EthernetHeader{
		DstMAC:    [6]byte(d[0:6]),
		SrcMAC:    [6]byte(d[6:12]),
		EtherType: binary.BigEndian.Uint16(d[12:14]),
	}

	c.off += ethernetHeaderLen
	return eth, nil
}
