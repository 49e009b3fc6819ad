// Package decoder implements bounded L2-L4 header parsing.
//
// Every parser reads forward from a cursor over the validated frame
// bytes and fails with core.ErrPacketTooShort instead of reading past
// the end. No parser loops over attacker-controlled lengths: the only
// loop is the IPv6 extension-header walk, which is capped at
// maxExtensionHops iterations.
package decoder

const (
	// EtherType values
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
	EtherTypeIPv6 = 0x86DD
)

// Cursor tracks a read position inside one received frame. The frame
// bytes are never mutated; parsers only advance the offset.
type Cursor struct {
	data []byte
	off  int
}

// NewCursor creates a cursor at the start of the frame.
func NewCursor(data []byte) Cursor {
	return Cursor{data: data}
}

// Offset returns the current read position.
func (c *Cursor) Offset() int { return c.off }

// Remaining returns how many unread bytes are left.
func (c *Cursor) Remaining() int { return len(c.data) - c.off }

// has reports whether n more bytes can be read without crossing the
// end of the frame. This is the single bounds check all parsers go
// through.
func (c *Cursor) has(n int) bool {
	return n >= 0 && c.off+n <= len(c.data)
}
