// Package event implements the out-of-band decision log stream.
//
// The classifier emits one fixed-size Event per noteworthy decision.
// Emission is best-effort: events below the configured severity are
// skipped, and events that do not fit the bounded channel are counted
// and discarded. Nothing in this package may block the packet path.
package event

import (
	"fmt"
	"net/netip"
	"time"
)

// Severity levels, low to high.
type Severity uint8

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a config string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "debug":
		return SeverityDebug, nil
	case "info":
		return SeverityInfo, nil
	case "warn", "warning":
		return SeverityWarn, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity: %s", s)
	}
}

// Kind identifies what a classification event reports.
type Kind uint8

const (
	KindPass Kind = iota + 1
	KindDrop
	KindRedirect
	KindProtoMismatch
	KindInvalidPacket
)

// String returns the event kind name.
func (k Kind) String() string {
	switch k {
	case KindPass:
		return "PASS"
	case KindDrop:
		return "DROP"
	case KindRedirect:
		return "REDIRECT"
	case KindProtoMismatch:
		return "PROTOCOL_MISMATCH"
	case KindInvalidPacket:
		return "INVALID_PACKET"
	default:
		return "UNKNOWN"
	}
}

// MessageSize is the fixed capacity of an event message. Longer
// messages are truncated, never overflowed.
const MessageSize = 64

// Event is one fixed-size observability record. Addresses are
// normalized to four 32-bit words; for IPv4 only word 0 is used and
// the rest stay zero.
type Event struct {
	Timestamp time.Time
	SrcAddr   [4]uint32
	DstAddr   [4]uint32
	SrcPort   uint16
	DstPort   uint16
	Protocol  uint8
	IPVersion uint8
	Kind      Kind
	Severity  Severity
	Message   [MessageSize]byte
	msgLen    uint8
}

// SetMessage copies s into the bounded message buffer, truncating at
// MessageSize bytes.
func (e *Event) SetMessage(s string) {
	n := copy(e.Message[:], s)
	e.msgLen = uint8(n)
}

// MessageString returns the message without trailing padding.
func (e *Event) MessageString() string {
	return string(e.Message[:e.msgLen])
}

// SetAddrs normalizes the packet's source and destination addresses
// into the event's word form.
func (e *Event) SetAddrs(src, dst netip.Addr) {
	e.SrcAddr = addrWords(src)
	e.DstAddr = addrWords(dst)
}

// SrcIP reconstructs the source address from the word form.
func (e *Event) SrcIP() netip.Addr { return wordsAddr(e.IPVersion, e.SrcAddr) }

// DstIP reconstructs the destination address from the word form.
func (e *Event) DstIP() netip.Addr { return wordsAddr(e.IPVersion, e.DstAddr) }

func addrWords(addr netip.Addr) [4]uint32 {
	var w [4]uint32
	if !addr.IsValid() {
		return w
	}
	if addr.Is4() {
		b := addr.As4()
		w[0] = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		return w
	}
	b := addr.As16()
	for i := 0; i < 4; i++ {
		w[i] = uint32(b[i*4])<<24 | uint32(b[i*4+1])<<16 | uint32(b[i*4+2])<<8 | uint32(b[i*4+3])
	}
	return w
}

func wordsAddr(version uint8, w [4]uint32) netip.Addr {
	if version == 4 {
		return netip.AddrFrom4([4]byte{byte(w[0] >> 24), byte(w[0] >> 16), byte(w[0] >> 8), byte(w[0])})
	}
	var b [16]byte
	for i := 0; i < 4; i++ {
		b[i*4] = byte(w[i] >> 24)
		b[i*4+1] = byte(w[i] >> 16)
		b[i*4+2] = byte(w[i] >> 8)
		b[i*4+3] = byte(w[i])
	}
	return netip.AddrFrom16(b)
}
