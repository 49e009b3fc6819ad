package core

// IP protocol numbers used by the classifier.
const (
	ProtoNumICMP   = 1
	ProtoNumTCP    = 6
	ProtoNumUDP    = 17
	ProtoNumFrag   = 44
	ProtoNumICMPv6 = 58
)

// Protocol bitmask flags. A whitelist entry's mask is an OR of these;
// a zero mask is reserved to mean "entry absent".
const (
	MaskTCP    uint8 = 1 << 0
	MaskUDP    uint8 = 1 << 1
	MaskICMP   uint8 = 1 << 2
	MaskICMPv6 uint8 = 1 << 3
	MaskAll    uint8 = 0xFF
)

// ProtocolMask maps an IP protocol number to its bitmask flag.
// Unrecognized protocols map to zero, which can never match a
// stored whitelist entry.
func ProtocolMask(proto uint8) uint8 {
	switch proto {
	case ProtoNumTCP:
		return MaskTCP
	case ProtoNumUDP:
		return MaskUDP
	case ProtoNumICMP:
		return MaskICMP
	case ProtoNumICMPv6:
		return MaskICMPv6
	default:
		return 0
	}
}

// ProtocolName returns a human-readable name for an IP protocol number.
func ProtocolName(proto uint8) string {
	switch proto {
	case ProtoNumTCP:
		return "TCP"
	case ProtoNumUDP:
		return "UDP"
	case ProtoNumICMP:
		return "ICMP"
	case ProtoNumICMPv6:
		return "ICMPv6"
	case ProtoNumFrag:
		return "Fragment"
	default:
		return "Unknown"
	}
}

// MaskNames expands a protocol bitmask into flag names, in bit order.
func MaskNames(mask uint8) []string {
	var names []string
	if mask&MaskTCP != 0 {
		names = append(names, "tcp")
	}
	if mask&MaskUDP != 0 {
		names = append(names, "udp")
	}
	if mask&MaskICMP != 0 {
		names = append(names, "icmp")
	}
	if mask&MaskICMPv6 != 0 {
		names = append(names, "icmpv6")
	}
	return names
}
