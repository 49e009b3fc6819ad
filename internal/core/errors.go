// Package core defines sentinel errors.
package core

import "errors"

var (
	// Packet decoding errors
	ErrPacketTooShort  = errors.New("fastgate: packet too short")
	ErrExtChainTooDeep = errors.New("fastgate: ipv6 extension chain exceeds hop cap")
	ErrNoTransport     = errors.New("fastgate: protocol has no transport header")

	// Whitelist errors
	ErrTableFull = errors.New("fastgate: whitelist table at capacity")
	ErrZeroMask  = errors.New("fastgate: protocol mask must be non-zero")

	// Redirect errors
	ErrQueueOutOfRange = errors.New("fastgate: queue index out of range")
	ErrEndpointInvalid = errors.New("fastgate: endpoint id must be non-negative")

	// Configuration errors
	ErrConfigInvalid = errors.New("fastgate: invalid configuration")
)
