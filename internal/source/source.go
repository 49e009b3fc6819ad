// Package source defines the frame ingress abstraction feeding the
// classifier.
package source

import (
	"context"

	"github.com/google/gopacket"
)

// Source delivers raw Ethernet frames to the classification loop.
type Source interface {
	// Start opens the underlying handle. Must be called before ReadPacket.
	Start(ctx context.Context) error

	// ReadPacket returns the next frame. io.EOF signals a finite source
	// is exhausted.
	ReadPacket() (data []byte, info gopacket.CaptureInfo, err error)

	// Stop closes the underlying handle.
	Stop() error
}
