// Package file implements a pcap-file replay source for offline runs.
package file

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Source replays frames from a pcap capture file.
type Source struct {
	path   string
	handle *pcap.Handle
}

// NewSource creates a replay source for the given pcap file.
func NewSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("pcap file path is required")
	}
	return &Source{path: path}, nil
}

// Start opens the pcap file.
func (fs *Source) Start(ctx context.Context) error {
	handle, err := pcap.OpenOffline(fs.path)
	if err != nil {
		return fmt.Errorf("failed to open pcap file %s: %w", fs.path, err)
	}
	fs.handle = handle
	return nil
}

// ReadPacket returns the next frame from the file. io.EOF signals the
// end of the capture.
func (fs *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if fs.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("file source not started")
	}

	data, ci, err := fs.handle.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}

	return data, ci, nil
}

// LinkType reports the capture's link type, defaulting to Ethernet
// before Start.
func (fs *Source) LinkType() layers.LinkType {
	if fs.handle == nil {
		return layers.LinkTypeEthernet
	}
	return fs.handle.LinkType()
}

// Stop closes the file handle.
func (fs *Source) Stop() error {
	if fs.handle != nil {
		fs.handle.Close()
		fs.handle = nil
	}
	return nil
}
