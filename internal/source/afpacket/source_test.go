package afpacket

import (
	"io"
	"testing"
)

func TestReadPacketOnStoppedSource(t *testing.T) {
	s := &Source{}

	if _, _, err := s.ReadPacket(); err != io.EOF {
		t.Errorf("ReadPacket on unstarted source = %v, want io.EOF", err)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if _, _, err := s.ReadPacket(); err != io.EOF {
		t.Errorf("ReadPacket after Stop = %v, want io.EOF", err)
	}
}
