// Package afpacket implements a live AF_PACKET ingress source.
package afpacket

import (
	"context"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"github.com/nivex/fastgate/internal/config"
)

// Source reads raw frames from a network device through a TPacket v3
// memory-mapped ring.
type Source struct {
	handle *afpacket.TPacket

	device    string
	frameSize int
	blockSize int
	numBlocks int
	timeoutMs int
	fanoutID  uint16
	bpfFilter string
}

// NewSource builds a source from capture configuration. The ring
// geometry is derived from the configured buffer budget and snap
// length.
func NewSource(cfg config.CaptureConfig) (*Source, error) {
	pageSize := os.Getpagesize()
	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, pageSize)
	if err != nil {
		return nil, err
	}
	return &Source{
		device:    cfg.Device,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
		timeoutMs: cfg.TimeoutMs,
		fanoutID:  cfg.FanoutID,
		bpfFilter: cfg.BPFFilter,
	}, nil
}

// Start opens the AF_PACKET handle and applies fanout and kernel
// filter options.
func (s *Source) Start(ctx context.Context) error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return err
	}

	if s.fanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, s.fanoutID); err != nil {
			tp.Close()
			return err
		}
	}

	if s.bpfFilter != "" {
		pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, s.frameSize, s.bpfFilter)
		if err != nil {
			tp.Close()
			return err
		}
		rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
		for i, inst := range pcapBPF {
			rawBPF[i] = bpf.RawInstruction{
				Op: inst.Code,
				Jt: inst.Jt,
				Jf: inst.Jf,
				K:  inst.K,
			}
		}
		if err := tp.SetBPF(rawBPF); err != nil {
			tp.Close()
			return err
		}
	}

	s.handle = tp
	return nil
}

// ReadPacket returns the next captured frame. A source that was never
// started, or has been stopped, reports io.EOF.
func (s *Source) ReadPacket() (data []byte, info gopacket.CaptureInfo, err error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	return s.handle.ReadPacketData()
}

// Stop closes the handle.
func (s *Source) Stop() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
