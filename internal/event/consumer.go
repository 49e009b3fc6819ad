package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nivex/fastgate/internal/core"
)

// Consumer drains a ChannelSink and re-logs each event through slog
// at the event's own severity. It also periodically reports how many
// events the emitter had to discard under pressure, so gaps in the
// stream are visible to operators.
type Consumer struct {
	sink    *ChannelSink
	emitter *Emitter

	lastDropped uint64
}

// NewConsumer creates a consumer for the given sink and emitter.
func NewConsumer(sink *ChannelSink, emitter *Emitter) *Consumer {
	return &Consumer{sink: sink, emitter: emitter}
}

// Run consumes events until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	slog.Info("event consumer started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("event consumer stopped")
			return
		case ev := <-c.sink.Events():
			c.logEvent(&ev)
			c.reportLost()
		}
	}
}

func (c *Consumer) logEvent(ev *Event) {
	msg := fmt.Sprintf("[%s] IPv%d %s %s:%d -> %s:%d | %s",
		ev.Kind,
		ev.IPVersion,
		core.ProtocolName(ev.Protocol),
		ev.SrcIP(), ev.SrcPort,
		ev.DstIP(), ev.DstPort,
		ev.MessageString(),
	)

	switch ev.Severity {
	case SeverityDebug:
		slog.Debug(msg)
	case SeverityWarn:
		slog.Warn(msg)
	case SeverityError:
		slog.Error(msg)
	default:
		slog.Info(msg)
	}
}

// reportLost logs the delta of discarded events since the last check.
func (c *Consumer) reportLost() {
	dropped := c.emitter.Dropped()
	if dropped > c.lastDropped {
		slog.Warn("classification events lost under pressure",
			"lost", dropped-c.lastDropped, "total_lost", dropped)
		c.lastDropped = dropped
	}
}
