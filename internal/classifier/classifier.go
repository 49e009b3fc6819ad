// Package classifier implements the per-frame redirect/drop/pass
// decision engine.
//
// Classify runs synchronously on the receive path: it parses only
// fixed-size headers with bounds-checked forward reads, performs at
// most one lookup per whitelist table, allocates nothing, and always
// returns a decision. Anomalies never surface as errors; they flow
// out-of-band through the event emitter.
package classifier

import (
	"net/netip"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nivex/fastgate/internal/core"
	"github.com/nivex/fastgate/internal/core/decoder"
	"github.com/nivex/fastgate/internal/event"
	"github.com/nivex/fastgate/internal/metrics"
	"github.com/nivex/fastgate/internal/whitelist"
)

// Classifier decides the fate of each received frame using the
// role-partitioned whitelist tables. The source-address ("client")
// role is decisive: a source-table hit never falls through to the
// destination-port ("listener") role.
type Classifier struct {
	tables   *whitelist.Tables
	emitter  *event.Emitter
	resolver *Resolver
	queue    int

	// Counters resolved once; WithLabelValues on the hot path allocates.
	passTotal     prometheus.Counter
	dropTotal     prometheus.Counter
	redirectTotal prometheus.Counter
	failEthernet  prometheus.Counter
	failIPv4      prometheus.Counter
	failIPv6      prometheus.Counter
	failTransport prometheus.Counter
}

// New creates a classifier redirecting to the given logical queue.
func New(tables *whitelist.Tables, emitter *event.Emitter, resolver *Resolver, queue int) *Classifier {
	return &Classifier{
		tables:   tables,
		emitter:  emitter,
		resolver: resolver,
		queue:    queue,

		passTotal:     metrics.DecisionsTotal.WithLabelValues("pass"),
		dropTotal:     metrics.DecisionsTotal.WithLabelValues("drop"),
		redirectTotal: metrics.DecisionsTotal.WithLabelValues("redirect"),
		failEthernet:  metrics.ParseFailuresTotal.WithLabelValues("ethernet"),
		failIPv4:      metrics.ParseFailuresTotal.WithLabelValues("ipv4"),
		failIPv6:      metrics.ParseFailuresTotal.WithLabelValues("ipv6"),
		failTransport: metrics.ParseFailuresTotal.WithLabelValues("transport"),
	}
}

// Classify produces the decision for one raw Ethernet frame.
func (c *Classifier) Classify(frame []byte) core.Decision {
	cur := decoder.NewCursor(frame)

	eth, err := decoder.ParseEthernet(&cur)
	if err != nil {
		c.failEthernet.Inc()
		return c.pass(event.Event{
			Kind:     event.KindInvalidPacket,
			Severity: event.SeverityDebug,
		}, "ethernet header truncated")
	}

	switch eth.EtherType {
	case decoder.EtherTypeARP:
		// ARP must always reach the fast-path consumer so address
		// resolution works; no whitelist check applies.
		return c.redirect(event.Event{
			Kind:     event.KindRedirect,
			Severity: event.SeverityDebug,
		}, "arp fast-path")

	case decoder.EtherTypeIPv4:
		return c.classifyIPv4(&cur)

	case decoder.EtherTypeIPv6:
		return c.classifyIPv6(&cur)

	default:
		return c.pass(event.Event{
			Kind:     event.KindPass,
			Severity: event.SeverityDebug,
		}, "unsupported ethertype")
	}
}

// classifyIPv4 is fail-open: a malformed IPv4 header passes to the
// ordinary stack.
func (c *Classifier) classifyIPv4(cur *decoder.Cursor) core.Decision {
	ip, err := decoder.ParseIPv4(cur)
	if err != nil {
		c.failIPv4.Inc()
		return c.pass(event.Event{
			IPVersion: 4,
			Kind:      event.KindInvalidPacket,
			Severity:  event.SeverityDebug,
		}, "ipv4 header truncated")
	}

	protoMask := core.ProtocolMask(ip.Protocol)
	if mask, ok := c.tables.SrcV4.Lookup(ip.SrcIP); ok {
		return c.sourceVerdict(4, ip.SrcIP, ip.DstIP, ip.Protocol, mask, protoMask)
	}

	return c.listenerCheck(cur, 4, ip.SrcIP, ip.DstIP, ip.Protocol, protoMask)
}

// classifyIPv6 is fail-closed: a malformed IPv6 header or an
// over-long extension chain drops the frame.
func (c *Classifier) classifyIPv6(cur *decoder.Cursor) core.Decision {
	ip, err := decoder.ParseIPv6(cur)
	if err != nil {
		c.failIPv6.Inc()
		msg := "ipv6 header truncated"
		if err == core.ErrExtChainTooDeep {
			msg = "ipv6 extension chain exceeds hop cap"
		}
		return c.drop(event.Event{
			IPVersion: 6,
			Kind:      event.KindInvalidPacket,
			Severity:  event.SeverityError,
		}, msg)
	}

	protoMask := core.ProtocolMask(ip.Protocol)
	if mask, ok := c.tables.SrcV6.Lookup(ip.SrcIP); ok {
		return c.sourceVerdict(6, ip.SrcIP, ip.DstIP, ip.Protocol, mask, protoMask)
	}

	return c.listenerCheck(cur, 6, ip.SrcIP, ip.DstIP, ip.Protocol, protoMask)
}

// sourceVerdict settles a frame whose source address is listed. The
// client role is decisive: a protocol mismatch drops here instead of
// falling through to the port table.
func (c *Classifier) sourceVerdict(version uint8, src, dst netip.Addr, proto, entryMask, protoMask uint8) core.Decision {
	ev := event.Event{
		IPVersion: version,
		Protocol:  proto,
	}
	ev.SetAddrs(src, dst)

	if entryMask&protoMask != 0 {
		ev.Kind = event.KindRedirect
		ev.Severity = event.SeverityDebug
		return c.redirect(ev, "source whitelist match")
	}

	ev.Kind = event.KindProtoMismatch
	ev.Severity = event.SeverityWarn
	return c.drop(ev, "source listed, protocol not allowed")
}

// listenerCheck is reached only on a source-table miss. Only TCP and
// UDP carry a destination port; everything else passes.
func (c *Classifier) listenerCheck(cur *decoder.Cursor, version uint8, src, dst netip.Addr, proto, protoMask uint8) core.Decision {
	ev := event.Event{
		IPVersion: version,
		Protocol:  proto,
	}
	ev.SetAddrs(src, dst)

	t, err := decoder.ParseTransport(cur, proto)
	if err != nil {
		if err == core.ErrPacketTooShort {
			c.failTransport.Inc()
		}
		ev.Kind = event.KindPass
		ev.Severity = event.SeverityDebug
		return c.pass(ev, "no listener port to match")
	}

	ev.SrcPort = t.SrcPort
	ev.DstPort = t.DstPort

	mask, ok := c.tables.DstPort.Lookup(t.DstPort)
	if !ok {
		ev.Kind = event.KindPass
		ev.Severity = event.SeverityDebug
		return c.pass(ev, "no whitelist match")
	}

	if mask&protoMask != 0 {
		ev.Kind = event.KindRedirect
		ev.Severity = event.SeverityDebug
		return c.redirect(ev, "destination port whitelist match")
	}

	ev.Kind = event.KindProtoMismatch
	ev.Severity = event.SeverityWarn
	return c.drop(ev, "port listed, protocol not allowed")
}

// redirect finalizes a Redirect decision, degrading to Pass when no
// endpoint is registered for the target queue: with nobody to
// deliver to, the ordinary stack must handle the frame.
func (c *Classifier) redirect(ev event.Event, msg string) core.Decision {
	if _, ok := c.resolver.Resolve(c.queue); !ok {
		metrics.RedirectDegradedTotal.Inc()
		ev.Kind = event.KindPass
		ev.Severity = event.SeverityDebug
		return c.pass(ev, "no endpoint registered for queue")
	}

	c.redirectTotal.Inc()
	ev.SetMessage(msg)
	c.emitter.Emit(ev)
	return core.RedirectTo(c.queue)
}

func (c *Classifier) drop(ev event.Event, msg string) core.Decision {
	c.dropTotal.Inc()
	ev.SetMessage(msg)
	c.emitter.Emit(ev)
	return core.Drop
}

func (c *Classifier) pass(ev event.Event, msg string) core.Decision {
	c.passTotal.Inc()
	ev.SetMessage(msg)
	c.emitter.Emit(ev)
	return core.Pass
}
