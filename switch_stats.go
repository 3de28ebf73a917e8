package telehash

import (
	"fmt"

	"github.com/rcrowley/go-metrics"
)

type switchMetrics struct {
	linesOpened      metrics.Counter
	linesEstablished metrics.Counter
	linesClosed      metrics.Counter
	packetsDropped   metrics.Counter
	packetsReceived  metrics.Meter
	packetsSent      metrics.Meter
}

func newSwitchMetrics(r metrics.Registry) *switchMetrics {
	return &switchMetrics{
		linesOpened:      metrics.GetOrRegisterCounter("lines.open", r),
		linesEstablished: metrics.GetOrRegisterCounter("lines.established", r),
		linesClosed:      metrics.GetOrRegisterCounter("lines.closed", r),
		packetsDropped:   metrics.GetOrRegisterCounter("packets.dropped", r),
		packetsReceived:  metrics.GetOrRegisterMeter("packets.received", r),
		packetsSent:      metrics.GetOrRegisterMeter("packets.sent", r),
	}
}

type SwitchStats struct {
	// lines
	NumPendingLines     int
	NumEstablishedLines int
	NumOpenedLines      int64
	NumClosedLines      int64

	// net
	NumSendPackets     int64
	NumReceivedPackets int64
	NumDroppedPackets  int64
}

func (s *Switch) Stats() SwitchStats {
	var (
		stats SwitchStats
	)

	s.mtx.RLock()
	for _, e := range s.lines {
		switch e.line.State() {
		case LinePending:
			stats.NumPendingLines++
		case LineEstablished:
			stats.NumEstablishedLines++
		}
	}
	s.mtx.RUnlock()

	stats.NumOpenedLines = s.metrics.linesOpened.Count()
	stats.NumClosedLines = s.metrics.linesClosed.Count()
	stats.NumSendPackets = s.metrics.packetsSent.Count()
	stats.NumReceivedPackets = s.metrics.packetsReceived.Count()
	stats.NumDroppedPackets = s.metrics.packetsDropped.Count()

	return stats
}

func (s SwitchStats) String() string {
	return fmt.Sprintf(
		"(lines: pending=%d established=%d opened=%d closed=%d) (net: snd=%d rcv=%d drop=%d)",
		s.NumPendingLines,
		s.NumEstablishedLines,
		s.NumOpenedLines,
		s.NumClosedLines,
		s.NumSendPackets,
		s.NumReceivedPackets,
		s.NumDroppedPackets,
	)
}
