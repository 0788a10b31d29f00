package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/metrics"
	"github.com/saviobatista/sbs2cot/internal/parser"
)

// Stats tracks translation statistics. Every counter is mirrored into the
// Prometheus collectors of the metrics package.
type Stats struct {
	// Line counts
	LinesRead     uint64
	ParsedRecords uint64
	InvalidLines  uint64

	// Event counts
	EventsSent     uint64
	EventsDeclined uint64
	SendFailures   uint64
	MirrorFailures uint64

	// Upstream connection
	Connects     uint64
	DialFailures uint64
	connected    atomic.Bool

	// Index corresponds to the MSG transmission type
	TransmissionCounts [9]uint64

	startedAt    time.Time
	lastLineTime time.Time
	mu           sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

// IncrementLinesRead counts a non-empty line read from the feed
func (s *Stats) IncrementLinesRead() {
	atomic.AddUint64(&s.LinesRead, 1)
	metrics.LinesTotal.WithLabelValues("read").Inc()
	s.mu.Lock()
	s.lastLineTime = time.Now()
	s.mu.Unlock()
}

// IncrementParsedRecords counts a line decoded into a record
func (s *Stats) IncrementParsedRecords() {
	atomic.AddUint64(&s.ParsedRecords, 1)
	metrics.LinesTotal.WithLabelValues("parsed").Inc()
}

// IncrementInvalidLines counts a line that could not be decoded
func (s *Stats) IncrementInvalidLines() {
	atomic.AddUint64(&s.InvalidLines, 1)
	metrics.LinesTotal.WithLabelValues("invalid").Inc()
}

// IncrementTransmission counts a record by MSG transmission type
func (s *Stats) IncrementTransmission(transmission parser.TransmissionType) {
	if transmission >= 0 && int(transmission) < len(s.TransmissionCounts) {
		atomic.AddUint64(&s.TransmissionCounts[transmission], 1)
	}
	metrics.TransmissionsTotal.WithLabelValues(transmission.String()).Inc()
}

// IncrementEventsSent counts a datagram handed to the transport
func (s *Stats) IncrementEventsSent() {
	atomic.AddUint64(&s.EventsSent, 1)
	metrics.EventsTotal.WithLabelValues("sent").Inc()
}

// IncrementEventsDeclined counts a record the builder declined
func (s *Stats) IncrementEventsDeclined() {
	atomic.AddUint64(&s.EventsDeclined, 1)
	metrics.EventsTotal.WithLabelValues("declined").Inc()
}

// IncrementSendFailures counts a datagram the transport rejected
func (s *Stats) IncrementSendFailures() {
	atomic.AddUint64(&s.SendFailures, 1)
	metrics.EventsTotal.WithLabelValues("send_failed").Inc()
}

// IncrementMirror counts a NATS mirror publish outcome
func (s *Stats) IncrementMirror(err error) {
	if err != nil {
		atomic.AddUint64(&s.MirrorFailures, 1)
		metrics.MirrorTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.MirrorTotal.WithLabelValues("published").Inc()
}

// IncrementDialFailures counts a failed connection attempt
func (s *Stats) IncrementDialFailures() {
	atomic.AddUint64(&s.DialFailures, 1)
	metrics.DialFailuresTotal.Inc()
}

// SetConnected records whether the upstream feed is streaming
func (s *Stats) SetConnected(connected bool) {
	if connected && !s.connected.Load() {
		atomic.AddUint64(&s.Connects, 1)
		metrics.ConnectsTotal.Inc()
	}
	s.connected.Store(connected)
	if connected {
		metrics.UpstreamConnected.Set(1)
	} else {
		metrics.UpstreamConnected.Set(0)
	}
}

// Connected reports whether the upstream feed is streaming
func (s *Stats) Connected() bool {
	return s.connected.Load()
}

// LastLineTime returns when the last line was read
func (s *Stats) LastLineTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLineTime
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	transmissions := make(map[string]uint64)
	for i := range s.TransmissionCounts {
		if n := atomic.LoadUint64(&s.TransmissionCounts[i]); n > 0 {
			transmissions[parser.TransmissionType(i).String()] = n
		}
	}

	return map[string]interface{}{
		"lines_read":      atomic.LoadUint64(&s.LinesRead),
		"parsed_records":  atomic.LoadUint64(&s.ParsedRecords),
		"invalid_lines":   atomic.LoadUint64(&s.InvalidLines),
		"events_sent":     atomic.LoadUint64(&s.EventsSent),
		"events_declined": atomic.LoadUint64(&s.EventsDeclined),
		"send_failures":   atomic.LoadUint64(&s.SendFailures),
		"mirror_failures": atomic.LoadUint64(&s.MirrorFailures),
		"connects":        atomic.LoadUint64(&s.Connects),
		"dial_failures":   atomic.LoadUint64(&s.DialFailures),
		"connected":       s.Connected(),
		"transmissions":   transmissions,
		"last_line_time":  s.LastLineTime(),
		"uptime":          time.Since(s.startedAt),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()
	return fmt.Sprintf(
		"Lines Read: %d\n"+
			"Parsed Records: %d\n"+
			"Invalid Lines: %d\n"+
			"Events Sent: %d\n"+
			"Events Declined: %d\n"+
			"Send Failures: %d\n"+
			"Mirror Failures: %d\n"+
			"Connects: %d\n"+
			"Dial Failures: %d\n"+
			"Connected: %t\n"+
			"Uptime: %s",
		stats["lines_read"],
		stats["parsed_records"],
		stats["invalid_lines"],
		stats["events_sent"],
		stats["events_declined"],
		stats["send_failures"],
		stats["mirror_failures"],
		stats["connects"],
		stats["dial_failures"],
		stats["connected"],
		stats["uptime"],
	)
}

// StartReporting periodically logs statistics until ctx is done
func (s *Stats) StartReporting(ctx context.Context, interval time.Duration, log *zap.SugaredLogger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Infow("statistics",
				"lines_read", atomic.LoadUint64(&s.LinesRead),
				"events_sent", atomic.LoadUint64(&s.EventsSent),
				"events_declined", atomic.LoadUint64(&s.EventsDeclined),
				"invalid_lines", atomic.LoadUint64(&s.InvalidLines),
				"send_failures", atomic.LoadUint64(&s.SendFailures),
				"connected", s.Connected(),
			)
		}
	}
}
