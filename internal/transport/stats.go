package transport

import (
	"sync"
	"time"
)

// latencyWindow bounds the rolling sample window; oldest evicted first.
const latencyWindow = 50

// minQualitySamples below this the quality is reported as unknown.
const minQualitySamples = 3

// Quality is a qualitative classification of recent round-trip latency.
type Quality string

const (
	QualityUnknown   Quality = "unknown"
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// Stats is a point-in-time snapshot of the communication counters.
type Stats struct {
	MessagesSent        uint64
	MessagesReceived    uint64
	BytesSent           uint64
	BytesReceived       uint64
	MessagesCompressed  uint64
	CompressedBytesSent uint64
	BytesSaved          uint64
	MessagesBatched     uint64
	Errors              uint64

	// CompressionRatio = BytesSaved / (CompressedBytesSent + BytesSaved).
	CompressionRatio  float64
	AverageLatency    time.Duration
	ConnectionQuality Quality
}

// statistics accumulates counters and the latency window. Counters survive
// reconnection; only Reset clears them.
type statistics struct {
	mu sync.Mutex

	sent, received       uint64
	bytesSent, bytesRecv uint64
	compressed           uint64
	compressedBytes      uint64
	savedBytes           uint64
	batched              uint64
	errors               uint64

	latencies []time.Duration
}

func newStatistics() *statistics {
	return &statistics{latencies: make([]time.Duration, 0, latencyWindow)}
}

// recordSend accounts one outbound frame carrying envCount envelopes.
func (s *statistics) recordSend(envCount, wireBytes int, wasCompressed bool, savedBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent += uint64(envCount)
	s.bytesSent += uint64(wireBytes)
	if wasCompressed {
		s.compressed++
		s.compressedBytes += uint64(wireBytes)
		s.savedBytes += uint64(savedBytes)
	}
}

func (s *statistics) recordReceive(envCount, wireBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received += uint64(envCount)
	s.bytesRecv += uint64(wireBytes)
}

func (s *statistics) recordBatched(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batched += uint64(n)
}

func (s *statistics) recordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *statistics) recordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) == latencyWindow {
		s.latencies = append(s.latencies[:0], s.latencies[1:]...)
	}
	s.latencies = append(s.latencies, d)
}

func (s *statistics) averageLatency() time.Duration {
	// caller holds s.mu
	if len(s.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range s.latencies {
		total += d
	}
	return total / time.Duration(len(s.latencies))
}

func (s *statistics) quality() Quality {
	// caller holds s.mu
	if len(s.latencies) < minQualitySamples {
		return QualityUnknown
	}
	switch avg := s.averageLatency(); {
	case avg < 100*time.Millisecond:
		return QualityExcellent
	case avg < 200*time.Millisecond:
		return QualityGood
	case avg < 500*time.Millisecond:
		return QualityFair
	default:
		return QualityPoor
	}
}

func (s *statistics) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		MessagesSent:        s.sent,
		MessagesReceived:    s.received,
		BytesSent:           s.bytesSent,
		BytesReceived:       s.bytesRecv,
		MessagesCompressed:  s.compressed,
		CompressedBytesSent: s.compressedBytes,
		BytesSaved:          s.savedBytes,
		MessagesBatched:     s.batched,
		Errors:              s.errors,
		AverageLatency:      s.averageLatency(),
		ConnectionQuality:   s.quality(),
	}
	if denom := s.compressedBytes + s.savedBytes; denom > 0 {
		st.CompressionRatio = float64(s.savedBytes) / float64(denom)
	}
	return st
}

func (s *statistics) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent, s.received = 0, 0
	s.bytesSent, s.bytesRecv = 0, 0
	s.compressed, s.compressedBytes, s.savedBytes = 0, 0, 0
	s.batched, s.errors = 0, 0
	s.latencies = s.latencies[:0]
}
