package transport

import (
	"testing"
	"time"
)

func TestQualityUnknownBelowMinSamples(t *testing.T) {
	s := newStatistics()
	s.recordLatency(10 * time.Millisecond)
	s.recordLatency(10 * time.Millisecond)
	if q := s.snapshot().ConnectionQuality; q != QualityUnknown {
		t.Fatalf("quality = %s with 2 samples, want unknown", q)
	}
}

func TestQualityThresholds(t *testing.T) {
	cases := []struct {
		latency time.Duration
		want    Quality
	}{
		{50 * time.Millisecond, QualityExcellent},
		{150 * time.Millisecond, QualityGood},
		{300 * time.Millisecond, QualityFair},
		{900 * time.Millisecond, QualityPoor},
	}
	for _, tc := range cases {
		s := newStatistics()
		for i := 0; i < 5; i++ {
			s.recordLatency(tc.latency)
		}
		if got := s.snapshot().ConnectionQuality; got != tc.want {
			t.Errorf("latency %s: quality = %s, want %s", tc.latency, got, tc.want)
		}
	}
}

func TestLatencyWindowEvictsOldest(t *testing.T) {
	s := newStatistics()
	for i := 0; i < latencyWindow; i++ {
		s.recordLatency(time.Second)
	}
	// push the window full of fast samples; the old ones must age out
	for i := 0; i < latencyWindow; i++ {
		s.recordLatency(10 * time.Millisecond)
	}
	if got := s.snapshot().AverageLatency; got != 10*time.Millisecond {
		t.Fatalf("average = %s, old samples not evicted", got)
	}
}

func TestCompressionRatio(t *testing.T) {
	s := newStatistics()
	s.recordSend(1, 300, true, 700) // 1000 bytes shrank to 300
	st := s.snapshot()
	if st.CompressionRatio != 0.7 {
		t.Fatalf("ratio = %v, want 0.7", st.CompressionRatio)
	}
	if st.MessagesCompressed != 1 || st.BytesSaved != 700 {
		t.Fatalf("snapshot = %+v", st)
	}
}

func TestCountersAccumulateAndReset(t *testing.T) {
	s := newStatistics()
	s.recordSend(3, 120, false, 0)
	s.recordReceive(2, 80)
	s.recordBatched(3)
	s.recordError()
	st := s.snapshot()
	if st.MessagesSent != 3 || st.MessagesReceived != 2 ||
		st.BytesSent != 120 || st.BytesReceived != 80 ||
		st.MessagesBatched != 3 || st.Errors != 1 {
		t.Fatalf("snapshot = %+v", st)
	}
	s.reset()
	if st := s.snapshot(); st.MessagesSent != 0 || st.Errors != 0 || st.AverageLatency != 0 {
		t.Fatalf("reset left counters: %+v", st)
	}
}
