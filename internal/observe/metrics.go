package observe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	messagesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_messages_sent_total",
		Help: "Total envelopes sent",
	})

	messagesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_messages_received_total",
		Help: "Total envelopes received",
	})

	bytesSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_bytes_sent_total",
		Help: "Total bytes written to the wire",
	})

	bytesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_bytes_received_total",
		Help: "Total bytes read from the wire",
	})

	compressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_frames_compressed_total",
		Help: "Total frames sent compressed",
	})

	compressionSavedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_compression_saved_bytes_total",
		Help: "Bytes saved by compression",
	})

	batchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_messages_batched_total",
		Help: "Total envelopes sent inside a batch frame",
	})

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_client_errors_total",
			Help: "Total transport errors by kind",
		},
		[]string{"kind"},
	)

	reconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcp_client_reconnects_total",
		Help: "Total reconnect attempts",
	})

	heartbeatLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcp_client_heartbeat_latency_seconds",
		Help:    "Ping/pong round-trip latency",
		Buckets: []float64{.005, .01, .025, .05, .1, .2, .5, 1, 2},
	})

	connectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcp_client_connection_state",
		Help: "Connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 closing)",
	})
)

func init() {
	prometheus.MustRegister(
		messagesSentTotal,
		messagesReceivedTotal,
		bytesSentTotal,
		bytesReceivedTotal,
		compressedTotal,
		compressionSavedBytes,
		batchedTotal,
		errorsTotal,
		reconnectsTotal,
		heartbeatLatency,
		connectionState,
	)
}

func AddSent(n, bytes int)     { messagesSentTotal.Add(float64(n)); bytesSentTotal.Add(float64(bytes)) }
func AddReceived(n, bytes int) { messagesReceivedTotal.Add(float64(n)); bytesReceivedTotal.Add(float64(bytes)) }
func IncCompressed(saved int)  { compressedTotal.Inc(); compressionSavedBytes.Add(float64(saved)) }
func AddBatched(n int)         { batchedTotal.Add(float64(n)) }
func IncError(kind string)     { errorsTotal.WithLabelValues(kind).Inc() }
func IncReconnect()            { reconnectsTotal.Inc() }
func SetState(s float64)       { connectionState.Set(s) }

func ObserveLatency(d time.Duration) { heartbeatLatency.Observe(d.Seconds()) }
