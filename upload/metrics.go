package upload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chunksPacked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_chunks_packed_total",
		Help: "The total number of packed chunks.",
	})

	packedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upload_packed_bytes_total",
		Help: "The total number of bytes produced by chunk packing.",
	})

	flushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "upload_flush_latency_seconds",
		Help: "The time to pack the dirty chunks.",
	})
)

func instrumentFlush(chunks, bytes int, start time.Time) {
	chunksPacked.Add(float64(chunks))
	packedBytes.Add(float64(bytes))
	flushLatency.Observe(time.Since(start).Seconds())
}
