package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chunksGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_chunks_generated_total",
		Help: "The total number of generated chunks.",
	})

	chunksEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_chunks_evicted_total",
		Help: "The total number of evicted chunks.",
	})

	chunksResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "world_chunks_resident",
		Help: "The number of chunks in memory.",
	})

	chunkGenerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "world_chunk_generation_latency_seconds",
		Help:    "The time to generate a chunk.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	droppedEdits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "world_dropped_edits_total",
		Help: "The total number of voxel writes targeting chunks not in memory.",
	})
)

func instrumentChunkGenerated(start time.Time) {
	chunksGenerated.Inc()
	chunkGenerationLatency.Observe(time.Since(start).Seconds())
}

func instrumentStreaming(evicted, resident int) {
	chunksEvicted.Add(float64(evicted))
	chunksResident.Set(float64(resident))
}

func instrumentDroppedEdit() {
	droppedEdits.Inc()
}
