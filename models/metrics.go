package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	methodLabel = "method"
	resultLabel = "result"
)

var (
	viewerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_count",
		Help: "The number of connected viewers.",
	})

	viewerCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viewer_count_total",
		Help: "The total number of viewers.",
	})

	raycastCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raycast_count_total",
		Help: "The total number of ray queries.",
	}, []string{methodLabel, resultLabel})
)

func instrumentAddViewer() {
	viewerCount.Inc()
	viewerCountTotal.Inc()
}

func instrumentRemoveViewer() {
	viewerCount.Dec()
}

func instrumentRaycast(method string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	raycastCount.
		With(prometheus.Labels{methodLabel: method, resultLabel: result}).
		Inc()
}
