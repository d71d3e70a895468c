package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var timelineBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "timeline_feed_builds_total",
	Help: "Timeline aggregations, by result",
}, []string{"result"})

var timelineBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "timeline_feed_build_duration_seconds",
	Help:    "Time to build a timeline",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 10, 20),
})
