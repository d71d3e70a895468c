package social

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "timeline_social_operations_total",
	Help: "Write operations, by operation and outcome",
}, []string{"op", "outcome"})

var partialWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "timeline_social_partial_writes_total",
	Help: "Multi-record writes that were only partially applied",
}, []string{"op"})

var topicIndexSkips = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timeline_social_topic_index_skips_total",
	Help: "Topics left un-indexed after a publish",
})
