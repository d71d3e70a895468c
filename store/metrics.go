package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "timeline_store_ops_total",
	Help: "Object store operations, by operation and result",
}, []string{"op", "result"})

var storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "timeline_store_op_duration_seconds",
	Help:    "Time spent in object store operations",
	Buckets: prometheus.ExponentialBucketsRange(0.0001, 2, 20),
}, []string{"op", "result"})

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timeline_store_cache_hits_total",
	Help: "Object store reads served from the local cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timeline_store_cache_misses_total",
	Help: "Object store reads that went to the backing store",
})
