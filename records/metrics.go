package records

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var swapConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timeline_records_swap_conflicts_total",
	Help: "Conditional record writes that lost a race and were retried or abandoned",
})

var provideFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timeline_records_provide_failures_total",
	Help: "Record announcements that failed after a successful write",
})

var topicIndexFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "timeline_records_topic_index_failures_total",
	Help: "Topic index updates that failed and were skipped",
})
