// Package stats is the metrics edge named in SPEC_FULL.md: Prometheus
// counters, gauges, and histograms for the query, write, optimizer, and
// transfer paths, grounded on the teacher's stats package role (an
// ambient Tracker every other subsystem reports into) but built on
// promauto's package-level metric style instead of the teacher's
// StatsD/custom coreStats tracker, since this module carries Prometheus
// (github.com/prometheus/client_golang) as its metrics dependency rather
// than StatsD.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vecstore"

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "collection",
		Name: "queries_total", Help: "Queries accepted by a collection, by outcome.",
	}, []string{"collection", "outcome"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "collection",
		Name: "query_duration_seconds", Help: "Collection.Query latency, selected shards through merged result.",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "collection",
		Name: "writes_total", Help: "Writes accepted by a collection, by outcome.",
	}, []string{"collection", "outcome"})

	shardsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "collection",
		Name: "shards_active", Help: "Shards currently held by a collection on this peer.",
	}, []string{"collection"})

	optimizerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "optimizer",
		Name: "tasks_total", Help: "Optimizer tasks started, by kind (vacuum/merge/indexing).",
	}, []string{"kind"})

	transferActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "transfer",
		Name: "active", Help: "Shard transfers currently running, by shard.",
	}, []string{"shard"})

	transferPointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "transfer",
		Name: "points_total", Help: "Points streamed by a shard transfer.",
	}, []string{"shard"})

	transferRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "transfer",
		Name: "retries_total", Help: "Retried batches/ops during a shard transfer.",
	}, []string{"shard"})
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveQuery records one Collection.Query call's latency and outcome.
func ObserveQuery(collection string, start time.Time, err error) {
	queryDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	queriesTotal.WithLabelValues(collection, outcome(err)).Inc()
}

// ObserveWrite records one Collection.Write call's outcome.
func ObserveWrite(collection string, err error) {
	writesTotal.WithLabelValues(collection, outcome(err)).Inc()
}

// ShardCreated/ShardRemoved track CreateShard/RemoveShard against the
// shards_active gauge.
func ShardCreated(collection string) { shardsActive.WithLabelValues(collection).Inc() }
func ShardRemoved(collection string) { shardsActive.WithLabelValues(collection).Dec() }

// OptimizerTaskStarted records one Vacuum/Merge/Indexing task handed to
// the optimizer registry.
func OptimizerTaskStarted(kind string) { optimizerTasksTotal.WithLabelValues(kind).Inc() }

// TransferStarted/TransferFinished bracket a StreamTransfer.Run call.
func TransferStarted(shardID string)  { transferActive.WithLabelValues(shardID).Inc() }
func TransferFinished(shardID string) { transferActive.WithLabelValues(shardID).Dec() }

// TransferPoints adds n points to a shard transfer's running total.
func TransferPoints(shardID string, n int) {
	if n > 0 {
		transferPointsTotal.WithLabelValues(shardID).Add(float64(n))
	}
}

// TransferRetried records one retried batch/op during a shard transfer.
func TransferRetried(shardID string) { transferRetriesTotal.WithLabelValues(shardID).Inc() }
