package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/labelmint/mintflow/engine"
	"github.com/labelmint/mintflow/workflow"
)

// Collector exposes engine observations as prometheus metrics. It
// implements engine.Metrics.
type Collector struct {
	executionsActive    prometheus.Gauge
	executionsTotal     *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec
	nodeDuration        *prometheus.HistogramVec
	nodeRetriesTotal    *prometheus.CounterVec
	nodesFinishedTotal  *prometheus.CounterVec
}

var _ engine.Metrics = (*Collector)(nil)

// NewCollector registers the mintflow metrics with the given
// registerer. Pass prometheus.DefaultRegisterer in production; tests
// hand in their own registry so parallel tests never collide.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		executionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_active",
			Help:      "Number of executions currently running",
		}),
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Finished executions by terminal state",
		}, []string{"state"}),
		executionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Execution wall-clock duration by terminal state",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"state"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution duration by kind",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60},
		}, []string{"kind"}),
		nodeRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_retries_total",
			Help:      "Nodes that needed at least one retry, by kind",
		}, []string{"kind"}),
		nodesFinishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_finished_total",
			Help:      "Resolved nodes by kind and resolution state",
		}, []string{"kind", "state"}),
	}
}

// ExecutionStarted implements engine.Metrics.
func (c *Collector) ExecutionStarted() {
	c.executionsActive.Inc()
}

// ExecutionFinished implements engine.Metrics.
func (c *Collector) ExecutionFinished(state engine.ExecutionState, d time.Duration) {
	c.executionsActive.Dec()
	c.executionsTotal.WithLabelValues(string(state)).Inc()
	c.executionDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

// NodeFinished implements engine.Metrics.
func (c *Collector) NodeFinished(kind workflow.NodeKind, state engine.NodeState, d time.Duration) {
	c.nodesFinishedTotal.WithLabelValues(string(kind), string(state)).Inc()
	if state == engine.NodeCompleted || state == engine.NodeFailed {
		c.nodeDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	}
}

// NodeRetried implements engine.Metrics.
func (c *Collector) NodeRetried(kind workflow.NodeKind) {
	c.nodeRetriesTotal.WithLabelValues(string(kind)).Inc()
}
