package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// OrchestratorCollector implements module.OrchestratorMetrics with prometheus.
type OrchestratorCollector struct {
	nodesRunning      prometheus.Gauge
	unexpectedExits   *prometheus.CounterVec
	rounds            *prometheus.CounterVec
	keygenDuration    prometheus.Histogram
	roundDuration     prometheus.Histogram
	proposals         *prometheus.CounterVec
	signingLatency    prometheus.Histogram
	proposalsInFlight prometheus.Gauge
}

// NewOrchestratorCollector registers the collectors with the given registerer.
func NewOrchestratorCollector(registerer prometheus.Registerer) *OrchestratorCollector {
	factory := promauto.With(registerer)

	return &OrchestratorCollector{
		nodesRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "nodes_running",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemCluster,
			Help:      "number of node processes currently alive",
		}),
		unexpectedExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "unexpected_exits_total",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemCluster,
			Help:      "number of node processes that exited without being stopped",
		}, []string{LabelNodeRole}),
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "rounds_total",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemSession,
			Help:      "number of recorded rounds by keygen outcome",
		}, []string{LabelOutcome, LabelSucceeded}),
		keygenDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "keygen_duration_seconds",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemSession,
			Help:      "time from triggering a DKG session until it completed or gave up",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}),
		roundDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "round_duration_seconds",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemSession,
			Help:      "wall clock duration of a round",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		proposals: factory.NewCounterVec(prometheus.CounterOpts{
			Name:      "proposals_total",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemProposal,
			Help:      "number of recorded proposals by signing outcome",
		}, []string{LabelOutcome}),
		signingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:      "signing_latency_seconds",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemProposal,
			Help:      "time from submitting a proposal until its signing outcome was known",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		proposalsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name:      "in_flight",
			Namespace: namespaceDKGStress,
			Subsystem: subsystemProposal,
			Help:      "number of proposals awaiting a signature",
		}),
	}
}

func (c *OrchestratorCollector) NodesRunning(count int) {
	c.nodesRunning.Set(float64(count))
}

func (c *OrchestratorCollector) NodeExitedUnexpectedly(role stress.Role) {
	c.unexpectedExits.WithLabelValues(role.String()).Inc()
}

func (c *OrchestratorCollector) RoundRecorded(outcome stress.KeygenOutcome, succeeded bool, keygen time.Duration, elapsed time.Duration) {
	c.rounds.WithLabelValues(outcome.String(), strconv.FormatBool(succeeded)).Inc()
	if outcome == stress.KeygenSkipped {
		return
	}
	c.keygenDuration.Observe(keygen.Seconds())
	c.roundDuration.Observe(elapsed.Seconds())
}

func (c *OrchestratorCollector) ProposalRecorded(outcome stress.ProposalOutcome, latency time.Duration) {
	c.proposals.WithLabelValues(outcome.String()).Inc()
	c.signingLatency.Observe(latency.Seconds())
}

func (c *OrchestratorCollector) ProposalsInFlight(count int) {
	c.proposalsInFlight.Set(float64(count))
}
