package module

import (
	"time"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// ClusterMetrics tracks the node processes of the cluster.
type ClusterMetrics interface {
	// NodesRunning reports the number of node processes currently alive.
	NodesRunning(count int)

	// NodeExitedUnexpectedly is called when a node process exits without
	// having been asked to stop.
	NodeExitedUnexpectedly(role stress.Role)
}

// SessionMetrics tracks the rounds and proposals driven through the cluster.
type SessionMetrics interface {
	// RoundRecorded is called once per recorded round result.
	RoundRecorded(outcome stress.KeygenOutcome, succeeded bool, keygen time.Duration, elapsed time.Duration)

	// ProposalRecorded is called once per recorded proposal result.
	ProposalRecorded(outcome stress.ProposalOutcome, latency time.Duration)

	// ProposalsInFlight reports the number of proposals awaiting a signature.
	ProposalsInFlight(count int)
}

// OrchestratorMetrics combines all metrics of a stress run.
type OrchestratorMetrics interface {
	ClusterMetrics
	SessionMetrics
}
