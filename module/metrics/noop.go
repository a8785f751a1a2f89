package metrics

import (
	"time"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

type NoopCollector struct{}

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) NodesRunning(count int)                  {}
func (nc *NoopCollector) NodeExitedUnexpectedly(role stress.Role) {}
func (nc *NoopCollector) RoundRecorded(outcome stress.KeygenOutcome, succeeded bool, keygen time.Duration, elapsed time.Duration) {
}
func (nc *NoopCollector) ProposalRecorded(outcome stress.ProposalOutcome, latency time.Duration) {}
func (nc *NoopCollector) ProposalsInFlight(count int)                                          {}
