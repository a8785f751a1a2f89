package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJobName = "dkg_stress"

// Push sends all metrics of the gatherer to a prometheus pushgateway, grouped
// by run ID so consecutive CI runs do not overwrite each other.
func Push(pushgateway string, runID string, gatherer prometheus.Gatherer) error {
	err := push.New(pushgateway, pushJobName).
		Gatherer(gatherer).
		Grouping("run_id", runID).
		Push()
	if err != nil {
		return fmt.Errorf("could not push metrics to %s: %w", pushgateway, err)
	}
	return nil
}
