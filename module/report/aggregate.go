// Package report turns the round results of a run into its verdict and
// writes the human and machine readable reports.
package report

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// Aggregate computes the verdict, counts and latency statistics of the given
// round results. The run passes iff there is at least one round and every
// round completed its keygen with every proposal signed.
//
// Every round falls in exactly one of the categories passed, failed,
// timed out (keygen deadline), skipped or interrupted.
func Aggregate(results []stress.RoundResult) stress.RunReport {
	report := stress.RunReport{
		Rounds:  results,
		Verdict: stress.VerdictPass,
	}
	if len(results) == 0 {
		report.Verdict = stress.VerdictFail
	}

	var roundTimes, keygenTimes, signingTimes []time.Duration
	counts := &report.Counts
	counts.Rounds = len(results)

	for _, r := range results {
		if !r.Succeeded() && report.FirstFailedRound == 0 {
			report.Verdict = stress.VerdictFail
			report.FirstFailedRound = r.Round
		}

		switch {
		case r.Succeeded():
			counts.Passed++
		case r.Interrupted():
			counts.Interrupted++
		case r.Keygen == stress.KeygenSkipped:
			counts.Skipped++
		case r.Keygen == stress.KeygenTimedOut:
			counts.TimedOut++
		default:
			counts.Failed++
		}

		if r.Keygen != stress.KeygenSkipped {
			roundTimes = append(roundTimes, r.Elapsed)
		}
		if r.Keygen == stress.KeygenComplete {
			keygenTimes = append(keygenTimes, r.KeygenDuration)
		}

		for _, p := range r.Proposals {
			switch p.Outcome {
			case stress.ProposalSigned:
				counts.ProposalsSigned++
				signingTimes = append(signingTimes, p.Latency)
			case stress.ProposalFailed:
				counts.ProposalsFailed++
			case stress.ProposalTimedOut:
				counts.ProposalsTimedOut++
			}
		}
	}

	report.RoundLatency = durationStats(roundTimes)
	report.KeygenLatency = durationStats(keygenTimes)
	report.SigningLatency = durationStats(signingTimes)
	return report
}

// durationStats summarises the durations. Empty input yields zero stats.
func durationStats(durations []time.Duration) stress.DurationStats {
	if len(durations) == 0 {
		return stress.DurationStats{}
	}
	data := make(stats.Float64Data, 0, len(durations))
	for _, d := range durations {
		data = append(data, float64(d))
	}

	// errors are only returned for empty input or out of range percentiles
	mean, _ := stats.Mean(data)
	p50, _ := stats.Percentile(data, 50)
	p95, _ := stats.Percentile(data, 95)
	max, _ := stats.Max(data)

	return stress.DurationStats{
		Mean: time.Duration(mean),
		P50:  time.Duration(p50),
		P95:  time.Duration(p95),
		Max:  time.Duration(max),
	}
}
