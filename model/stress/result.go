package stress

import (
	"time"
)

// KeygenOutcome is the result of the DKG session of a round.
type KeygenOutcome string

const (
	KeygenComplete    KeygenOutcome = "complete"
	KeygenTimedOut    KeygenOutcome = "timed_out"
	KeygenFailed      KeygenOutcome = "failed"
	KeygenSkipped     KeygenOutcome = "skipped"
	KeygenInterrupted KeygenOutcome = "interrupted"
)

func (o KeygenOutcome) String() string {
	return string(o)
}

// ProposalOutcome is the result of signing a single proposal.
type ProposalOutcome string

const (
	ProposalSigned    ProposalOutcome = "signed"
	ProposalTimedOut  ProposalOutcome = "timed_out"
	ProposalFailed    ProposalOutcome = "failed"
	ProposalAbandoned ProposalOutcome = "abandoned"
)

func (o ProposalOutcome) String() string {
	return string(o)
}

// ProposalResult records the signing outcome of one proposal.
type ProposalResult struct {
	Index     uint            `json:"index"`
	ID        ProposalID      `json:"id"`
	Outcome   ProposalOutcome `json:"outcome"`
	Signature string          `json:"signature,omitempty"`
	Error     string          `json:"error,omitempty"`
	Latency   time.Duration   `json:"latency"`
}

// Succeeded returns true if the proposal was threshold-signed.
func (r ProposalResult) Succeeded() bool {
	return r.Outcome == ProposalSigned
}

// RoundResult records one round. It is produced by the session driver and is
// not modified once recorded.
type RoundResult struct {
	// Round is the 1-based round number.
	Round uint `json:"round"`
	// Session is the DKG session ID used by the recorded attempt.
	Session uint64 `json:"session"`
	// Attempts is the number of times the round was run, including retries.
	Attempts uint `json:"attempts"`

	Keygen      KeygenOutcome `json:"keygen"`
	KeygenError string        `json:"keygen_error,omitempty"`

	// Proposals holds one entry per submitted proposal in submission order.
	// It is empty unless the keygen completed.
	Proposals []ProposalResult `json:"proposals"`

	KeygenDuration time.Duration `json:"keygen_duration"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Succeeded returns true if the keygen completed and every proposal was signed.
func (r RoundResult) Succeeded() bool {
	if r.Keygen != KeygenComplete {
		return false
	}
	for _, p := range r.Proposals {
		if !p.Succeeded() {
			return false
		}
	}
	return true
}

// Interrupted returns true if the round was cut short by cancellation, either
// during keygen or while proposals were awaiting signatures.
func (r RoundResult) Interrupted() bool {
	if r.Keygen == KeygenInterrupted {
		return true
	}
	for _, p := range r.Proposals {
		if p.Outcome == ProposalAbandoned {
			return true
		}
	}
	return false
}

// SkippedRound returns the result recorded for a round that was never run.
func SkippedRound(round uint) RoundResult {
	return RoundResult{
		Round:     round,
		Keygen:    KeygenSkipped,
		Proposals: []ProposalResult{},
	}
}

// Verdict is the overall result of a run.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
)

// RunCounts summarises the rounds and proposals of a run.
type RunCounts struct {
	Rounds            int `json:"rounds"`
	Passed            int `json:"passed"`
	Failed            int `json:"failed"`
	TimedOut          int `json:"timed_out"`
	Skipped           int `json:"skipped"`
	Interrupted       int `json:"interrupted"`
	ProposalsSigned   int `json:"proposals_signed"`
	ProposalsFailed   int `json:"proposals_failed"`
	ProposalsTimedOut int `json:"proposals_timed_out"`
}

// DurationStats summarises a set of durations.
type DurationStats struct {
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	Max  time.Duration `json:"max"`
}

// RunReport is the terminal artifact of a run.
type RunReport struct {
	RunID  string        `json:"run_id"`
	Config ReportConfig  `json:"config"`
	Rounds []RoundResult `json:"rounds"`

	Verdict Verdict `json:"verdict"`
	// FirstFailedRound is the number of the first failing round, 0 on pass.
	FirstFailedRound uint `json:"first_failed_round"`

	Counts         RunCounts     `json:"counts"`
	RoundLatency   DurationStats `json:"round_latency"`
	KeygenLatency  DurationStats `json:"keygen_latency"`
	SigningLatency DurationStats `json:"signing_latency"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Passed returns true if the verdict is pass.
func (r *RunReport) Passed() bool {
	return r.Verdict == VerdictPass
}

// ReportConfig echoes the parameters of a run into its report.
type ReportConfig struct {
	Threshold    uint `json:"threshold"`
	Participants uint `json:"participants"`
	ExtraNodes   uint `json:"extra_nodes"`
	Proposals    uint `json:"proposals"`
	Rounds       uint `json:"rounds"`
	FailFast     bool `json:"fail_fast"`
	RoundRetries uint `json:"round_retries"`
}

// ReportConfigFrom extracts the reported parameters from a session config.
func ReportConfigFrom(c SessionConfig) ReportConfig {
	return ReportConfig{
		Threshold:    c.Threshold,
		Participants: c.Participants,
		ExtraNodes:   c.ExtraNodes,
		Proposals:    c.Proposals,
		Rounds:       c.Rounds,
		FailFast:     c.FailFast,
		RoundRetries: c.RoundRetries,
	}
}
