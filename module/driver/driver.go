// Package driver runs the keygen and signing rounds of a stress run against
// the cluster. It only talks to the nodes through module.DKGCluster.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module"
)

// Option configures a Driver.
type Option func(*Driver)

// WithObserver registers an observer for state transitions and rounds.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observer = o
	}
}

// Driver drives the rounds of a stress run. Rounds run strictly one after
// another; within a round at most MaxInFlight proposals await signatures.
type Driver struct {
	log      zerolog.Logger
	config   stress.SessionConfig
	cluster  module.DKGCluster
	metrics  module.SessionMetrics
	observer Observer

	// state is only written by the goroutine running Run.
	state    State
	inflight *atomic.Int32
}

// New creates a Driver. The config must have been validated.
func New(
	log zerolog.Logger,
	config stress.SessionConfig,
	cluster module.DKGCluster,
	metrics module.SessionMetrics,
	opts ...Option,
) *Driver {
	d := &Driver{
		log:      log.With().Str("component", "session_driver").Logger(),
		config:   config,
		cluster:  cluster,
		metrics:  metrics,
		observer: NoopObserver{},
		state:    StateIdle,
		inflight: atomic.NewInt32(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AwaitClusterReady polls the health of every node until all of them answer,
// are not syncing and, in clusters of more than one node, have at least one
// peer. It gives up after the ready timeout with a ClusterNotReadyError.
func (d *Driver) AwaitClusterReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, d.config.ReadyTimeout)
	defer cancel()

	backoff := d.pollBackoff()

	var lastErr error
	err := retry.Do(readyCtx, backoff, func(ctx context.Context) error {
		health, err := d.cluster.Health(ctx)
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		if err := checkHealth(health); err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		d.log.Info().Msg("cluster is ready")
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted while waiting for cluster: %w", ctx.Err())
	}
	if lastErr == nil {
		lastErr = err
	}
	return ClusterNotReadyError{Timeout: d.config.ReadyTimeout, Err: lastErr}
}

func checkHealth(health []module.NodeHealth) error {
	if len(health) == 0 {
		return errors.New("cluster has no nodes")
	}
	for _, h := range health {
		switch {
		case !h.Reachable:
			return fmt.Errorf("node %s is unreachable: %w", h.Label, h.Err)
		case h.IsSyncing:
			return fmt.Errorf("node %s is syncing", h.Label)
		case len(health) > 1 && h.Peers == 0:
			return fmt.Errorf("node %s has no peers", h.Label)
		}
	}
	return nil
}

// Run drives all rounds and returns exactly one result per round, in round
// order. It never returns early: after a fail-fast stop or a cancellation the
// remaining rounds are recorded as skipped.
func (d *Driver) Run(ctx context.Context) []stress.RoundResult {
	results := make([]stress.RoundResult, 0, d.config.Rounds)
	stopped := false

	for round := uint(1); round <= d.config.Rounds; round++ {
		if stopped || ctx.Err() != nil {
			d.record(stress.SkippedRound(round))
			results = append(results, stress.SkippedRound(round))
			continue
		}

		result := d.runRound(ctx, round)
		d.record(result)
		results = append(results, result)

		if result.Interrupted() {
			stopped = true
			d.log.Warn().Uint("round", round).Msg("run interrupted, skipping remaining rounds")
			continue
		}
		if !result.Succeeded() && d.config.FailFast {
			stopped = true
			d.log.Warn().Uint("round", round).Msg("round failed with fail-fast set, skipping remaining rounds")
		}
	}

	return results
}

// runRound runs a round, retrying it with a fresh session up to RoundRetries
// times if it fails. The last attempt is returned.
func (d *Driver) runRound(ctx context.Context, round uint) stress.RoundResult {
	var result stress.RoundResult
	for attempt := uint(0); attempt <= d.config.RoundRetries; attempt++ {
		result = d.runAttempt(ctx, round, attempt)
		result.Attempts = attempt + 1
		if result.Succeeded() || result.Interrupted() {
			return result
		}
		if attempt < d.config.RoundRetries {
			d.log.Warn().
				Uint("round", round).
				Uint("attempt", attempt+1).
				Str("keygen", result.Keygen.String()).
				Msg("round failed, retrying with a new session")
		}
	}
	return result
}

func (d *Driver) runAttempt(ctx context.Context, round, attempt uint) stress.RoundResult {
	started := time.Now()
	session := stress.SessionID(round, attempt)
	log := d.log.With().Uint("round", round).Uint("attempt", attempt).Uint64("session", session).Logger()

	d.transition(round, attempt, session, StateAwaitingKeygen)
	outcome, err := d.awaitKeygen(ctx, round, session)
	result := stress.RoundResult{
		Round:          round,
		Session:        session,
		Keygen:         outcome,
		Proposals:      []stress.ProposalResult{},
		KeygenDuration: time.Since(started),
	}

	switch outcome {
	case stress.KeygenComplete:
		d.transition(round, attempt, session, StateKeygenComplete)
		log.Debug().Dur("keygen", result.KeygenDuration).Msg("keygen complete")
	case stress.KeygenTimedOut:
		d.transition(round, attempt, session, StateKeygenTimedOut)
	case stress.KeygenFailed:
		d.transition(round, attempt, session, StateKeygenFailed)
	}

	if outcome == stress.KeygenComplete {
		result.Proposals = d.sign(ctx, round, attempt, session)
	} else {
		result.KeygenError = err.Error()
		log.Warn().Err(err).Str("keygen", outcome.String()).Msg("keygen did not complete")
	}

	result.Elapsed = time.Since(started)
	d.transition(round, attempt, session, StateRoundComplete)
	return result
}

// awaitKeygen starts the session and polls its status until it completes,
// fails, times out or ctx is cancelled. Status queries that error are retried
// until the keygen deadline.
func (d *Driver) awaitKeygen(ctx context.Context, round uint, session uint64) (stress.KeygenOutcome, error) {
	err := d.cluster.StartSession(ctx, session, d.config.Threshold, d.config.Participants)
	if err != nil {
		if ctx.Err() != nil {
			return stress.KeygenInterrupted, ctx.Err()
		}
		return stress.KeygenFailed, stress.KeygenFailureError{Round: round, Session: session, Err: err}
	}

	keygenCtx, cancel := context.WithTimeout(ctx, d.config.KeygenTimeout)
	defer cancel()

	backoff := d.pollBackoff()

	var failure error
	err = retry.Do(keygenCtx, backoff, func(ctx context.Context) error {
		status, err := d.cluster.SessionStatus(ctx, session)
		if err != nil {
			d.log.Debug().Err(err).Uint64("session", session).Msg("could not query session status")
			return retry.RetryableError(err)
		}
		switch status.Phase {
		case module.SessionComplete:
			return nil
		case module.SessionFailed:
			failure = status.Err
			if failure == nil {
				failure = errors.New("session failed")
			}
			return failure
		default:
			return retry.RetryableError(errSessionPending)
		}
	})

	switch {
	case err == nil:
		return stress.KeygenComplete, nil
	case failure != nil:
		return stress.KeygenFailed, stress.KeygenFailureError{Round: round, Session: session, Err: failure}
	case ctx.Err() != nil:
		return stress.KeygenInterrupted, ctx.Err()
	default:
		return stress.KeygenTimedOut, stress.KeygenTimeoutError{
			Round:   round,
			Session: session,
			Timeout: d.config.KeygenTimeout.String(),
		}
	}
}

// sign submits the proposals of a round in order and waits for their
// signatures. Every proposal is tracked by its ID, independently of the
// others. Submission blocks while MaxInFlight proposals are awaiting
// signatures.
func (d *Driver) sign(ctx context.Context, round, attempt uint, session uint64) []stress.ProposalResult {
	count := d.config.Proposals
	results := make([]stress.ProposalResult, count)
	if count == 0 {
		return results
	}

	d.transition(round, attempt, session, StateSubmittingProposals)

	sem := semaphore.NewWeighted(int64(d.config.MaxInFlight))
	var wg sync.WaitGroup

	for i := uint(0); i < count; i++ {
		proposal := stress.NewProposal(round, attempt, i)

		if err := sem.Acquire(ctx, 1); err != nil {
			d.abandon(results, round, attempt, i)
			break
		}
		// Acquire may succeed on a cancelled context
		if ctx.Err() != nil {
			sem.Release(1)
			d.abandon(results, round, attempt, i)
			break
		}

		submitted := time.Now()
		if err := d.cluster.SubmitProposal(ctx, session, proposal); err != nil {
			sem.Release(1)
			if ctx.Err() != nil {
				d.abandon(results, round, attempt, i)
				break
			}
			results[i] = d.proposalResult(proposal, stress.ProposalFailed, "",
				stress.ProposalSigningFailureError{ProposalID: proposal.ID, Err: err}, time.Since(submitted))
			continue
		}

		d.metrics.ProposalsInFlight(int(d.inflight.Inc()))
		wg.Add(1)
		go func(i uint, proposal stress.Proposal) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = d.awaitSignature(ctx, proposal, submitted)
			d.metrics.ProposalsInFlight(int(d.inflight.Dec()))
		}(i, proposal)
	}

	d.transition(round, attempt, session, StateAwaitingSignatures)
	wg.Wait()
	return results
}

// awaitSignature polls the status of a submitted proposal until it is signed,
// fails, times out or ctx is cancelled.
func (d *Driver) awaitSignature(ctx context.Context, proposal stress.Proposal, submitted time.Time) stress.ProposalResult {
	proposalCtx, cancel := context.WithTimeout(ctx, d.config.ProposalTimeout)
	defer cancel()

	backoff := d.pollBackoff()

	var (
		failure   error
		signature string
	)
	err := retry.Do(proposalCtx, backoff, func(ctx context.Context) error {
		status, err := d.cluster.ProposalStatus(ctx, proposal.ID)
		if err != nil {
			d.log.Debug().Err(err).Str("proposal", proposal.ID.String()).Msg("could not query proposal status")
			return retry.RetryableError(err)
		}
		switch status.Phase {
		case module.SignatureSigned:
			signature = status.Signature
			return nil
		case module.SignatureFailed:
			failure = status.Err
			if failure == nil {
				failure = errors.New("signing failed")
			}
			return failure
		default:
			return retry.RetryableError(errProposalPending)
		}
	})
	latency := time.Since(submitted)

	switch {
	case err == nil:
		return d.proposalResult(proposal, stress.ProposalSigned, signature, nil, latency)
	case failure != nil:
		return d.proposalResult(proposal, stress.ProposalFailed, "",
			stress.ProposalSigningFailureError{ProposalID: proposal.ID, Err: failure}, latency)
	case ctx.Err() != nil:
		return d.proposalResult(proposal, stress.ProposalAbandoned, "", ctx.Err(), latency)
	default:
		return d.proposalResult(proposal, stress.ProposalTimedOut, "",
			stress.ProposalSigningTimeoutError{ProposalID: proposal.ID, Timeout: d.config.ProposalTimeout.String()}, latency)
	}
}

// abandon marks the proposals from index `from` on as abandoned without
// submitting them.
func (d *Driver) abandon(results []stress.ProposalResult, round, attempt, from uint) {
	for i := from; i < uint(len(results)); i++ {
		proposal := stress.NewProposal(round, attempt, i)
		results[i] = d.proposalResult(proposal, stress.ProposalAbandoned, "", context.Canceled, 0)
	}
}

func (d *Driver) proposalResult(
	proposal stress.Proposal,
	outcome stress.ProposalOutcome,
	signature string,
	err error,
	latency time.Duration,
) stress.ProposalResult {
	result := stress.ProposalResult{
		Index:     proposal.Index,
		ID:        proposal.ID,
		Outcome:   outcome,
		Signature: signature,
		Latency:   latency,
	}
	if err != nil {
		result.Error = err.Error()
	}
	d.metrics.ProposalRecorded(outcome, latency)

	if outcome != stress.ProposalSigned && outcome != stress.ProposalAbandoned {
		d.log.Warn().
			Uint("round", proposal.Round).
			Uint("index", proposal.Index).
			Str("proposal", proposal.ID.String()).
			Str("outcome", outcome.String()).
			Err(err).
			Msg("proposal was not signed")
	}
	return result
}

func (d *Driver) record(result stress.RoundResult) {
	d.metrics.RoundRecorded(result.Keygen, result.Succeeded(), result.KeygenDuration, result.Elapsed)
	d.observer.OnRoundRecorded(result)

	signed := 0
	for _, p := range result.Proposals {
		if p.Succeeded() {
			signed++
		}
	}
	event := d.log.Info()
	if !result.Succeeded() {
		event = d.log.Warn()
	}
	event.
		Uint("round", result.Round).
		Uint("attempts", result.Attempts).
		Str("keygen", result.Keygen.String()).
		Int("signed", signed).
		Int("proposals", len(result.Proposals)).
		Dur("elapsed", result.Elapsed).
		Bool("succeeded", result.Succeeded()).
		Msg("round recorded")
}

func (d *Driver) transition(round, attempt uint, session uint64, to State) {
	t := Transition{
		Round:   round,
		Attempt: attempt,
		Session: session,
		From:    d.state,
		To:      to,
		At:      time.Now(),
	}
	d.state = to
	d.observer.OnTransition(t)
}

// pollBackoff relies on SessionConfig.Validate rejecting a non-positive
// poll interval.
func (d *Driver) pollBackoff() retry.Backoff {
	return retry.NewConstant(d.config.PollInterval)
}
