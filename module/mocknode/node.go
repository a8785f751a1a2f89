// Package mocknode simulates a DKG node behind the node RPC API. It backs the
// dkg-mocknode binary and the package tests that need a live endpoint.
package mocknode

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/crypto/sha3"
	"golang.org/x/exp/slices"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/nodeclient"
)

const (
	DefaultKeygenDelay = 500 * time.Millisecond
	DefaultSignDelay   = 200 * time.Millisecond
)

// Faults selects the misbehaviour injected into a node.
type Faults struct {
	// FailKeygenRounds lists rounds whose sessions end in failure.
	FailKeygenRounds []uint
	// StallKeygenRounds lists rounds whose sessions never complete.
	StallKeygenRounds []uint
	// FaultAttempts limits keygen faults to the first N attempts of a round.
	// Zero applies them to every attempt.
	FaultAttempts uint
	// FailProposalsEvery fails every N-th proposal of a round, counting from
	// one. Zero disables proposal faults.
	FailProposalsEvery uint
	// StallProposalsEvery never signs every N-th proposal of a round.
	StallProposalsEvery uint
}

// Config configures a simulated node.
type Config struct {
	Label       string
	KeygenDelay time.Duration
	SignDelay   time.Duration
	Faults      Faults
	// StaticPeers is added to the number of live p2p connections reported
	// by Health.
	StaticPeers uint
}

type session struct {
	id           uint64
	threshold    uint
	participants uint
	startedAt    time.Time
	fail         bool
	stall        bool
}

type proposal struct {
	id          stress.ProposalID
	session     uint64
	payload     []byte
	submittedAt time.Time
	fail        bool
	stall       bool
}

// Node is the simulated DKG state of one node. Session and proposal progress
// is derived from the time elapsed since they were started, so the node needs
// no background workers.
type Node struct {
	log    zerolog.Logger
	config Config
	now    func() time.Time
	peers  *atomic.Int32

	mu        sync.Mutex
	sessions  map[uint64]*session
	proposals map[stress.ProposalID]*proposal
}

// New creates a simulated node.
func New(log zerolog.Logger, config Config) *Node {
	return &Node{
		log:       log.With().Str("component", "mock_node").Str("node", config.Label).Logger(),
		config:    config,
		now:       time.Now,
		peers:     atomic.NewInt32(0),
		sessions:  make(map[uint64]*session),
		proposals: make(map[stress.ProposalID]*proposal),
	}
}

// StartSession registers a new keygen session. Starting a known session again
// is accepted and has no effect.
func (n *Node) StartSession(id uint64, threshold, participants uint) bool {
	if threshold < 1 || participants < threshold {
		n.log.Warn().Uint64("session", id).Uint("threshold", threshold).Uint("participants", participants).
			Msg("rejecting session with invalid parameters")
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.sessions[id]; ok {
		return true
	}

	round, attempt := stress.SessionRound(id), stress.SessionAttempt(id)
	faulty := n.config.Faults.FaultAttempts == 0 || attempt < n.config.Faults.FaultAttempts
	n.sessions[id] = &session{
		id:           id,
		threshold:    threshold,
		participants: participants,
		startedAt:    n.now(),
		fail:         faulty && slices.Contains(n.config.Faults.FailKeygenRounds, round),
		stall:        faulty && slices.Contains(n.config.Faults.StallKeygenRounds, round),
	}
	n.log.Info().Uint64("session", id).Uint("round", round).Uint("attempt", attempt).Msg("session started")
	return true
}

// SessionStatus returns the phase of a session. Unknown sessions are pending.
func (n *Node) SessionStatus(id uint64) nodeclient.SessionStatusResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sessionStatus(id)
}

func (n *Node) sessionStatus(id uint64) nodeclient.SessionStatusResult {
	s, ok := n.sessions[id]
	if !ok {
		return nodeclient.SessionStatusResult{SessionID: id, Phase: nodeclient.PhasePending}
	}
	switch {
	case s.stall || n.now().Sub(s.startedAt) < n.config.KeygenDelay:
		return nodeclient.SessionStatusResult{SessionID: id, Phase: nodeclient.PhaseRunning}
	case s.fail:
		return nodeclient.SessionStatusResult{SessionID: id, Phase: nodeclient.PhaseFailed, Error: "keygen protocol aborted: misbehaving participant"}
	default:
		return nodeclient.SessionStatusResult{SessionID: id, Phase: nodeclient.PhaseComplete}
	}
}

// SubmitProposal queues a payload for signing under the key of a completed
// session and returns its ID.
func (n *Node) SubmitProposal(sessionID uint64, payload []byte) (stress.ProposalID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if status := n.sessionStatus(sessionID); status.Phase != nodeclient.PhaseComplete {
		return "", fmt.Errorf("session %d has no key (phase %s)", sessionID, status.Phase)
	}

	id := stress.ComputeProposalID(payload)
	if _, ok := n.proposals[id]; ok {
		return id, nil
	}

	p := &proposal{
		id:          id,
		session:     sessionID,
		payload:     payload,
		submittedAt: n.now(),
	}
	if _, _, index, err := stress.ParseProposalPayload(payload); err == nil {
		p.fail = every(n.config.Faults.FailProposalsEvery, index)
		p.stall = every(n.config.Faults.StallProposalsEvery, index)
	}
	n.proposals[id] = p
	n.log.Debug().Str("proposal", id.String()).Uint64("session", sessionID).Msg("proposal submitted")
	return id, nil
}

// ProposalStatus returns the signing status of a proposal.
func (n *Node) ProposalStatus(id stress.ProposalID) nodeclient.ProposalStatusResult {
	n.mu.Lock()
	defer n.mu.Unlock()

	p, ok := n.proposals[id]
	if !ok {
		return nodeclient.ProposalStatusResult{ID: id.String(), Status: nodeclient.StatusUnknown}
	}
	switch {
	case p.stall || n.now().Sub(p.submittedAt) < n.config.SignDelay:
		return nodeclient.ProposalStatusResult{ID: id.String(), Status: nodeclient.StatusPending}
	case p.fail:
		return nodeclient.ProposalStatusResult{ID: id.String(), Status: nodeclient.StatusFailed, Error: "signing set did not reach threshold"}
	default:
		return nodeclient.ProposalStatusResult{ID: id.String(), Status: nodeclient.StatusSigned, Signature: signature(p.session, p.payload)}
	}
}

// Health reports the number of connected peers.
func (n *Node) Health(shouldHavePeers bool) nodeclient.SystemHealth {
	return nodeclient.SystemHealth{
		Peers:           uint(n.peers.Load()) + n.config.StaticPeers,
		ShouldHavePeers: shouldHavePeers,
	}
}

// signature derives a deterministic stand-in for the threshold signature, so
// that every node reports the same signature for a proposal.
func signature(session uint64, payload []byte) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = fmt.Fprintf(h, "dkg-stress/session/%d/", session)
	_, _ = h.Write(payload)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func every(n uint, index uint) bool {
	return n > 0 && (index+1)%n == 0
}
