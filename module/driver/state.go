package driver

import (
	"sync"
	"time"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// State is the state of the round state machine.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingKeygen      State = "awaiting_keygen"
	StateKeygenComplete      State = "keygen_complete"
	StateKeygenTimedOut      State = "keygen_timed_out"
	StateKeygenFailed        State = "keygen_failed"
	StateSubmittingProposals State = "submitting_proposals"
	StateAwaitingSignatures  State = "awaiting_signatures"
	StateRoundComplete       State = "round_complete"
)

func (s State) String() string {
	return string(s)
}

// Transition is a single state change of the driver.
type Transition struct {
	Round   uint
	Attempt uint
	Session uint64
	From    State
	To      State
	At      time.Time
}

// Observer is notified synchronously of every state transition and every
// recorded round, in order. Implementations must not block.
type Observer interface {
	OnTransition(Transition)
	OnRoundRecorded(stress.RoundResult)
}

// NoopObserver ignores all notifications.
type NoopObserver struct{}

func (NoopObserver) OnTransition(Transition)            {}
func (NoopObserver) OnRoundRecorded(stress.RoundResult) {}

// Recorder is an Observer that keeps every notification. It is safe for
// concurrent use.
type Recorder struct {
	mu          sync.Mutex
	transitions []Transition
	rounds      []stress.RoundResult
}

var _ Observer = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnTransition(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *Recorder) OnRoundRecorded(result stress.RoundResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, result)
}

// Transitions returns a copy of the recorded transitions.
func (r *Recorder) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.transitions...)
}

// Rounds returns a copy of the recorded rounds.
func (r *Recorder) Rounds() []stress.RoundResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stress.RoundResult(nil), r.rounds...)
}

// Path returns the sequence of target states entered during the given round,
// over all attempts.
func (r *Recorder) Path(round uint) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var path []State
	for _, t := range r.transitions {
		if t.Round == round {
			path = append(path, t.To)
		}
	}
	return path
}
