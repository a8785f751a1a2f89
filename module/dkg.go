package module

import (
	"context"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// SessionPhase is the aggregated phase of a DKG session across the cluster.
type SessionPhase string

const (
	SessionPending  SessionPhase = "pending"
	SessionComplete SessionPhase = "complete"
	SessionFailed   SessionPhase = "failed"
)

// SessionStatus is the aggregated status of a DKG session.
type SessionStatus struct {
	Session uint64
	Phase   SessionPhase
	// Err describes the first node error when Phase is SessionFailed.
	Err error
}

// SignaturePhase is the aggregated signing phase of a proposal.
type SignaturePhase string

const (
	SignaturePending SignaturePhase = "pending"
	SignatureSigned  SignaturePhase = "signed"
	SignatureFailed  SignaturePhase = "failed"
)

// ProposalStatus is the aggregated signing status of a proposal.
type ProposalStatus struct {
	ID        stress.ProposalID
	Phase     SignaturePhase
	Signature string
	// Err describes why signing failed when Phase is SignatureFailed.
	Err error
}

// NodeHealth is the health report of one node.
type NodeHealth struct {
	Label     string
	Reachable bool
	Peers     uint
	IsSyncing bool
	Err       error
}

// DKGCluster is the session driver's view of the running cluster. It talks to
// the nodes exclusively through their RPC endpoints and never touches the
// node processes.
type DKGCluster interface {

	// Health returns the health of every node, in spawn order. Unreachable
	// nodes are reported with Reachable=false rather than as an error.
	Health(ctx context.Context) ([]NodeHealth, error)

	// StartSession asks the participants to begin a new DKG session with the
	// given ID, threshold and number of participants.
	StartSession(ctx context.Context, session uint64, threshold uint, participants uint) error

	// SessionStatus returns the aggregated status of the given session.
	SessionStatus(ctx context.Context, session uint64) (SessionStatus, error)

	// SubmitProposal submits a proposal for threshold signing under the key of
	// the given session.
	SubmitProposal(ctx context.Context, session uint64, proposal stress.Proposal) error

	// ProposalStatus returns the aggregated signing status of a proposal.
	ProposalStatus(ctx context.Context, id stress.ProposalID) (ProposalStatus, error)

	// Close releases the connections to the nodes.
	Close() error
}
