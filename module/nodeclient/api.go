package nodeclient

// RPC method names of the node API.
const (
	MethodStartSession   = "dkg_startSession"
	MethodSessionStatus  = "dkg_sessionStatus"
	MethodSubmitProposal = "dkg_submitProposal"
	MethodProposalStatus = "dkg_proposalStatus"
	MethodSystemHealth   = "system_health"
)

// Session phases reported by a single node.
const (
	PhasePending  = "pending"
	PhaseRunning  = "running"
	PhaseComplete = "complete"
	PhaseFailed   = "failed"
)

// Proposal statuses reported by a single node.
const (
	StatusUnknown = "unknown"
	StatusPending = "pending"
	StatusSigned  = "signed"
	StatusFailed  = "failed"
)

// SystemHealth is the result of system_health.
type SystemHealth struct {
	Peers           uint `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

// SessionStatusResult is the result of dkg_sessionStatus.
type SessionStatusResult struct {
	SessionID uint64 `json:"sessionId"`
	Phase     string `json:"phase"`
	Error     string `json:"error,omitempty"`
}

// ProposalStatusResult is the result of dkg_proposalStatus.
type ProposalStatusResult struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}
