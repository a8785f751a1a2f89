package metrics

const (
	namespaceDKGStress = "dkg_stress"

	subsystemCluster  = "cluster"
	subsystemSession  = "session"
	subsystemProposal = "proposal"
)

const (
	LabelOutcome   = "outcome"
	LabelNodeRole  = "noderole"
	LabelSucceeded = "succeeded"
)
