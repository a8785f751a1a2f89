package stress

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// ProposalID identifies a proposal by the Keccak-256 hash of its payload,
// hex encoded with a 0x prefix. Signing results are matched back to their
// proposal by this ID, never by arrival order.
type ProposalID string

func (id ProposalID) String() string {
	return string(id)
}

// Proposal is a unit of data submitted to the cluster for threshold signing.
type Proposal struct {
	Round   uint
	Attempt uint
	Index   uint
	Payload []byte
	ID      ProposalID
}

// NewProposal builds the deterministic proposal with the given position. Two
// runs with the same parameters submit byte-identical proposals.
func NewProposal(round, attempt, index uint) Proposal {
	payload := []byte(fmt.Sprintf("dkg-stress/round/%d/attempt/%d/proposal/%d", round, attempt, index))
	return Proposal{
		Round:   round,
		Attempt: attempt,
		Index:   index,
		Payload: payload,
		ID:      ComputeProposalID(payload),
	}
}

// PayloadHex returns the 0x prefixed hex encoding of the payload.
func (p Proposal) PayloadHex() string {
	return "0x" + hex.EncodeToString(p.Payload)
}

// ComputeProposalID hashes the payload with Keccak-256.
func ComputeProposalID(payload []byte) ProposalID {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(payload)
	return ProposalID("0x" + hex.EncodeToString(h.Sum(nil)))
}
