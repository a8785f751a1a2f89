package stress

import (
	"fmt"
)

// sessionAttemptBits is the width of the attempt field of a session ID.
const sessionAttemptBits = 16

// SessionID derives the DKG session ID used for the given attempt of a round.
// Every attempt of every round uses a distinct session, and the round and
// attempt can be recovered from the ID.
func SessionID(round, attempt uint) uint64 {
	return uint64(round)<<sessionAttemptBits | uint64(attempt)&(1<<sessionAttemptBits-1)
}

// SessionRound returns the round a session ID was derived from.
func SessionRound(session uint64) uint {
	return uint(session >> sessionAttemptBits)
}

// SessionAttempt returns the attempt a session ID was derived from.
func SessionAttempt(session uint64) uint {
	return uint(session & (1<<sessionAttemptBits - 1))
}

// ParseProposalPayload recovers the position of a proposal from a payload
// built by NewProposal.
func ParseProposalPayload(payload []byte) (round, attempt, index uint, err error) {
	_, err = fmt.Sscanf(string(payload), "dkg-stress/round/%d/attempt/%d/proposal/%d", &round, &attempt, &index)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("not a stress proposal payload: %w", err)
	}
	return round, attempt, index, nil
}
