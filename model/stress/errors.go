package stress

import (
	"errors"
	"fmt"
)

// ConfigurationError indicates that the orchestrator was started with invalid
// or inconsistent parameters.
type ConfigurationError struct {
	err error
}

func NewConfigurationError(err error) error {
	return ConfigurationError{err}
}

func NewConfigurationErrorf(msg string, args ...interface{}) error {
	return ConfigurationError{fmt.Errorf(msg, args...)}
}

func (e ConfigurationError) Error() string { return e.err.Error() }
func (e ConfigurationError) Unwrap() error { return e.err }

// IsConfigurationError returns whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var e ConfigurationError
	return errors.As(err, &e)
}

// KeygenTimeoutError indicates that the DKG session of a round did not
// complete before the keygen deadline.
type KeygenTimeoutError struct {
	Round   uint
	Session uint64
	Timeout string
}

func (e KeygenTimeoutError) Error() string {
	return fmt.Sprintf("keygen of session %d (round %d) did not complete within %s", e.Session, e.Round, e.Timeout)
}

// IsKeygenTimeoutError returns whether err is a KeygenTimeoutError
func IsKeygenTimeoutError(err error) bool {
	var e KeygenTimeoutError
	return errors.As(err, &e)
}

// KeygenFailureError indicates that at least one node reported an error for
// the DKG session of a round.
type KeygenFailureError struct {
	Round   uint
	Session uint64
	Err     error
}

func (e KeygenFailureError) Error() string {
	return fmt.Sprintf("keygen of session %d (round %d) failed: %s", e.Session, e.Round, e.Err.Error())
}

func (e KeygenFailureError) Unwrap() error { return e.Err }

// IsKeygenFailureError returns whether err is a KeygenFailureError
func IsKeygenFailureError(err error) bool {
	var e KeygenFailureError
	return errors.As(err, &e)
}

// ProposalSigningTimeoutError indicates that no threshold signature for a
// proposal was observed before the per-proposal deadline.
type ProposalSigningTimeoutError struct {
	ProposalID ProposalID
	Timeout    string
}

func (e ProposalSigningTimeoutError) Error() string {
	return fmt.Sprintf("proposal %s was not signed within %s", e.ProposalID, e.Timeout)
}

// IsProposalSigningTimeoutError returns whether err is a ProposalSigningTimeoutError
func IsProposalSigningTimeoutError(err error) bool {
	var e ProposalSigningTimeoutError
	return errors.As(err, &e)
}

// ProposalSigningFailureError indicates that the cluster gave up signing a
// proposal, or that the proposal could not be submitted.
type ProposalSigningFailureError struct {
	ProposalID ProposalID
	Err        error
}

func (e ProposalSigningFailureError) Error() string {
	return fmt.Sprintf("signing of proposal %s failed: %s", e.ProposalID, e.Err.Error())
}

func (e ProposalSigningFailureError) Unwrap() error { return e.Err }

// IsProposalSigningFailureError returns whether err is a ProposalSigningFailureError
func IsProposalSigningFailureError(err error) bool {
	var e ProposalSigningFailureError
	return errors.As(err, &e)
}
