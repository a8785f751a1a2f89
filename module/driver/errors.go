package driver

import (
	"errors"
	"fmt"
	"time"
)

// ClusterNotReadyError indicates that the cluster did not become healthy
// within the ready timeout.
type ClusterNotReadyError struct {
	Timeout time.Duration
	Err     error
}

func (e ClusterNotReadyError) Error() string {
	return fmt.Sprintf("cluster not ready after %s: %s", e.Timeout, e.Err.Error())
}

func (e ClusterNotReadyError) Unwrap() error { return e.Err }

// IsClusterNotReadyError returns whether err is a ClusterNotReadyError
func IsClusterNotReadyError(err error) bool {
	var e ClusterNotReadyError
	return errors.As(err, &e)
}

var (
	errSessionPending  = errors.New("session pending")
	errProposalPending = errors.New("proposal pending")
)
