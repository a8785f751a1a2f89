package supervisor

import (
	"os"
	"os/exec"
	"sync"

	"go.uber.org/atomic"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// ProcessState is the lifecycle state of a node process.
type ProcessState int32

const (
	ProcessRunning ProcessState = iota
	// ProcessStopped processes were stopped by the supervisor.
	ProcessStopped
	// ProcessExited processes terminated on their own.
	ProcessExited
)

func (s ProcessState) String() string {
	switch s {
	case ProcessRunning:
		return "running"
	case ProcessStopped:
		return "stopped"
	case ProcessExited:
		return "exited"
	default:
		return "unknown"
	}
}

// NodeProcess owns the OS process of one node. It is created and mutated only
// by the Supervisor.
type NodeProcess struct {
	spec    stress.NodeSpec
	cmd     *exec.Cmd
	logFile *os.File

	state    *atomic.Int32
	stopping *atomic.Bool

	// exited is closed once the process has been reaped. exitErr is written
	// before the close and must only be read after it.
	exited  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

// Spec returns the node spec the process was started from.
func (p *NodeProcess) Spec() stress.NodeSpec {
	return p.spec
}

// PID returns the OS process ID.
func (p *NodeProcess) PID() int {
	return p.cmd.Process.Pid
}

// State returns the current lifecycle state.
func (p *NodeProcess) State() ProcessState {
	return ProcessState(p.state.Load())
}

// Exited returns a channel that is closed once the process has terminated
// and been reaped.
func (p *NodeProcess) Exited() <-chan struct{} {
	return p.exited
}

// ExitErr returns the error returned by waiting on the process, nil for a
// zero exit status. It returns nil while the process is running.
func (p *NodeProcess) ExitErr() error {
	select {
	case <-p.exited:
		return p.exitErr
	default:
		return nil
	}
}

// ExitCode returns the exit code of a terminated process, or -1 if the
// process is still running or was killed by a signal.
func (p *NodeProcess) ExitCode() int {
	select {
	case <-p.exited:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}
