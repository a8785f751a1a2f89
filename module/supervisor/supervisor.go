// Package supervisor spawns, tracks and terminates the node processes of the
// cluster. It is the only package allowed to signal or reap them.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/exp/slices"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module"
	"github.com/onflow/flow-dkg-stress/module/cluster"
)

const (
	DefaultStopGracePeriod = 10 * time.Second
	DefaultChain           = "local"

	// killTimeout bounds the wait for a process to be reaped after SIGKILL.
	killTimeout = 5 * time.Second
)

// DefaultNodeArgs are passed to every node after the provisioned arguments.
var DefaultNodeArgs = []string{"--rpc-cors", "all", "--rpc-methods", "unsafe", "-lerror"}

// Config configures how node processes are launched and stopped.
type Config struct {
	// Binary is the path of the node executable.
	Binary string
	// Chain is passed as --chain.
	Chain string
	// ExtraArgs are appended to the arguments of every node.
	ExtraArgs []string
	// Env is appended to the orchestrator's environment for every node.
	Env []string
	// StopGracePeriod is the time between SIGTERM and SIGKILL.
	StopGracePeriod time.Duration
}

// NodeSpawnError indicates that a node process could not be started. The
// nodes started before it have been stopped when this error is returned.
type NodeSpawnError struct {
	Label string
	Index int
	Err   error
}

func (e NodeSpawnError) Error() string {
	return fmt.Sprintf("could not spawn node %s (index %d): %s", e.Label, e.Index, e.Err.Error())
}

func (e NodeSpawnError) Unwrap() error { return e.Err }

// IsNodeSpawnError returns whether err is a NodeSpawnError
func IsNodeSpawnError(err error) bool {
	var e NodeSpawnError
	return errors.As(err, &e)
}

// Supervisor starts and stops the node processes of one cluster.
type Supervisor struct {
	log     zerolog.Logger
	config  Config
	metrics module.ClusterMetrics
	running *atomic.Int32
}

// New returns a Supervisor. Zero values of Chain and StopGracePeriod are
// replaced by their defaults.
func New(log zerolog.Logger, config Config, metrics module.ClusterMetrics) *Supervisor {
	if config.Chain == "" {
		config.Chain = DefaultChain
	}
	if config.StopGracePeriod <= 0 {
		config.StopGracePeriod = DefaultStopGracePeriod
	}
	return &Supervisor{
		log:     log.With().Str("component", "node_supervisor").Logger(),
		config:  config,
		metrics: metrics,
		running: atomic.NewInt32(0),
	}
}

// Args returns the command line the node with the given spec is started with.
func (s *Supervisor) Args(spec stress.NodeSpec) []string {
	args := []string{
		"--base-path", spec.BasePath,
		"--chain", s.config.Chain,
	}
	if spec.Role == stress.RoleAuthority {
		args = append(args, "--validator")
	}
	if cluster.IsWellKnownLabel(spec.Label) {
		args = append(args, "--"+spec.Label)
	} else {
		args = append(args, "--name", spec.Label)
	}
	args = append(args,
		"--port", strconv.Itoa(int(spec.P2PPort)),
		"--rpc-port", strconv.Itoa(int(spec.RPCPort)),
		"--node-key", spec.NodeKey,
	)
	if spec.ListenAddr != "" {
		args = append(args, "--listen-addr", spec.ListenAddr)
	}
	// rpc binds loopback only unless told otherwise
	if !spec.LoopbackHost() {
		args = append(args, "--rpc-external")
	}
	if spec.Bootnode != "" {
		args = append(args, "--bootnodes", spec.Bootnode)
	}
	return append(args, s.config.ExtraArgs...)
}

// Start spawns one process per spec, sequentially in index order, so the seed
// node is always started first. If any spawn fails, the processes started so
// far are stopped and a NodeSpawnError is returned.
func (s *Supervisor) Start(ctx context.Context, specs []stress.NodeSpec) ([]*NodeProcess, error) {
	ordered := slices.Clone(specs)
	slices.SortFunc(ordered, func(a, b stress.NodeSpec) int {
		return a.Index - b.Index
	})

	procs := make([]*NodeProcess, 0, len(ordered))
	for _, spec := range ordered {
		err := ctx.Err()
		if err == nil {
			var proc *NodeProcess
			proc, err = s.spawn(spec)
			if err == nil {
				procs = append(procs, proc)
				continue
			}
		}

		s.log.Error().Err(err).Str("node", spec.Label).Int("started", len(procs)).
			Msg("could not spawn node, stopping partially started cluster")
		if stopErr := s.Stop(procs); stopErr != nil {
			s.log.Error().Err(stopErr).Msg("could not stop partially started cluster")
		}
		return nil, NodeSpawnError{Label: spec.Label, Index: spec.Index, Err: err}
	}

	s.log.Info().Int("nodes", len(procs)).Msg("cluster started")
	return procs, nil
}

// Stop stops the given processes. Already stopped or exited processes are
// skipped, so calling Stop repeatedly is safe. All processes are signalled
// concurrently; errors are collected and returned together.
func (s *Supervisor) Stop(procs []*NodeProcess) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs *multierror.Error
	)
	for _, proc := range procs {
		wg.Add(1)
		go func(proc *NodeProcess) {
			defer wg.Done()
			if err := s.stop(proc); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("could not stop node %s: %w", proc.spec.Label, err))
				mu.Unlock()
			}
		}(proc)
	}
	wg.Wait()
	return errs.ErrorOrNil()
}

// IsAlive returns true if the process has not terminated.
func (s *Supervisor) IsAlive(proc *NodeProcess) bool {
	select {
	case <-proc.exited:
		return false
	default:
		return proc.State() == ProcessRunning
	}
}

// Running returns the number of processes that have not terminated yet.
func (s *Supervisor) Running() int {
	return int(s.running.Load())
}

func (s *Supervisor) spawn(spec stress.NodeSpec) (*NodeProcess, error) {
	if err := os.MkdirAll(spec.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("could not create base path: %w", err)
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}

	cmd := exec.Command(s.config.Binary, s.Args(spec)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), s.config.Env...)
	cmd.SysProcAttr = nodeSysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("could not start %s: %w", s.config.Binary, err)
	}

	proc := &NodeProcess{
		spec:     spec,
		cmd:      cmd,
		logFile:  logFile,
		state:    atomic.NewInt32(int32(ProcessRunning)),
		stopping: atomic.NewBool(false),
		exited:   make(chan struct{}),
	}
	s.metrics.NodesRunning(int(s.running.Inc()))
	go s.watch(proc)

	s.log.Info().
		Str("node", spec.Label).
		Str("role", spec.Role.String()).
		Int("pid", cmd.Process.Pid).
		Uint16("p2p_port", spec.P2PPort).
		Uint16("rpc_port", spec.RPCPort).
		Str("listen_addr", spec.ListenAddr).
		Str("log", spec.LogPath).
		Msg("node started")

	return proc, nil
}

// watch reaps the process and records how it terminated.
func (s *Supervisor) watch(proc *NodeProcess) {
	err := proc.cmd.Wait()
	proc.exitErr = err

	if proc.stopping.Load() {
		proc.state.Store(int32(ProcessStopped))
	} else {
		proc.state.Store(int32(ProcessExited))
		s.metrics.NodeExitedUnexpectedly(proc.spec.Role)
		s.log.Error().Err(err).
			Str("node", proc.spec.Label).
			Int("exit_code", proc.cmd.ProcessState.ExitCode()).
			Str("log", proc.spec.LogPath).
			Msg("node exited unexpectedly")
	}
	s.metrics.NodesRunning(int(s.running.Dec()))
	close(proc.exited)
}

func (s *Supervisor) stop(proc *NodeProcess) error {
	proc.stopOnce.Do(func() {
		proc.stopping.Store(true)

		var errs *multierror.Error
		if err := s.terminate(proc); err != nil {
			errs = multierror.Append(errs, err)
		}
		if err := proc.logFile.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not close log file: %w", err))
		}
		proc.stopErr = errs.ErrorOrNil()
	})
	return proc.stopErr
}

// terminate sends SIGTERM, waits for the grace period and then kills the
// process. It returns once the process has been reaped.
func (s *Supervisor) terminate(proc *NodeProcess) error {
	select {
	case <-proc.exited:
		return nil
	default:
	}

	log := s.log.With().Str("node", proc.spec.Label).Int("pid", proc.PID()).Logger()

	err := proc.cmd.Process.Signal(syscall.SIGTERM)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Warn().Err(err).Msg("could not send SIGTERM")
	}

	select {
	case <-proc.exited:
		log.Debug().Msg("node stopped")
		return nil
	case <-time.After(s.config.StopGracePeriod):
	}

	log.Warn().Dur("grace_period", s.config.StopGracePeriod).Msg("node did not stop in time, killing it")
	err = proc.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("could not kill pid %d: %w", proc.PID(), err)
	}

	select {
	case <-proc.exited:
		return nil
	case <-time.After(killTimeout):
		return fmt.Errorf("pid %d was not reaped within %s after SIGKILL", proc.PID(), killTimeout)
	}
}
