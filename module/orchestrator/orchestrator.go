// Package orchestrator wires the components of a stress run together: it
// checks the ports, starts the cluster, drives the rounds, writes the report
// and always tears the cluster down again.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/cluster"
	"github.com/onflow/flow-dkg-stress/module/driver"
	"github.com/onflow/flow-dkg-stress/module/metrics"
	"github.com/onflow/flow-dkg-stress/module/nodeclient"
	"github.com/onflow/flow-dkg-stress/module/portguard"
	"github.com/onflow/flow-dkg-stress/module/report"
	"github.com/onflow/flow-dkg-stress/module/supervisor"
	"github.com/onflow/flow-dkg-stress/module/teardown"
	utilsio "github.com/onflow/flow-dkg-stress/utils/io"
)

const (
	DefaultTeardownTimeout  = time.Minute
	DefaultPortsFreeTimeout = 30 * time.Second
)

// Config holds everything a run needs besides the session parameters.
type Config struct {
	Session stress.SessionConfig

	// ScratchDir holds node state, node logs and, by default, the report.
	ScratchDir string
	NodeBinary string
	NodeArgs   []string
	NodeEnv    []string
	StopGrace  time.Duration

	// ReportPath defaults to report.json inside ScratchDir.
	ReportPath string
	// MetricsPort serves /metrics when non-zero.
	MetricsPort uint
	// Pushgateway receives the final metrics when non-empty.
	Pushgateway string

	RPCCallTimeout   time.Duration
	TeardownTimeout  time.Duration
	PortsFreeTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSummaryOutput sets where the human readable summary is written.
func WithSummaryOutput(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.summary = w
	}
}

// WithPortGuard replaces the port guard backed by the operating system.
func WithPortGuard(g *portguard.Guard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

// WithObserver registers an observer with the session driver.
func WithObserver(obs driver.Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// Orchestrator runs one stress run.
type Orchestrator struct {
	log      zerolog.Logger
	config   Config
	runID    string
	guard    *portguard.Guard
	summary  io.Writer
	observer driver.Observer
	registry *prometheus.Registry
}

func New(log zerolog.Logger, config Config, opts ...Option) *Orchestrator {
	if config.ReportPath == "" {
		config.ReportPath = filepath.Join(config.ScratchDir, "report.json")
	}
	if config.TeardownTimeout <= 0 {
		config.TeardownTimeout = DefaultTeardownTimeout
	}
	if config.PortsFreeTimeout <= 0 {
		config.PortsFreeTimeout = DefaultPortsFreeTimeout
	}

	runID := uuid.New().String()
	log = log.With().Str("run_id", runID).Logger()

	o := &Orchestrator{
		log:      log,
		config:   config,
		runID:    runID,
		guard:    portguard.New(log),
		summary:  os.Stdout,
		observer: driver.NoopObserver{},
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunID returns the identifier of the run, as written to the report.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Registry returns the registry holding the metrics of the run.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Run executes the run. It returns the report when the rounds were driven,
// even if the verdict is fail. An error is returned if the run could not be
// set up: invalid configuration, busy ports, a locked scratch directory, a
// node that could not be spawned or a cluster that never became ready.
//
// Every resource acquired is released before Run returns, also when ctx is
// cancelled. Teardown failures are logged and never replace the result.
func (o *Orchestrator) Run(ctx context.Context) (*stress.RunReport, error) {
	started := time.Now()
	cfg := o.config.Session
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if o.config.ScratchDir == "" {
		return nil, stress.NewConfigurationErrorf("scratch directory must be set")
	}

	specs, err := cluster.Provision(cfg, o.config.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("could not provision cluster: %w", err)
	}
	ports := cluster.RequiredPorts(specs)

	// pre-flight, nothing to tear down yet
	if err := o.guard.Check(ctx, ports); err != nil {
		return nil, fmt.Errorf("pre-flight port check failed: %w", err)
	}

	td := teardown.New(o.log)
	defer func() {
		// the run context may already be cancelled
		teardownCtx, cancel := context.WithTimeout(context.Background(), o.config.TeardownTimeout)
		defer cancel()
		if err := td.Teardown(teardownCtx); err != nil {
			o.log.Error().Err(err).Msg("teardown did not complete cleanly")
		}
	}()

	lock := utilsio.NewFileLock(o.config.ScratchDir)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("could not lock scratch directory: %w", err)
	}
	td.Register("release scratch directory lock", func(context.Context) error {
		return lock.Unlock()
	})

	collector := metrics.NewOrchestratorCollector(o.registry)
	if o.config.MetricsPort > 0 {
		server := metrics.NewServer(o.log, o.config.MetricsPort, o.registry)
		if err := server.Start(); err != nil {
			return nil, fmt.Errorf("could not start metrics server: %w", err)
		}
		td.Register("stop metrics server", func(context.Context) error {
			return server.Shutdown()
		})
	}

	for _, spec := range specs {
		// every run starts from a fresh chain
		if err := os.RemoveAll(spec.BasePath); err != nil {
			return nil, fmt.Errorf("could not clear state of node %s: %w", spec.Label, err)
		}
	}

	td.Register("wait for ports to be released", func(ctx context.Context) error {
		return o.guard.WaitFree(ctx, ports, o.config.PortsFreeTimeout)
	})

	sup := supervisor.New(o.log, supervisor.Config{
		Binary:          o.config.NodeBinary,
		ExtraArgs:       o.config.NodeArgs,
		Env:             o.config.NodeEnv,
		StopGracePeriod: o.config.StopGrace,
	}, collector)
	procs, err := sup.Start(ctx, specs)
	if err != nil {
		return nil, err
	}
	td.Register("stop nodes", func(context.Context) error {
		return sup.Stop(procs)
	})

	clusterClient, err := nodeclient.DialCluster(ctx, o.log, specs, o.config.RPCCallTimeout)
	if err != nil {
		return nil, err
	}
	td.Register("close node clients", func(context.Context) error {
		return clusterClient.Close()
	})

	d := driver.New(o.log, cfg, clusterClient, collector, driver.WithObserver(o.observer))
	if err := d.AwaitClusterReady(ctx); err != nil {
		o.logDeadNodes(sup, procs)
		return nil, err
	}

	o.log.Info().
		Uint("threshold", cfg.Threshold).
		Uint("participants", cfg.Participants).
		Uint("rounds", cfg.Rounds).
		Uint("proposals", cfg.Proposals).
		Msg("starting rounds")

	results := d.Run(ctx)
	o.logDeadNodes(sup, procs)

	rep := report.Aggregate(results)
	rep.RunID = o.runID
	rep.Config = stress.ReportConfigFrom(cfg)
	rep.StartedAt = started
	rep.FinishedAt = time.Now()

	o.publish(&rep)
	return &rep, nil
}

// publish writes the summary and the JSON report and pushes the metrics.
// Failures are logged; they do not change the verdict.
func (o *Orchestrator) publish(rep *stress.RunReport) {
	if err := report.WriteSummary(o.summary, rep); err != nil {
		o.log.Error().Err(err).Msg("could not write summary")
	}
	if err := report.Save(o.config.ReportPath, rep); err != nil {
		o.log.Error().Err(err).Msg("could not save report")
	} else {
		o.log.Info().Str("path", o.config.ReportPath).Msg("report saved")
	}

	if o.config.Pushgateway != "" {
		if err := metrics.Push(o.config.Pushgateway, o.runID, o.registry); err != nil {
			o.log.Error().Err(err).Msg("could not push metrics")
		}
	}

	event := o.log.Info()
	if !rep.Passed() {
		event = o.log.Error().Uint("first_failed_round", rep.FirstFailedRound)
	}
	event.
		Str("verdict", string(rep.Verdict)).
		Int("passed", rep.Counts.Passed).
		Int("rounds", rep.Counts.Rounds).
		Msg("run finished")
}

func (o *Orchestrator) logDeadNodes(sup *supervisor.Supervisor, procs []*supervisor.NodeProcess) {
	for _, proc := range procs {
		if !sup.IsAlive(proc) {
			o.log.Warn().
				Str("node", proc.Spec().Label).
				Int("exit_code", proc.ExitCode()).
				Str("log", proc.Spec().LogPath).
				Msg("node is not running")
		}
	}
}
