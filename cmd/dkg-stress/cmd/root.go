package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/orchestrator"
	"github.com/onflow/flow-dkg-stress/module/supervisor"
)

const envPrefix = "DKG_STRESS"

const (
	ExitPass        = 0
	ExitFailVerdict = 1
	ExitSetupError  = 2
)

const (
	flagConfig          = "config"
	flagTmp             = "tmp"
	flagThreshold       = "threshold"
	flagParticipants    = "n"
	flagBind            = "bind"
	flagRounds          = "n-tests"
	flagProposals       = "proposals"
	flagNodeBinary      = "node-binary"
	flagNodeArg         = "node-arg"
	flagRPCBasePort     = "rpc-base-port"
	flagExtraNodes      = "extra-nodes"
	flagFailFast        = "fail-fast"
	flagRoundRetries    = "round-retries"
	flagMaxInFlight     = "max-inflight"
	flagKeygenTimeout   = "keygen-timeout"
	flagProposalTimeout = "proposal-timeout"
	flagPollInterval    = "poll-interval"
	flagReadyTimeout    = "ready-timeout"
	flagStopGrace       = "stop-grace"
	flagReport          = "report"
	flagMetricsPort     = "metrics-port"
	flagPushgateway     = "pushgateway"
	flagLogLevel        = "log-level"
	flagProgress        = "progress"
)

const defaultNodeBinary = "./target/release/dkg-standalone-node"

// errFailVerdict is returned by the command when the rounds were driven but
// the verdict is fail.
var errFailVerdict = errors.New("stress run failed")

// NewRootCommand returns the dkg-stress command. Every flag can also be set
// through a DKG_STRESS_<FLAG> environment variable or a config file.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "dkg-stress",
		Short: "Stress test the DKG protocol of a local node cluster",
		Long: "Starts a local cluster of DKG nodes, runs repeated keygen and " +
			"signing rounds against it and reports whether every round succeeded.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger(v.GetString(flagLogLevel))
			if err != nil {
				return err
			}
			config, err := loadConfig(v)
			if err != nil {
				return err
			}
			var opts []orchestrator.Option
			if v.GetBool(flagProgress) {
				progress := newProgressObserver(os.Stderr, config.Session.Rounds)
				defer progress.finish()
				opts = append(opts, orchestrator.WithObserver(progress))
			}
			return run(cmd.Context(), log, config, opts...)
		},
	}

	defaults := stress.DefaultSessionConfig()
	flags := cmd.Flags()
	flags.String(flagConfig, "", "config file (yaml, toml or json)")
	flags.String(flagTmp, "./tmp", "scratch directory for node state and logs")
	flags.Uint(flagThreshold, defaults.Threshold, "DKG signing threshold")
	flags.Uint(flagParticipants, defaults.Participants, "number of participant nodes")
	flags.String(flagBind, defaults.Bind, "base network bind address, node i binds port+i")
	flags.Uint(flagRounds, defaults.Rounds, "number of stress rounds")
	flags.UintP(flagProposals, "p", defaults.Proposals, "proposals per round")
	flags.String(flagNodeBinary, defaultNodeBinary, "node executable")
	flags.StringArray(flagNodeArg, nil, "extra argument passed to every node (repeatable)")
	flags.Uint(flagRPCBasePort, uint(defaults.RPCBasePort), "RPC port of the first node, node i uses port+i")
	flags.Uint(flagExtraNodes, 0, "number of non-participating validator nodes")
	flags.Bool(flagFailFast, false, "stop at the first failing round")
	flags.Uint(flagRoundRetries, 0, "number of times a failed round is re-run")
	flags.Uint(flagMaxInFlight, defaults.MaxInFlight, "maximum number of proposals awaiting signatures")
	flags.Duration(flagKeygenTimeout, defaults.KeygenTimeout, "per round keygen timeout")
	flags.Duration(flagProposalTimeout, defaults.ProposalTimeout, "per proposal signing timeout")
	flags.Duration(flagPollInterval, defaults.PollInterval, "status polling interval")
	flags.Duration(flagReadyTimeout, defaults.ReadyTimeout, "cluster readiness timeout")
	flags.Duration(flagStopGrace, supervisor.DefaultStopGracePeriod, "grace period between SIGTERM and SIGKILL")
	flags.String(flagReport, "", "report path (default <tmp>/report.json)")
	flags.Uint(flagMetricsPort, 0, "port of the prometheus endpoint (0 disables it)")
	flags.String(flagPushgateway, "", "pushgateway address receiving the final metrics")
	flags.String(flagLogLevel, "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	flags.Bool(flagProgress, false, "show a progress bar of the rounds on stderr")

	return cmd
}

// initConfig binds the flags to the environment and the optional config file.
// Explicit flags take precedence over the environment, which takes
// precedence over the config file.
func initConfig(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return stress.NewConfigurationErrorf("could not read config file %s: %v", path, err)
		}
	}
	return nil
}

func loadConfig(v *viper.Viper) (orchestrator.Config, error) {
	rpcBasePort := v.GetUint(flagRPCBasePort)
	if rpcBasePort == 0 || rpcBasePort > 65535 {
		return orchestrator.Config{}, stress.NewConfigurationErrorf("--%s %d is not a valid port", flagRPCBasePort, rpcBasePort)
	}
	session := stress.SessionConfig{
		Threshold:       v.GetUint(flagThreshold),
		Participants:    v.GetUint(flagParticipants),
		ExtraNodes:      v.GetUint(flagExtraNodes),
		Bind:            v.GetString(flagBind),
		RPCBasePort:     uint16(rpcBasePort),
		Proposals:       v.GetUint(flagProposals),
		Rounds:          v.GetUint(flagRounds),
		FailFast:        v.GetBool(flagFailFast),
		RoundRetries:    v.GetUint(flagRoundRetries),
		MaxInFlight:     v.GetUint(flagMaxInFlight),
		KeygenTimeout:   v.GetDuration(flagKeygenTimeout),
		ProposalTimeout: v.GetDuration(flagProposalTimeout),
		PollInterval:    v.GetDuration(flagPollInterval),
		ReadyTimeout:    v.GetDuration(flagReadyTimeout),
	}
	if err := session.Validate(); err != nil {
		return orchestrator.Config{}, err
	}

	tmp := v.GetString(flagTmp)
	if tmp == "" {
		return orchestrator.Config{}, stress.NewConfigurationErrorf("--%s must not be empty", flagTmp)
	}
	tmp, err := filepath.Abs(tmp)
	if err != nil {
		return orchestrator.Config{}, stress.NewConfigurationErrorf("invalid scratch directory: %v", err)
	}

	binary := v.GetString(flagNodeBinary)
	if binary == "" {
		return orchestrator.Config{}, stress.NewConfigurationErrorf("--%s must not be empty", flagNodeBinary)
	}

	metricsPort := v.GetUint(flagMetricsPort)
	if metricsPort > 65535 {
		return orchestrator.Config{}, stress.NewConfigurationErrorf("--%s %d is not a valid port", flagMetricsPort, metricsPort)
	}

	nodeArgs := append([]string{}, supervisor.DefaultNodeArgs...)
	nodeArgs = append(nodeArgs, v.GetStringSlice(flagNodeArg)...)

	return orchestrator.Config{
		Session:     session,
		ScratchDir:  tmp,
		NodeBinary:  binary,
		NodeArgs:    nodeArgs,
		StopGrace:   v.GetDuration(flagStopGrace),
		ReportPath:  v.GetString(flagReport),
		MetricsPort: metricsPort,
		Pushgateway: v.GetString(flagPushgateway),
	}, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, stress.NewConfigurationErrorf("invalid log level %q", level)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

func run(ctx context.Context, log zerolog.Logger, config orchestrator.Config, opts ...orchestrator.Option) error {
	rep, err := orchestrator.New(log, config, opts...).Run(ctx)
	if err != nil {
		return err
	}
	if !rep.Passed() {
		return fmt.Errorf("%w: first failing round %d", errFailVerdict, rep.FirstFailedRound)
	}
	return nil
}

// ExitCode maps the result of the command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitPass
	case errors.Is(err, errFailVerdict):
		return ExitFailVerdict
	default:
		return ExitSetupError
	}
}

// Execute runs the command and exits the process. SIGINT and SIGTERM cancel
// the run; the cluster is torn down before the process exits.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(ExitCode(err))
}
