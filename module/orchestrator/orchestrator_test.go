package orchestrator_test

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/cluster"
	"github.com/onflow/flow-dkg-stress/module/driver"
	"github.com/onflow/flow-dkg-stress/module/mocknode"
	"github.com/onflow/flow-dkg-stress/module/orchestrator"
	"github.com/onflow/flow-dkg-stress/module/portguard"
	"github.com/onflow/flow-dkg-stress/module/report"
	"github.com/onflow/flow-dkg-stress/module/supervisor"
	utilsio "github.com/onflow/flow-dkg-stress/utils/io"
	"github.com/onflow/flow-dkg-stress/utils/unittest"
)

// mockNodeEnv makes the test binary run a mock node instead of the tests.
const mockNodeEnv = "DKG_STRESS_RUN_MOCKNODE"

func TestMain(m *testing.M) {
	if os.Getenv(mockNodeEnv) != "" {
		os.Exit(runMockNode())
	}
	os.Exit(m.Run())
}

func runMockNode() int {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	opts, err := mocknode.ParseArgs(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("invalid arguments")
		return 2
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	if err := mocknode.Run(ctx, log, opts); err != nil {
		log.Error().Err(err).Msg("mock node failed")
		return 1
	}
	return 0
}

func testConfig(t *testing.T, dir string, session stress.SessionConfig, nodeArgs ...string) orchestrator.Config {
	total := int(session.TotalNodes())
	p2p := unittest.FreePortRange(t, total)
	rpc := unittest.FreePortRange(t, total)
	for rpc <= p2p+uint16(total) && p2p <= rpc+uint16(total) {
		rpc = unittest.FreePortRange(t, total)
	}
	session.Bind = fmt.Sprintf("127.0.0.1:%d", p2p)
	session.RPCBasePort = rpc

	return orchestrator.Config{
		Session:          session,
		ScratchDir:       dir,
		NodeBinary:       os.Args[0],
		NodeArgs:         append([]string{"--keygen-delay", "20ms", "--sign-delay", "10ms"}, nodeArgs...),
		NodeEnv:          []string{mockNodeEnv + "=1"},
		StopGrace:        2 * time.Second,
		RPCCallTimeout:   time.Second,
		PortsFreeTimeout: 5 * time.Second,
	}
}

func sessionConfig(threshold, participants, rounds, proposals uint) stress.SessionConfig {
	cfg := stress.DefaultSessionConfig()
	cfg.Threshold = threshold
	cfg.Participants = participants
	cfg.Rounds = rounds
	cfg.Proposals = proposals
	cfg.PollInterval = 10 * time.Millisecond
	cfg.KeygenTimeout = 2 * time.Second
	cfg.ProposalTimeout = 2 * time.Second
	cfg.ReadyTimeout = 10 * time.Second
	return cfg
}

func run(t *testing.T, o *orchestrator.Orchestrator, ctx context.Context) (*stress.RunReport, error) {
	var (
		rep *stress.RunReport
		err error
	)
	unittest.RequireReturnsBefore(t, func() {
		rep, err = o.Run(ctx)
	}, 2*time.Minute, "run did not finish")
	return rep, err
}

// assertReleased checks that no node is left running and the scratch
// directory can be locked again.
func assertReleased(t *testing.T, cfg orchestrator.Config) {
	specs, err := cluster.Provision(cfg.Session, cfg.ScratchDir)
	require.NoError(t, err)
	guard := portguard.New(unittest.Logger())
	assert.NoError(t, guard.Check(context.Background(), cluster.RequiredPorts(specs)))

	lock := utilsio.NewFileLock(cfg.ScratchDir)
	require.NoError(t, lock.Lock())
	require.NoError(t, lock.Unlock())
}

// TestRun_Pass runs t=2, n=3, r=10, p=1 plus one validator against mock nodes.
func TestRun_Pass(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		session := sessionConfig(2, 3, 10, 1)
		session.ExtraNodes = 1
		cfg := testConfig(t, dir, session)

		var summary bytes.Buffer
		o := orchestrator.New(unittest.Logger(), cfg, orchestrator.WithSummaryOutput(&summary))
		rep, err := run(t, o, context.Background())
		require.NoError(t, err)

		assert.True(t, rep.Passed())
		assert.Equal(t, o.RunID(), rep.RunID)
		assert.Len(t, rep.Rounds, 10)
		assert.Equal(t, 10, rep.Counts.ProposalsSigned)
		assert.Equal(t, uint(1), rep.Config.ExtraNodes)
		assert.Contains(t, summary.String(), "PASS")

		saved, err := report.Load(filepath.Join(dir, "report.json"))
		require.NoError(t, err)
		assert.Equal(t, rep.RunID, saved.RunID)
		assert.Equal(t, stress.VerdictPass, saved.Verdict)

		// one log file per process, n + k in total
		for _, label := range []string{"alice", "bob", "charlie", "dave"} {
			out, err := os.ReadFile(filepath.Join(dir, label+".log"))
			require.NoError(t, err)
			assert.Contains(t, string(out), "mock node started")
		}
		assert.NoFileExists(t, filepath.Join(dir, "eve.log"))

		assertReleased(t, cfg)
	})
}

// TestRun_KeygenTimeout runs t=3, n=5, r=10, p=2 where the keygen of round 4
// stalls on every node.
func TestRun_KeygenTimeout(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		session := sessionConfig(3, 5, 10, 2)
		session.KeygenTimeout = 500 * time.Millisecond
		cfg := testConfig(t, dir, session, "--stall-keygen-rounds", "4")

		o := orchestrator.New(unittest.Logger(), cfg, orchestrator.WithSummaryOutput(&bytes.Buffer{}))
		rep, err := run(t, o, context.Background())
		require.NoError(t, err)

		assert.False(t, rep.Passed())
		assert.Equal(t, uint(4), rep.FirstFailedRound)
		require.Len(t, rep.Rounds, 10)
		assert.Equal(t, stress.KeygenTimedOut, rep.Rounds[3].Keygen)
		assert.Empty(t, rep.Rounds[3].Proposals)
		assert.Equal(t, 9, rep.Counts.Passed)
		assert.Equal(t, 1, rep.Counts.TimedOut)

		assertReleased(t, cfg)
	})
}

func TestRun_FailFast(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		session := sessionConfig(2, 3, 5, 1)
		session.FailFast = true
		cfg := testConfig(t, dir, session, "--fail-keygen-rounds", "2")

		o := orchestrator.New(unittest.Logger(), cfg, orchestrator.WithSummaryOutput(&bytes.Buffer{}))
		rep, err := run(t, o, context.Background())
		require.NoError(t, err)

		assert.Equal(t, uint(2), rep.FirstFailedRound)
		assert.Equal(t, stress.KeygenFailed, rep.Rounds[1].Keygen)
		for _, r := range rep.Rounds[2:] {
			assert.Equal(t, stress.KeygenSkipped, r.Keygen)
		}
		assert.Equal(t, 3, rep.Counts.Skipped)
	})
}

// cancelOnRound cancels the run when the given round starts.
type cancelOnRound struct {
	driver.NoopObserver
	round  uint
	cancel context.CancelFunc
}

func (c *cancelOnRound) OnTransition(t driver.Transition) {
	if t.Round == c.round && t.To == driver.StateAwaitingKeygen {
		c.cancel()
	}
}

func TestRun_Interrupted(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		session := sessionConfig(2, 3, 5, 1)
		cfg := testConfig(t, dir, session)

		o := orchestrator.New(unittest.Logger(), cfg,
			orchestrator.WithSummaryOutput(&bytes.Buffer{}),
			orchestrator.WithObserver(&cancelOnRound{round: 2, cancel: cancel}))
		rep, err := run(t, o, ctx)
		require.NoError(t, err)

		assert.False(t, rep.Passed())
		require.Len(t, rep.Rounds, 5)
		assert.True(t, rep.Rounds[0].Succeeded())
		assert.Equal(t, stress.KeygenInterrupted, rep.Rounds[1].Keygen)
		assert.Equal(t, 1, rep.Counts.Interrupted)
		assert.Equal(t, 3, rep.Counts.Skipped)

		assertReleased(t, cfg)
	})
}

func TestRun_PortInUse(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		cfg := testConfig(t, dir, sessionConfig(2, 3, 1, 1))

		// occupy the rpc port of bob
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Session.RPCBasePort+1))
		require.NoError(t, err)
		defer l.Close()

		o := orchestrator.New(unittest.Logger(), cfg)
		rep, err := run(t, o, context.Background())
		require.Error(t, err)
		assert.Nil(t, rep)
		assert.True(t, portguard.IsPortInUseError(err))

		var inUse portguard.PortInUseError
		require.ErrorAs(t, err, &inUse)
		assert.Equal(t, cfg.Session.RPCBasePort+1, inUse.Port)

		// nothing was started
		assert.NoFileExists(t, filepath.Join(dir, "alice.log"))
		assert.NoFileExists(t, filepath.Join(dir, utilsio.LockFileName))
	})
}

func TestRun_SpawnFailure(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		cfg := testConfig(t, dir, sessionConfig(2, 3, 1, 1))
		cfg.NodeBinary = filepath.Join(dir, "missing-node-binary")

		o := orchestrator.New(unittest.Logger(), cfg)
		_, err := run(t, o, context.Background())
		require.Error(t, err)
		assert.True(t, supervisor.IsNodeSpawnError(err))

		assertReleased(t, cfg)
	})
}

func TestRun_ScratchDirLocked(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		cfg := testConfig(t, dir, sessionConfig(2, 3, 1, 1))

		lock := utilsio.NewFileLock(dir)
		require.NoError(t, lock.Lock())
		defer lock.Unlock()

		o := orchestrator.New(unittest.Logger(), cfg)
		_, err := run(t, o, context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, utilsio.ErrAlreadyLocked)
		assert.NoFileExists(t, filepath.Join(dir, "alice.log"))
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	unittest.RunWithTempDir(t, func(dir string) {
		session := sessionConfig(4, 3, 1, 1)
		o := orchestrator.New(unittest.Logger(), orchestrator.Config{Session: session, ScratchDir: dir})

		_, err := o.Run(context.Background())
		require.Error(t, err)
		assert.True(t, stress.IsConfigurationError(err))
	})
}
