package mocknode

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/cluster"
	"github.com/onflow/flow-dkg-stress/module/nodeclient"
	"github.com/onflow/flow-dkg-stress/utils/unittest"
)

// fakeClock is advanced manually by the tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestNode(faults Faults) (*Node, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	n := New(unittest.Logger(), Config{
		Label:       "alice",
		KeygenDelay: time.Second,
		SignDelay:   time.Second,
		Faults:      faults,
	})
	n.now = clock.Now
	return n, clock
}

func TestSessionLifecycle(t *testing.T) {
	n, clock := newTestNode(Faults{})
	id := stress.SessionID(1, 0)

	assert.Equal(t, nodeclient.PhasePending, n.SessionStatus(id).Phase)
	require.True(t, n.StartSession(id, 2, 3))
	assert.Equal(t, nodeclient.PhaseRunning, n.SessionStatus(id).Phase)

	// proposals are rejected until the key exists
	_, err := n.SubmitProposal(id, stress.NewProposal(1, 0, 0).Payload)
	assert.Error(t, err)

	clock.Advance(time.Second)
	status := n.SessionStatus(id)
	assert.Equal(t, nodeclient.PhaseComplete, status.Phase)
	assert.Equal(t, id, status.SessionID)

	// restarting a known session is a no-op
	require.True(t, n.StartSession(id, 2, 3))
	assert.Equal(t, nodeclient.PhaseComplete, n.SessionStatus(id).Phase)
}

func TestStartSession_InvalidParameters(t *testing.T) {
	n, _ := newTestNode(Faults{})
	assert.False(t, n.StartSession(1, 0, 3))
	assert.False(t, n.StartSession(1, 4, 3))
}

func TestKeygenFaults(t *testing.T) {
	n, clock := newTestNode(Faults{
		FailKeygenRounds:  []uint{2},
		StallKeygenRounds: []uint{3},
		FaultAttempts:     1,
	})

	for round := uint(1); round <= 3; round++ {
		require.True(t, n.StartSession(stress.SessionID(round, 0), 2, 3))
		require.True(t, n.StartSession(stress.SessionID(round, 1), 2, 3))
	}
	clock.Advance(time.Hour)

	assert.Equal(t, nodeclient.PhaseComplete, n.SessionStatus(stress.SessionID(1, 0)).Phase)

	failed := n.SessionStatus(stress.SessionID(2, 0))
	assert.Equal(t, nodeclient.PhaseFailed, failed.Phase)
	assert.NotEmpty(t, failed.Error)

	assert.Equal(t, nodeclient.PhaseRunning, n.SessionStatus(stress.SessionID(3, 0)).Phase)

	// only the first attempt is faulty
	assert.Equal(t, nodeclient.PhaseComplete, n.SessionStatus(stress.SessionID(2, 1)).Phase)
	assert.Equal(t, nodeclient.PhaseComplete, n.SessionStatus(stress.SessionID(3, 1)).Phase)
}

func TestProposalSigning(t *testing.T) {
	n, clock := newTestNode(Faults{FailProposalsEvery: 3})
	session := stress.SessionID(1, 0)
	require.True(t, n.StartSession(session, 2, 3))
	clock.Advance(time.Second)

	proposals := make([]stress.Proposal, 3)
	for i := range proposals {
		proposals[i] = stress.NewProposal(1, 0, uint(i))
		id, err := n.SubmitProposal(session, proposals[i].Payload)
		require.NoError(t, err)
		assert.Equal(t, proposals[i].ID, id)
		assert.Equal(t, nodeclient.StatusPending, n.ProposalStatus(id).Status)
	}

	clock.Advance(time.Second)
	first := n.ProposalStatus(proposals[0].ID)
	assert.Equal(t, nodeclient.StatusSigned, first.Status)
	assert.Equal(t, signature(session, proposals[0].Payload), first.Signature)
	assert.Equal(t, nodeclient.StatusSigned, n.ProposalStatus(proposals[1].ID).Status)

	third := n.ProposalStatus(proposals[2].ID)
	assert.Equal(t, nodeclient.StatusFailed, third.Status)
	assert.NotEmpty(t, third.Error)

	assert.Equal(t, nodeclient.StatusUnknown, n.ProposalStatus("0x00").Status)
}

func TestPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seed := New(unittest.Logger(), Config{Label: "alice"})
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(l.Addr().(*net.TCPAddr).Port)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, seed.ServeP2P(ctx, l))
	}()

	_, id, err := cluster.NodeIdentity(0)
	require.NoError(t, err)
	bootnode, err := cluster.BootnodeAddress("127.0.0.1", port, id)
	require.NoError(t, err)

	bob := New(unittest.Logger(), Config{Label: "bob"})
	require.NoError(t, bob.ConnectBootnode(ctx, bootnode.String()))

	assert.Eventually(t, func() bool {
		return seed.Health(false).Peers == 1 && bob.Health(true).Peers == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, bob.Health(true).ShouldHavePeers)

	cancel()
	unittest.RequireClosedBefore(t, done, 5*time.Second, "p2p listener did not shut down")
}

func TestDialable(t *testing.T) {
	_, id, err := cluster.NodeIdentity(0)
	require.NoError(t, err)

	addr, err := cluster.BootnodeAddress("localhost", 30333, id)
	require.NoError(t, err)
	target, err := dialable(addr)
	require.NoError(t, err)
	assert.Equal(t, "localhost:30333", target)

	addr, err = cluster.BootnodeAddress("127.0.0.1", 30334, id)
	require.NoError(t, err)
	target, err = dialable(addr)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:30334", target)
}

func TestHealth_StaticPeers(t *testing.T) {
	n := New(unittest.Logger(), Config{Label: "alice", StaticPeers: 2})
	assert.Equal(t, uint(2), n.Health(true).Peers)
}
