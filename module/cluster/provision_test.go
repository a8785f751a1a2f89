package cluster_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/cluster"
)

func TestProvision_Topology(t *testing.T) {
	cfg := stress.DefaultSessionConfig()
	cfg.Threshold = 3
	cfg.Participants = 5
	cfg.ExtraNodes = 2

	specs, err := cluster.Provision(cfg, "/tmp/stress")
	require.NoError(t, err)
	require.Len(t, specs, 7)

	labels := []string{"alice", "bob", "charlie", "dave", "eve", "ferdie", "node-6"}
	for i, spec := range specs {
		assert.Equal(t, i, spec.Index)
		assert.Equal(t, labels[i], spec.Label)
		assert.Equal(t, uint16(30333+i), spec.P2PPort)
		assert.Equal(t, uint16(9944+i), spec.RPCPort)
		assert.Equal(t, "127.0.0.1", spec.BindHost)
		assert.Equal(t, filepath.Join("/tmp/stress", labels[i]+".log"), spec.LogPath)
		assert.Equal(t, filepath.Join("/tmp/stress", labels[i]), spec.BasePath)
		assert.Equal(t, fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", 30333+i), spec.ListenAddr)

		if i < 5 {
			assert.Equal(t, stress.RoleAuthority, spec.Role)
		} else {
			assert.Equal(t, stress.RoleValidator, spec.Role)
		}

		if i == 0 {
			assert.True(t, spec.IsSeed())
			assert.Empty(t, spec.Bootnode)
		} else {
			expected := "/ip4/127.0.0.1/tcp/30333/p2p/" + specs[0].PeerID
			assert.Equal(t, expected, spec.Bootnode)
		}
	}

	assert.Len(t, stress.Authorities(specs), 5)
}

func TestProvision_Deterministic(t *testing.T) {
	cfg := stress.DefaultSessionConfig()

	first, err := cluster.Provision(cfg, "scratch")
	require.NoError(t, err)
	second, err := cluster.Provision(cfg, "scratch")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestNodeIdentity_SeedKey checks that node 0 uses the well-known development
// node key 0x..01 and the peer ID the node binary derives from it.
func TestNodeIdentity_SeedKey(t *testing.T) {
	key, id, err := cluster.NodeIdentity(0)
	require.NoError(t, err)
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000001", key)
	assert.Equal(t, "12D3KooWEyoppNCUx8Yx66oV9fJnriXwCcXwDDUA2kj6vnc6iDEp", id.String())

	key1, id1, err := cluster.NodeIdentity(1)
	require.NoError(t, err)
	assert.Equal(t, "0000000000000000000000000000000000000000000000000000000000000002", key1)
	assert.NotEqual(t, id, id1)
}

func TestBootnodeAddress(t *testing.T) {
	_, id, err := cluster.NodeIdentity(0)
	require.NoError(t, err)

	cases := map[string]string{
		"127.0.0.1": "/ip4/127.0.0.1/tcp/30333/p2p/" + id.String(),
		"0.0.0.0":   "/ip4/127.0.0.1/tcp/30333/p2p/" + id.String(),
		"::1":       "/ip6/::1/tcp/30333/p2p/" + id.String(),
		"localhost": "/dns4/localhost/tcp/30333/p2p/" + id.String(),
	}
	for host, expected := range cases {
		addr, err := cluster.BootnodeAddress(host, 30333, id)
		require.NoError(t, err, host)
		assert.Equal(t, expected, addr.String(), host)
	}
}

func TestListenAddress(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1": "/ip4/127.0.0.1/tcp/30333",
		"0.0.0.0":   "/ip4/0.0.0.0/tcp/30333",
		"10.1.2.3":  "/ip4/10.1.2.3/tcp/30333",
		"::1":       "/ip6/::1/tcp/30333",
		"localhost": "/dns4/localhost/tcp/30333",
	}
	for host, expected := range cases {
		addr, err := cluster.ListenAddress(host, 30333)
		require.NoError(t, err, host)
		assert.Equal(t, expected, addr.String(), host)
	}
}

func TestProvision_BindHost(t *testing.T) {
	cfg := stress.DefaultSessionConfig()
	cfg.Bind = "10.1.2.3:30333"

	specs, err := cluster.Provision(cfg, "/tmp/stress")
	require.NoError(t, err)
	for i, spec := range specs {
		assert.Equal(t, "10.1.2.3", spec.BindHost)
		assert.Equal(t, fmt.Sprintf("/ip4/10.1.2.3/tcp/%d", 30333+i), spec.ListenAddr)
		assert.Equal(t, fmt.Sprintf("http://10.1.2.3:%d", 9944+i), spec.RPCURL())
		assert.False(t, spec.LoopbackHost())
	}
}

func TestRequiredPorts(t *testing.T) {
	cfg := stress.DefaultSessionConfig()
	specs, err := cluster.Provision(cfg, "scratch")
	require.NoError(t, err)

	assert.Equal(t, []uint16{30333, 9944, 30334, 9945, 30335, 9946}, cluster.RequiredPorts(specs))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "alice", cluster.Label(0))
	assert.Equal(t, "ferdie", cluster.Label(5))
	assert.Equal(t, "node-12", cluster.Label(12))
	assert.True(t, cluster.IsWellKnownLabel("dave"))
	assert.False(t, cluster.IsWellKnownLabel("node-6"))
}
