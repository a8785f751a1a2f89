// Package mocknodetest serves simulated nodes over HTTP for tests of the
// components that talk to a cluster.
package mocknodetest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/cluster"
	"github.com/onflow/flow-dkg-stress/module/mocknode"
	"github.com/onflow/flow-dkg-stress/module/nodeclient"
	"github.com/onflow/flow-dkg-stress/utils/unittest"
)

// NewCluster serves one simulated authority per config over HTTP and returns
// a cluster client for them. The servers are closed when the test ends.
// Simulated nodes report themselves as connected to every other node.
func NewCluster(t testing.TB, configs []mocknode.Config) *nodeclient.Cluster {
	clients := make([]*nodeclient.Client, 0, len(configs))
	for i, config := range configs {
		label := cluster.Label(i)
		if config.Label == "" {
			config.Label = label
		}
		config.StaticPeers = uint(len(configs) - 1)
		node := mocknode.New(unittest.Logger(), config)

		server, err := mocknode.NewRPCServer(node, len(configs) > 1)
		require.NoError(t, err)
		srv := httptest.NewServer(server)
		t.Cleanup(srv.Close)

		spec := stress.NodeSpec{Index: i, Label: label, Role: stress.RoleAuthority}
		client, err := nodeclient.DialURL(context.Background(), spec, srv.URL, time.Second)
		require.NoError(t, err)
		clients = append(clients, client)
	}

	c := nodeclient.NewCluster(unittest.Logger(), clients)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Configs returns n configs with the given delays and faults.
func Configs(n int, keygenDelay, signDelay time.Duration, faults mocknode.Faults) []mocknode.Config {
	configs := make([]mocknode.Config, n)
	for i := range configs {
		configs[i] = mocknode.Config{
			KeygenDelay: keygenDelay,
			SignDelay:   signDelay,
			Faults:      faults,
		}
	}
	return configs
}
