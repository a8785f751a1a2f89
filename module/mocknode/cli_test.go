package mocknode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_SupervisorCommandLine(t *testing.T) {
	opts, err := ParseArgs([]string{
		"--base-path", "/tmp/bob",
		"--chain", "local",
		"--validator",
		"--bob",
		"--port", "30334",
		"--rpc-port", "9945",
		"--node-key", "0000000000000000000000000000000000000000000000000000000000000002",
		"--listen-addr", "/ip4/10.1.2.3/tcp/30334",
		"--rpc-external",
		"--bootnodes", "/ip4/127.0.0.1/tcp/30333/p2p/12D3KooWEyoppNCUx8Yx66oV9fJnriXwCcXwDDUA2kj6vnc6iDEp",
		"--rpc-cors", "all",
		"--rpc-methods", "unsafe",
		"-lerror",
		"--keygen-delay", "20ms",
		"--stall-keygen-rounds", "4,7",
		"--fail-proposals-every", "3",
	})
	require.NoError(t, err)

	assert.Equal(t, "bob", opts.Name)
	assert.True(t, opts.Validator)
	assert.Equal(t, uint16(30334), opts.P2PPort)
	assert.Equal(t, uint16(9945), opts.RPCPort)
	assert.Equal(t, "/tmp/bob", opts.BasePath)
	require.Len(t, opts.Bootnodes, 1)

	p2pAddr, err := opts.P2PListenAddress()
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3:30334", p2pAddr)
	assert.Equal(t, "0.0.0.0:9945", opts.RPCListenAddress())
	assert.Equal(t, 20*time.Millisecond, opts.KeygenDelay)
	assert.Equal(t, DefaultSignDelay, opts.SignDelay)
	assert.Equal(t, []uint{4, 7}, opts.Faults.StallKeygenRounds)
	assert.Equal(t, uint(3), opts.Faults.FailProposalsEvery)
}

func TestParseArgs_Name(t *testing.T) {
	opts, err := ParseArgs([]string{"--name", "node-6", "--port", "30339"})
	require.NoError(t, err)
	assert.Equal(t, "node-6", opts.Name)
	assert.False(t, opts.Validator)
	assert.Empty(t, opts.Bootnodes)

	opts, err = ParseArgs([]string{"--port", "30339"})
	require.NoError(t, err)
	assert.Equal(t, "node-30339", opts.Name)
}

func TestParseArgs_DefaultListenAddresses(t *testing.T) {
	opts, err := ParseArgs([]string{"--port", "30339", "--rpc-port", "9950"})
	require.NoError(t, err)

	p2pAddr, err := opts.P2PListenAddress()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:30339", p2pAddr)
	assert.Equal(t, "127.0.0.1:9950", opts.RPCListenAddress())
}

func TestParseArgs_InvalidListenAddr(t *testing.T) {
	opts, err := ParseArgs([]string{"--listen-addr", "not-a-multiaddr"})
	require.NoError(t, err)

	_, err = opts.P2PListenAddress()
	assert.Error(t, err)
}
