package stress_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

func TestDefaultSessionConfig_Valid(t *testing.T) {
	cfg := stress.DefaultSessionConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint(3), cfg.TotalNodes())
}

func TestSessionConfig_Validate(t *testing.T) {
	cases := map[string]func(*stress.SessionConfig){
		"zero threshold":         func(c *stress.SessionConfig) { c.Threshold = 0 },
		"threshold above n":      func(c *stress.SessionConfig) { c.Threshold = 4; c.Participants = 3 },
		"zero rounds":            func(c *stress.SessionConfig) { c.Rounds = 0 },
		"zero max in-flight":     func(c *stress.SessionConfig) { c.MaxInFlight = 0 },
		"zero keygen timeout":    func(c *stress.SessionConfig) { c.KeygenTimeout = 0 },
		"negative poll interval": func(c *stress.SessionConfig) { c.PollInterval = -time.Second },
		"malformed bind":         func(c *stress.SessionConfig) { c.Bind = "localhost" },
		"non numeric bind port":  func(c *stress.SessionConfig) { c.Bind = "127.0.0.1:abc" },
		"zero bind port":         func(c *stress.SessionConfig) { c.Bind = "127.0.0.1:0" },
		"port range overflow":    func(c *stress.SessionConfig) { c.Bind = "127.0.0.1:65534"; c.Participants = 3 },
		"overlapping ranges":     func(c *stress.SessionConfig) { c.Bind = "127.0.0.1:9945" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := stress.DefaultSessionConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, stress.IsConfigurationError(err), "unexpected error type: %v", err)
		})
	}

	t.Run("threshold equal to n", func(t *testing.T) {
		cfg := stress.DefaultSessionConfig()
		cfg.Threshold = 3
		cfg.Participants = 3
		require.NoError(t, cfg.Validate())
	})

	t.Run("zero proposals", func(t *testing.T) {
		cfg := stress.DefaultSessionConfig()
		cfg.Proposals = 0
		require.NoError(t, cfg.Validate())
	})
}

func TestSessionConfig_BindHostPort(t *testing.T) {
	cfg := stress.DefaultSessionConfig()
	cfg.Bind = ":40000"
	host, port, err := cfg.BindHostPort()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, uint16(40000), port)
}
