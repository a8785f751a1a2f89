package stress

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	DefaultThreshold       = 2
	DefaultParticipants    = 3
	DefaultBind            = "127.0.0.1:30333"
	DefaultRPCBasePort     = 9944
	DefaultRounds          = 10
	DefaultProposals       = 1
	DefaultMaxInFlight     = 16
	DefaultKeygenTimeout   = 2 * time.Minute
	DefaultProposalTimeout = time.Minute
	DefaultPollInterval    = time.Second
	DefaultReadyTimeout    = 2 * time.Minute
)

// SessionConfig holds the parameters of a stress run. It is validated once at
// startup and treated as read-only afterwards.
type SessionConfig struct {
	// Threshold is the DKG signing threshold t.
	Threshold uint
	// Participants is the number n of DKG participants.
	Participants uint
	// ExtraNodes is the number of non-participating validator nodes.
	ExtraNodes uint

	// Bind is the base host:port. Node i binds its p2p listener on port+i.
	Bind string
	// RPCBasePort is the RPC port of node 0. Node i uses RPCBasePort+i.
	RPCBasePort uint16

	// Proposals is the number p of proposals submitted per round.
	Proposals uint
	// Rounds is the number r of sequential rounds.
	Rounds uint

	// FailFast stops the run at the first failing round. Remaining rounds are
	// recorded as skipped.
	FailFast bool
	// RoundRetries is how many more times a failed round is re-run with a
	// fresh session before its result is recorded.
	RoundRetries uint
	// MaxInFlight bounds the number of proposals awaiting signatures at once.
	MaxInFlight uint

	KeygenTimeout   time.Duration
	ProposalTimeout time.Duration
	PollInterval    time.Duration
	ReadyTimeout    time.Duration
}

// DefaultSessionConfig returns the configuration used by CI.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Threshold:       DefaultThreshold,
		Participants:    DefaultParticipants,
		Bind:            DefaultBind,
		RPCBasePort:     DefaultRPCBasePort,
		Proposals:       DefaultProposals,
		Rounds:          DefaultRounds,
		MaxInFlight:     DefaultMaxInFlight,
		KeygenTimeout:   DefaultKeygenTimeout,
		ProposalTimeout: DefaultProposalTimeout,
		PollInterval:    DefaultPollInterval,
		ReadyTimeout:    DefaultReadyTimeout,
	}
}

// TotalNodes returns the number of processes the cluster consists of.
func (c SessionConfig) TotalNodes() uint {
	return c.Participants + c.ExtraNodes
}

// BindHostPort splits Bind into host and base port.
func (c SessionConfig) BindHostPort() (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(c.Bind)
	if err != nil {
		return "", 0, fmt.Errorf("invalid bind address %q: %w", c.Bind, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid bind port %q: %w", portStr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host, uint16(port), nil
}

// Validate checks the invariants t >= 1, n >= t, r >= 1, positive timeouts and
// that the p2p and RPC port ranges fit and do not overlap. All violations are
// reported as ConfigurationError.
func (c SessionConfig) Validate() error {
	if c.Threshold < 1 {
		return NewConfigurationErrorf("threshold must be at least 1, got %d", c.Threshold)
	}
	if c.Participants < c.Threshold {
		return NewConfigurationErrorf("participants (%d) must not be less than threshold (%d)", c.Participants, c.Threshold)
	}
	if c.Rounds < 1 {
		return NewConfigurationErrorf("number of rounds must be at least 1, got %d", c.Rounds)
	}
	if c.MaxInFlight < 1 {
		return NewConfigurationErrorf("max in-flight proposals must be at least 1, got %d", c.MaxInFlight)
	}
	if c.KeygenTimeout <= 0 || c.ProposalTimeout <= 0 || c.ReadyTimeout <= 0 {
		return NewConfigurationErrorf("timeouts must be positive (keygen=%s, proposal=%s, ready=%s)",
			c.KeygenTimeout, c.ProposalTimeout, c.ReadyTimeout)
	}
	if c.PollInterval <= 0 {
		return NewConfigurationErrorf("poll interval must be positive, got %s", c.PollInterval)
	}

	_, p2pBase, err := c.BindHostPort()
	if err != nil {
		return NewConfigurationError(err)
	}
	if p2pBase == 0 || c.RPCBasePort == 0 {
		return NewConfigurationErrorf("ports must be non-zero (p2p=%d, rpc=%d)", p2pBase, c.RPCBasePort)
	}

	total := uint64(c.TotalNodes())
	p2pLast := uint64(p2pBase) + total - 1
	rpcLast := uint64(c.RPCBasePort) + total - 1
	if p2pLast > 65535 || rpcLast > 65535 {
		return NewConfigurationErrorf("port range exceeds 65535 for %d nodes (p2p base %d, rpc base %d)",
			total, p2pBase, c.RPCBasePort)
	}
	if uint64(p2pBase) <= rpcLast && uint64(c.RPCBasePort) <= p2pLast {
		return NewConfigurationErrorf("p2p ports [%d, %d] overlap rpc ports [%d, %d]",
			p2pBase, p2pLast, c.RPCBasePort, rpcLast)
	}

	return nil
}
