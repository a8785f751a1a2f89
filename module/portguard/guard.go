// Package portguard verifies that the ports a cluster needs are free before
// any node process is spawned.
package portguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	psnet "github.com/shirou/gopsutil/v3/net"
)

const (
	statusListen = "LISTEN"

	waitFreeInterval = 100 * time.Millisecond
)

// PortInUseError indicates that a required port is already bound by a
// listening socket. This is treated as operator error: nothing is retried.
type PortInUseError struct {
	Port uint16
	// PID of the owning process, 0 if unknown.
	PID int32
}

func (e PortInUseError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("port %d is already in use by pid %d", e.Port, e.PID)
	}
	return fmt.Sprintf("port %d is already in use", e.Port)
}

// IsPortInUseError returns whether err is a PortInUseError
func IsPortInUseError(err error) bool {
	var e PortInUseError
	return errors.As(err, &e)
}

// ConnectionsFunc lists the sockets of the given kind ("tcp", "udp", ...).
type ConnectionsFunc func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)

// Guard queries the operating system for listening sockets. It holds no state
// between calls.
type Guard struct {
	log         zerolog.Logger
	connections ConnectionsFunc
}

// New returns a Guard backed by the operating system's socket table.
func New(log zerolog.Logger) *Guard {
	return NewWithConnections(log, psnet.ConnectionsWithContext)
}

// NewWithConnections returns a Guard backed by the given socket lister.
func NewWithConnections(log zerolog.Logger, connections ConnectionsFunc) *Guard {
	return &Guard{
		log:         log.With().Str("component", "port_guard").Logger(),
		connections: connections,
	}
}

// Check returns a PortInUseError for the first of the given ports, in the
// order given, that is bound by a listening socket. It returns nil if all of
// them are free.
func (g *Guard) Check(ctx context.Context, ports []uint16) error {
	listening, err := g.listening(ctx)
	if err != nil {
		return err
	}

	for _, port := range ports {
		if pid, ok := listening[port]; ok {
			return PortInUseError{Port: port, PID: pid}
		}
	}

	g.log.Debug().Int("ports", len(ports)).Msg("all required ports are free")
	return nil
}

// WaitFree polls until all given ports are free or the timeout elapses. On
// timeout the PortInUseError of the last check is returned.
func (g *Guard) WaitFree(ctx context.Context, ports []uint16, timeout time.Duration) error {
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(waitFreeInterval))

	var lastErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		lastErr = g.Check(ctx, ports)
		if IsPortInUseError(lastErr) {
			return retry.RetryableError(lastErr)
		}
		return lastErr
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// listening maps every port with a listening socket to the owning PID.
func (g *Guard) listening(ctx context.Context) (map[uint16]int32, error) {
	conns, err := g.connections(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("could not list sockets: %w", err)
	}

	listening := make(map[uint16]int32)
	for _, c := range conns {
		if c.Status != statusListen {
			continue
		}
		listening[uint16(c.Laddr.Port)] = c.Pid
	}
	return listening, nil
}
