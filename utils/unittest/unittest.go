package unittest

import (
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireReturnsBefore requires that the given function returns before the
// duration expires.
func RequireReturnsBefore(t testing.TB, f func(), duration time.Duration, message string) {
	done := make(chan struct{})

	go func() {
		f()
		close(done)
	}()

	RequireClosedBefore(t, done, duration, "function did not return in time: "+message)
}

// RequireClosedBefore requires that the given channel is closed before the
// duration expires.
func RequireClosedBefore(t testing.TB, ch <-chan struct{}, duration time.Duration, message string) {
	select {
	case <-time.After(duration):
		require.Fail(t, "channel was not closed in time: "+message)
	case <-ch:
	}
}

// RunWithTempDir runs f with a fresh scratch directory that is removed
// afterwards.
func RunWithTempDir(t testing.TB, f func(string)) {
	dir, err := os.MkdirTemp("", "dkg-stress-testing-temp-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	f(dir)
}

// FreePort asks the kernel for a free TCP port on the loopback interface.
// The port is released before returning, so it may be taken by another process
// in the meantime. Tests using it should tolerate that.
func FreePort(t testing.TB) uint16 {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return uint16(port)
}

// FreePortRange returns the first of n consecutive ports that could all be
// bound on the loopback interface, for clusters that derive node ports from a
// base port.
func FreePortRange(t testing.TB, n int) uint16 {
	for attempt := 0; attempt < 50; attempt++ {
		base := FreePort(t)
		if int(base)+n > 65535 {
			continue
		}
		if bindable(base, n) {
			return base
		}
	}
	require.FailNow(t, "could not find a free port range", "%d consecutive ports", n)
	return 0
}

func bindable(base uint16, n int) bool {
	listeners := make([]net.Listener, 0, n)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(int(base)+i)))
		if err != nil {
			return false
		}
		listeners = append(listeners, l)
	}
	return true
}
