package portguard_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/onflow/flow-dkg-stress/module/portguard"
	"github.com/onflow/flow-dkg-stress/utils/unittest"
)

func listener(port uint32, status string, pid int32) psnet.ConnectionStat {
	return psnet.ConnectionStat{
		Laddr:  psnet.Addr{IP: "127.0.0.1", Port: port},
		Status: status,
		Pid:    pid,
	}
}

func staticConnections(conns ...psnet.ConnectionStat) portguard.ConnectionsFunc {
	return func(context.Context, string) ([]psnet.ConnectionStat, error) {
		return conns, nil
	}
}

func TestCheck_AllFree(t *testing.T) {
	guard := portguard.NewWithConnections(unittest.Logger(), staticConnections(
		listener(8080, "LISTEN", 10),
		listener(30333, "ESTABLISHED", 11),
	))

	require.NoError(t, guard.Check(context.Background(), []uint16{30333, 30334, 9944}))
}

func TestCheck_PortInUse(t *testing.T) {
	guard := portguard.NewWithConnections(unittest.Logger(), staticConnections(
		listener(9945, "LISTEN", 42),
		listener(30334, "LISTEN", 0),
	))

	err := guard.Check(context.Background(), []uint16{30333, 30334, 9944, 9945})
	require.Error(t, err)
	require.True(t, portguard.IsPortInUseError(err))

	var inUse portguard.PortInUseError
	require.True(t, errors.As(err, &inUse))
	// the first offending port in the order given is reported
	assert.Equal(t, uint16(30334), inUse.Port)
	assert.Contains(t, err.Error(), "30334")
}

func TestCheck_ListerError(t *testing.T) {
	sentinel := errors.New("proc not mounted")
	guard := portguard.NewWithConnections(unittest.Logger(), func(context.Context, string) ([]psnet.ConnectionStat, error) {
		return nil, sentinel
	})

	err := guard.Check(context.Background(), []uint16{30333})
	require.ErrorIs(t, err, sentinel)
	assert.False(t, portguard.IsPortInUseError(err))
}

func TestWaitFree_ReleasedWhilePolling(t *testing.T) {
	calls := atomic.NewInt32(0)
	guard := portguard.NewWithConnections(unittest.Logger(), func(context.Context, string) ([]psnet.ConnectionStat, error) {
		if calls.Inc() < 3 {
			return []psnet.ConnectionStat{listener(30333, "LISTEN", 7)}, nil
		}
		return nil, nil
	})

	require.NoError(t, guard.WaitFree(context.Background(), []uint16{30333}, 5*time.Second))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWaitFree_Timeout(t *testing.T) {
	guard := portguard.NewWithConnections(unittest.Logger(), staticConnections(listener(30333, "LISTEN", 7)))

	err := guard.WaitFree(context.Background(), []uint16{30333}, 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, portguard.IsPortInUseError(err))
}

// TestCheck_RealSocket binds a real listener and checks that the operating
// system backed guard sees it.
func TestCheck_RealSocket(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(l.Addr().(*net.TCPAddr).Port)

	guard := portguard.New(unittest.Logger())
	err = guard.Check(context.Background(), []uint16{port})
	require.True(t, portguard.IsPortInUseError(err), "expected port %d to be reported in use, got %v", port, err)

	require.NoError(t, l.Close())
	require.NoError(t, guard.WaitFree(context.Background(), []uint16{port}, 5*time.Second))
}
