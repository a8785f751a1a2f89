package teardown_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onflow/flow-dkg-stress/module/teardown"
	"github.com/onflow/flow-dkg-stress/utils/unittest"
)

func TestTeardown_ReverseOrder(t *testing.T) {
	c := teardown.New(unittest.Logger())

	var order []string
	for _, name := range []string{"unlock", "stop nodes", "close clients"} {
		name := name
		c.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, c.Teardown(context.Background()))
	assert.Equal(t, []string{"close clients", "stop nodes", "unlock"}, order)
}

func TestTeardown_Idempotent(t *testing.T) {
	c := teardown.New(unittest.Logger())

	calls := 0
	c.Register("stop nodes", func(context.Context) error {
		calls++
		return errors.New("pid 42 was not reaped")
	})

	first := c.Teardown(context.Background())
	require.Error(t, first)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, first, c.Teardown(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestTeardown_CollectsFailures(t *testing.T) {
	c := teardown.New(unittest.Logger())

	errStop := errors.New("could not stop node bob")
	errPorts := errors.New("port 30334 still bound")
	ran := false

	c.Register("release lock", func(context.Context) error {
		ran = true
		return nil
	})
	c.Register("wait for ports", func(context.Context) error { return errPorts })
	c.Register("stop nodes", func(context.Context) error { return errStop })

	err := c.Teardown(context.Background())
	require.Error(t, err)
	assert.True(t, teardown.IsTeardownError(err))
	assert.True(t, ran, "a failing step must not prevent later ones")

	var tdErr teardown.TeardownError
	require.ErrorAs(t, err, &tdErr)
	require.Len(t, tdErr.Errors(), 2)
	assert.ErrorIs(t, tdErr.Errors()[0], errStop)
	assert.ErrorIs(t, tdErr.Errors()[1], errPorts)
	assert.ErrorIs(t, err, errStop)
	assert.Contains(t, err.Error(), "wait for ports")
}

func TestTeardown_Empty(t *testing.T) {
	c := teardown.New(unittest.Logger())
	assert.NoError(t, c.Teardown(context.Background()))
}

func TestRegister_AfterTeardown(t *testing.T) {
	c := teardown.New(unittest.Logger())
	require.NoError(t, c.Teardown(context.Background()))

	ran := false
	c.Register("late", func(context.Context) error {
		ran = true
		return nil
	})
	assert.True(t, ran)
	assert.NoError(t, c.Teardown(context.Background()))
}

func TestTeardown_PassesContext(t *testing.T) {
	c := teardown.New(unittest.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.Register("stop nodes", func(ctx context.Context) error {
		return ctx.Err()
	})
	err := c.Teardown(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
