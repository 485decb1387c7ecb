package readiness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastGate(attempts int, timeout time.Duration) Gate {
	return Gate{Name: "test", Interval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxAttempts: attempts, Timeout: timeout}
}

func TestGate_ReadyAfterRetries(t *testing.T) {
	var calls int32
	err := fastGate(10, time.Second).Wait(context.Background(), func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGate_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	probe := errors.New("still down")
	err := fastGate(4, time.Second).Wait(context.Background(), func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return probe
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, probe)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestGate_Timeout(t *testing.T) {
	g := Gate{Name: "slow", Interval: 20 * time.Millisecond, MaxInterval: 20 * time.Millisecond, MaxAttempts: 1000, Timeout: 50 * time.Millisecond}
	start := time.Now()
	err := g.Wait(context.Background(), func(context.Context) error { return errors.New("down") })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLoader_SingleInitialisation(t *testing.T) {
	var loads int32
	release := make(chan struct{})
	l := NewLoader(func(context.Context) (string, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return "client", nil
	})
	assert.Equal(t, Unloaded, l.State())

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Get(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return l.State() == Loading }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.Equal(t, Loaded, l.State())
	for _, v := range results {
		assert.Equal(t, "client", v)
	}
}

func TestLoader_FailureAllowsRetry(t *testing.T) {
	var loads int32
	l := NewLoader(func(context.Context) (int, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			return 0, errors.New("boom")
		}
		return 42, nil
	})

	_, err := l.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unloaded, l.State())

	v, err := l.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, Loaded, l.State())
}

func TestLoader_WaiterContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	l := NewLoader(func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Loading, l.State())
}
