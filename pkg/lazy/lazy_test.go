package lazy

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

func TestValue_ConcurrentFirstUseBuildsOnce(t *testing.T) {
	var calls int32
	release := make(chan struct{})

	v := New("pool", func(ctx context.Context) (*int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		n := 42
		return &n, nil
	})

	var wg sync.WaitGroup
	results := make([]*int, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := v.Get(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestValue_FailureIsNotCached(t *testing.T) {
	var calls int
	v := New("idp", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("issuer unreachable")
		}
		return "client", nil
	})

	_, err := v.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize idp")

	_, ok := v.Peek()
	assert.False(t, ok)

	got, err := v.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client", got)
	assert.Equal(t, 2, calls)

	got, err = v.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client", got)
	assert.Equal(t, 2, calls)
}

func TestOf(t *testing.T) {
	v := Of("static", 7)
	got, err := v.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}
