package factcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFact_PresentVersusAbsent(t *testing.T) {
	empty := Present("")
	v, ok := empty.Get()
	assert.True(t, ok)
	assert.Equal(t, "", v)

	absent := Absent[string]()
	_, ok = absent.Get()
	assert.False(t, ok)
	assert.Equal(t, "fallback", absent.OrElse("fallback"))
	assert.Equal(t, "", empty.OrElse("fallback"))
}

func TestGet_ComputesOnce(t *testing.T) {
	c := New[string]()
	var calls int32
	compute := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "/home/dev/project", nil
	}

	v1, err := c.Get("session-1", compute)
	require.NoError(t, err)
	v2, err := c.Get("session-1", compute)
	require.NoError(t, err)

	assert.Equal(t, "/home/dev/project", v1)
	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGet_FalsyValueIsCached(t *testing.T) {
	c := New[bool]()
	var calls int32
	compute := func() (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Get("session-1", compute)
		require.NoError(t, err)
		assert.False(t, v)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.True(t, c.Peek("session-1").IsPresent())
}

func TestInvalidate_RecomputesEvenForEmptyResult(t *testing.T) {
	c := New[string]()
	var calls int32
	compute := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", nil
	}

	_, err := c.Get("session-1", compute)
	require.NoError(t, err)
	c.Invalidate("session-1")
	assert.False(t, c.Peek("session-1").IsPresent())

	_, err = c.Get("session-1", compute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestInvalidateAll(t *testing.T) {
	c := New[int]()
	for i, key := range []string{"a", "b", "c"} {
		i := i
		_, err := c.Get(key, func() (int, error) { return i, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Len())

	c.InvalidateAll()
	assert.Zero(t, c.Len())

	v, err := c.Get("b", func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestGet_ErrorIsNotCached(t *testing.T) {
	c := New[string]()
	unavailable := errors.New("host service unavailable")

	_, err := c.Get("session-1", func() (string, error) { return "", unavailable })
	assert.ErrorIs(t, err, unavailable)
	assert.False(t, c.Peek("session-1").IsPresent())

	v, err := c.Get("session-1", func() (string, error) { return "/tmp", nil })
	require.NoError(t, err)
	assert.Equal(t, "/tmp", v)
}

func TestGet_ConcurrentCallersShareComputation(t *testing.T) {
	c := New[string]()
	var calls int32
	release := make(chan struct{})
	compute := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "/srv/app", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get("session-1", compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Let every goroutine reach the shared flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, "/srv/app", v)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestInvalidate_DuringComputationDropsStaleResult(t *testing.T) {
	c := New[string]()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, _ := c.Get("session-1", func() (string, error) {
			close(started)
			<-release
			return "/old", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate("session-1")
	close(release)
	assert.Equal(t, "/old", <-done, "the caller still receives its own result")

	assert.False(t, c.Peek("session-1").IsPresent(), "stale result must not be cached")

	v, err := c.Get("session-1", func() (string, error) { return "/new", nil })
	require.NoError(t, err)
	assert.Equal(t, "/new", v)
}
