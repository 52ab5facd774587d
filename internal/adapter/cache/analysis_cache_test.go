package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/internal/domain"
)

func TestAnalysisCache_HitAndContentMiss(t *testing.T) {
	ctx := context.Background()
	c := NewAnalysisCache(8)
	var calls int32
	compute := func(context.Context) (domain.AnalysisResult, error) {
		atomic.AddInt32(&calls, 1)
		return domain.AnalysisResult{Summary: "ok"}, nil
	}

	r, hit, err := c.Do(ctx, "a.go", "x := 1", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", r.Summary)

	_, hit, err = c.Do(ctx, "a.go", "x := 1", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, hit, err = c.Do(ctx, "a.go", "x := 2", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnalysisCache_KeySeparatesDocuments(t *testing.T) {
	assert.NotEqual(t, Key("a.go", "same"), Key("b.go", "same"))
	assert.Equal(t, Key("a.go", "same"), Key("a.go", "same"))
}

func TestAnalysisCache_ConcurrentCallsShareCompute(t *testing.T) {
	ctx := context.Background()
	c := NewAnalysisCache(8)
	var calls int32
	release := make(chan struct{})
	compute := func(context.Context) (domain.AnalysisResult, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return domain.AnalysisResult{Summary: "shared"}, nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := c.Do(ctx, "doc", "text", compute)
			assert.NoError(t, err)
			results[i] = r.Summary
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, s := range results {
		assert.Equal(t, "shared", s)
	}
	_, ok := c.Get("doc", "text")
	assert.True(t, ok)
}

func TestAnalysisCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewAnalysisCache(8)
	boom := errors.New("boom")

	_, _, err := c.Do(ctx, "doc", "text", func(context.Context) (domain.AnalysisResult, error) {
		return domain.AnalysisResult{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Size())

	_, hit, err := c.Do(ctx, "doc", "text", func(context.Context) (domain.AnalysisResult, error) {
		return domain.AnalysisResult{Summary: "second"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestAnalysisCache_Bounded(t *testing.T) {
	c := NewAnalysisCache(2)
	c.Put("a", "1", domain.AnalysisResult{})
	c.Put("b", "1", domain.AnalysisResult{})
	c.Put("c", "1", domain.AnalysisResult{})

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a", "1")
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestAnalysisCache_Invalidate(t *testing.T) {
	c := NewAnalysisCache(8)
	c.Put("a", "1", domain.AnalysisResult{})
	c.Put("a", "2", domain.AnalysisResult{})
	c.Put("ab", "1", domain.AnalysisResult{})

	c.Invalidate("a")
	assert.Equal(t, 1, c.Size())
	_, ok := c.Get("ab", "1")
	assert.True(t, ok)
}

func (c *AnalysisCache) waitersFor(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fc, ok := c.calls[key]; ok {
		return fc.waiters
	}
	return 0
}

func TestAnalysisCache_JoinedCallerOutlivesCancelledFirst(t *testing.T) {
	c := NewAnalysisCache(8)
	key := Key("doc", "text")
	entered := make(chan context.Context, 1)
	release := make(chan struct{})
	var calls int32
	compute := func(ctx context.Context) (domain.AnalysisResult, error) {
		atomic.AddInt32(&calls, 1)
		entered <- ctx
		select {
		case <-release:
			return domain.AnalysisResult{Summary: "shared"}, nil
		case <-ctx.Done():
			return domain.AnalysisResult{}, &domain.InferenceError{Kind: domain.KindCancelled, Err: ctx.Err()}
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.Do(firstCtx, "doc", "text", compute)
		firstErr <- err
	}()
	shared := <-entered

	secondDone := make(chan error, 1)
	var second domain.AnalysisResult
	go func() {
		r, _, err := c.Do(context.Background(), "doc", "text", compute)
		second = r
		secondDone <- err
	}()
	require.Eventually(t, func() bool { return c.waitersFor(key) == 2 }, time.Second, 5*time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, domain.ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}
	assert.NoError(t, shared.Err(), "shared compute must keep running for the second caller")

	close(release)
	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, "shared", second.Summary)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, ok := c.Get("doc", "text")
	assert.True(t, ok)
}

func TestAnalysisCache_LastWaiterLeavingCancelsCompute(t *testing.T) {
	c := NewAnalysisCache(8)
	entered := make(chan context.Context, 1)
	stopped := make(chan struct{})
	compute := func(ctx context.Context) (domain.AnalysisResult, error) {
		entered <- ctx
		<-ctx.Done()
		close(stopped)
		return domain.AnalysisResult{}, &domain.InferenceError{Kind: domain.KindCancelled, Err: ctx.Err()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := c.Do(ctx, "doc", "text", compute)
		done <- err
	}()
	<-entered
	cancel()

	assert.ErrorIs(t, <-done, domain.ErrCancelled)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("compute kept running with no caller waiting")
	}
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, 0, c.waitersFor(Key("doc", "text")))
}
