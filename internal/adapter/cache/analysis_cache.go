package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"codepilot/internal/domain"
)

const defaultMaxEntries = 256

// Entry is a cached analysis and the time it was produced.
type Entry struct {
	Result    domain.AnalysisResult
	Timestamp time.Time
}

// AnalysisCache maps (document, content hash) to the analysis of that exact
// text. An edit changes the hash, so stale entries are never returned; they
// age out of the LRU instead of being evicted explicitly.
type AnalysisCache struct {
	entries *lru.Cache[string, Entry]
	flight  singleflight.Group
	now     func() time.Time

	mu    sync.Mutex
	calls map[string]*flightCall
}

// flightCall is the context shared by every caller waiting on one key. It is
// cancelled once the last of them has gone.
type flightCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewAnalysisCache(maxEntries int) *AnalysisCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	entries, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &AnalysisCache{
		entries: entries,
		now:     time.Now,
		calls:   make(map[string]*flightCall),
	}
}

// Key is the cache key for docID holding text.
func Key(docID, text string) string {
	hash := sha256.Sum256([]byte(text))
	return docID + "@" + hex.EncodeToString(hash[:])
}

func (c *AnalysisCache) Get(docID, text string) (Entry, bool) {
	return c.entries.Get(Key(docID, text))
}

func (c *AnalysisCache) Put(docID, text string, result domain.AnalysisResult) {
	c.entries.Add(Key(docID, text), Entry{Result: result, Timestamp: c.now()})
}

// Do returns the cached analysis for (docID, text) or runs compute to
// produce it. Concurrent callers with the same key share one compute call,
// which keeps running while at least one of them is still waiting. Each
// caller returns as soon as its own ctx is done. The entry is written before
// any caller returns. A failed compute is not cached.
func (c *AnalysisCache) Do(ctx context.Context, docID, text string, compute func(context.Context) (domain.AnalysisResult, error)) (domain.AnalysisResult, bool, error) {
	key := Key(docID, text)
	if entry, ok := c.entries.Get(key); ok {
		return entry.Result, true, nil
	}

	// A joined call can still end cancelled when its last waiter left just
	// before this caller arrived; run it again for a caller that is live.
	for attempt := 0; ; attempt++ {
		result, err := c.join(ctx, key, compute)
		if err == nil {
			return result, false, nil
		}
		if ctx.Err() == nil && attempt < 2 && isCancellation(err) {
			continue
		}
		return domain.AnalysisResult{}, false, err
	}
}

func (c *AnalysisCache) join(ctx context.Context, key string, compute func(context.Context) (domain.AnalysisResult, error)) (domain.AnalysisResult, error) {
	c.mu.Lock()
	fc, ok := c.calls[key]
	if !ok {
		shared, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fc = &flightCall{ctx: shared, cancel: cancel}
		c.calls[key] = fc
	}
	fc.waiters++
	c.mu.Unlock()
	defer c.leave(key, fc)

	ch := c.flight.DoChan(key, func() (any, error) {
		if entry, ok := c.entries.Get(key); ok {
			return entry.Result, nil
		}
		result, err := compute(fc.ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, Entry{Result: result, Timestamp: c.now()})
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.AnalysisResult{}, res.Err
		}
		return res.Val.(domain.AnalysisResult), nil
	case <-ctx.Done():
		return domain.AnalysisResult{}, &domain.InferenceError{Kind: domain.KindCancelled, Err: ctx.Err()}
	}
}

func (c *AnalysisCache) leave(key string, fc *flightCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fc.waiters--
	if fc.waiters > 0 {
		return
	}
	fc.cancel()
	if c.calls[key] == fc {
		delete(c.calls, key)
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled)
}

// Invalidate drops every entry for docID regardless of content.
func (c *AnalysisCache) Invalidate(docID string) {
	prefix := docID + "@"
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
		}
	}
}

func (c *AnalysisCache) Purge() {
	c.entries.Purge()
}

func (c *AnalysisCache) Size() int {
	return c.entries.Len()
}
