package promptctx

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/ghimmohmoh/ghimmohmoh/internal/observability"
)

type Loader interface {
	Build(ctx context.Context, req Request) (string, error)
}

type CacheOptions struct {
	// Size bounds the number of cached documents; 0 means unbounded.
	Size int
	// TTL expires entries after they are stored; 0 means they never expire.
	TTL time.Duration
	// BuildTimeout bounds one shared build. Builds outlive the callers that
	// wait on them; 0 reuses the deadline of the caller that started it.
	BuildTimeout time.Duration
}

// Cache memoizes context documents by Request. Concurrent misses for one
// request share a single build, and failed builds are not stored. A caller
// that gives up only stops waiting; the build continues for the others.
type Cache struct {
	loader       Loader
	entries      *expirable.LRU[Request, string]
	group        singleflight.Group
	mu           sync.Mutex
	generation   atomic.Uint64
	buildTimeout time.Duration
}

func NewCache(loader Loader, opts CacheOptions) *Cache {
	size := opts.Size
	if size < 0 {
		size = 0
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		loader:       loader,
		entries:      expirable.NewLRU[Request, string](size, nil, ttl),
		buildTimeout: opts.BuildTimeout,
	}
}

func (c *Cache) Get(ctx context.Context, req Request) (string, error) {
	if document, ok := c.entries.Get(req); ok {
		observability.ObserveContextCache(observability.CacheHit)
		return document, nil
	}

	// Builds started before an invalidation run under an older generation
	// key, so later callers never join them.
	generation := c.generation.Load()
	results := c.group.DoChan(flightKey(generation, req), func() (any, error) {
		buildCtx, cancel := c.buildContext(ctx)
		defer cancel()
		document, err := c.loader.Build(buildCtx, req)
		if err != nil {
			return "", err
		}
		c.store(generation, req, document)
		return document, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-results:
		if result.Shared {
			observability.ObserveContextCache(observability.CacheShared)
		} else {
			observability.ObserveContextCache(observability.CacheMiss)
		}
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	}
}

func (c *Cache) buildContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.buildTimeout > 0 {
		return context.WithTimeout(detached, c.buildTimeout)
	}
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithCancel(detached)
}

// store keeps document unless an invalidation happened since generation.
func (c *Cache) store(generation uint64, req Request, document string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() == generation {
		c.entries.Add(req, document)
	}
}

// Invalidate drops every cached document.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.entries.Purge()
}

// Forget drops the document cached for req. Builds already running are
// detached as with Invalidate.
func (c *Cache) Forget(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.entries.Remove(req)
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

func flightKey(generation uint64, req Request) string {
	return strconv.FormatUint(generation, 10) + "\x00" + req.Table.String() + "\x00" + req.Description + "\x00" + req.MetadataQuery
}
