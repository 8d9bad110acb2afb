package calc

import (
	"runtime"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/metrics"
)

// Cache hands out one value per key for as long as callers hold it.
//
// Entries are weak: once no caller references a value the garbage
// collector may reclaim it, and the next Get builds a fresh one. Concurrent
// misses on the same key share a single build.
type Cache[T any] struct {
	name    string
	entries sync.Map // string -> weak.Pointer[T]
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	logger *zap.Logger
}

// WithCacheLogger logs each build at debug level.
func WithCacheLogger(l *zap.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = l
	}
}

// NewCache creates an empty cache. name labels its metrics; m may be nil.
func NewCache[T any](name string, m *metrics.Metrics, opts ...CacheOption) *Cache[T] {
	o := cacheOptions{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{name: name, metrics: m, logger: o.logger}
}

// Get returns the live value for key, calling build on a miss.
func (c *Cache[T]) Get(key string, build func() (*T, error)) (*T, error) {
	if v, ok := c.load(key); ok {
		c.metrics.CacheLookup(c.name, true)
		return v, nil
	}
	c.metrics.CacheLookup(c.name, false)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.load(key); ok {
			return v, nil
		}
		start := time.Now()
		v, err := build()
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		elapsed := time.Since(start)
		c.metrics.CacheBuild(c.name, elapsed)
		c.logger.Debug("built cached value",
			zap.String("cache", c.name),
			zap.String(logging.FieldKey, key),
			zap.Duration("elapsed", elapsed))
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// Len returns the number of live entries.
func (c *Cache[T]) Len() int {
	n := 0
	c.entries.Range(func(_, p any) bool {
		if p.(weak.Pointer[T]).Value() != nil {
			n++
		}
		return true
	})
	return n
}

// Purge drops every entry. Values already handed out stay usable.
func (c *Cache[T]) Purge() {
	c.entries.Clear()
}

func (c *Cache[T]) load(key string) (*T, bool) {
	p, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	v := p.(weak.Pointer[T]).Value()
	return v, v != nil
}

func (c *Cache[T]) store(key string, v *T) {
	wp := weak.Make(v)
	c.entries.Store(key, wp)
	runtime.AddCleanup(v, func(key string) {
		c.entries.CompareAndDelete(key, wp)
	}, key)
}
