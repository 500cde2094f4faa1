// Package cache maintains a bounded local store of processed messages.
// When the cache grows past its capacity the lowest-priority, least
// recently accessed entries are evicted in batches.
package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/store"
)

const (
	// DefaultMaxEntries bounds the number of cached messages.
	DefaultMaxEntries = 100
	// DefaultEvictBatch is how many entries an eviction pass removes.
	DefaultEvictBatch = 20
)

// Cache wraps the message tables of a Store with capacity enforcement.
type Cache struct {
	store      store.Store
	maxEntries int
	evictBatch int

	mu sync.Mutex // serializes put+evict cycles
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries overrides the cache capacity.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithEvictBatch overrides the eviction batch size.
func WithEvictBatch(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.evictBatch = n
		}
	}
}

func New(s store.Store, opts ...Option) *Cache {
	c := &Cache{
		store:      s,
		maxEntries: DefaultMaxEntries,
		evictBatch: DefaultEvictBatch,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put stores a message and evicts old entries if the cache is over
// capacity afterwards.
func (c *Cache) Put(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.UpsertMessage(ctx, msg); err != nil {
		return err
	}
	return c.enforceLimitLocked(ctx)
}

// Get returns a cached message and refreshes its access time, or
// (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := c.store.GetMessage(ctx, id)
	if err != nil || msg == nil {
		return nil, err
	}
	if err := c.store.TouchMessage(ctx, id, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to record cache access: %w", err)
	}
	return msg, nil
}

// Delete removes a message from the cache. Deleting a missing message
// is not an error.
func (c *Cache) Delete(ctx context.Context, id string) error {
	return c.store.DeleteMessage(ctx, id)
}

// SetLabels replaces a cached message's labels, recomputing its
// retention priority. Missing messages are ignored.
func (c *Cache) SetLabels(ctx context.Context, id string, labels []string) error {
	return c.store.SetMessageLabels(ctx, id, labels)
}

// Query returns cached messages matching the given filters.
func (c *Cache) Query(ctx context.Context, opts store.QueryOptions) ([]domain.Message, error) {
	return c.store.QueryMessages(ctx, opts)
}

// Len reports the number of cached messages.
func (c *Cache) Len(ctx context.Context) (int, error) {
	return c.store.CountMessages(ctx)
}

func (c *Cache) enforceLimitLocked(ctx context.Context) error {
	count, err := c.store.CountMessages(ctx)
	if err != nil {
		return err
	}
	if count <= c.maxEntries {
		return nil
	}

	over := count - c.maxEntries
	batch := c.evictBatch
	if over > batch {
		batch = over
	}
	ids, err := c.store.EvictionCandidates(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to select eviction candidates: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := c.store.DeleteMessages(ctx, ids); err != nil {
		return fmt.Errorf("failed to evict cached messages: %w", err)
	}
	log.Printf("[cache] evicted %d messages (%d cached, cap %d)", len(ids), count, c.maxEntries)
	return nil
}
