// Package app wires the message cache and the mail API into the read
// path the rest of the program consumes.
package app

import (
	"context"
	"fmt"

	"github.com/evanrusso/gmailvault/internal/domain"
	"github.com/evanrusso/gmailvault/internal/store"
)

// Fetcher retrieves a single message from the remote mailbox.
type Fetcher interface {
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
}

// MessageCache is the cache surface the reader uses.
type MessageCache interface {
	Get(ctx context.Context, id string) (*domain.Message, error)
	Put(ctx context.Context, msg *domain.Message) error
	Query(ctx context.Context, opts store.QueryOptions) ([]domain.Message, error)
}

// MessageReader serves messages from the cache, falling through to the
// mail API on a miss and writing the result back.
type MessageReader struct {
	cache   MessageCache
	fetcher Fetcher
}

func NewMessageReader(cache MessageCache, fetcher Fetcher) *MessageReader {
	return &MessageReader{cache: cache, fetcher: fetcher}
}

// Get returns a message by id. Cache misses reach out to the mail API;
// a fetched message is cached before it is returned.
func (r *MessageReader) Get(ctx context.Context, id string) (*domain.Message, error) {
	msg, err := r.cache.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		return msg, nil
	}
	if r.fetcher == nil {
		return nil, nil
	}

	msg, err = r.fetcher.GetMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	if err := r.cache.Put(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to cache message %s: %w", id, err)
	}
	return msg, nil
}

// List returns cached messages matching the query. Listing never goes
// to the network.
func (r *MessageReader) List(ctx context.Context, opts store.QueryOptions) ([]domain.Message, error) {
	return r.cache.Query(ctx, opts)
}
