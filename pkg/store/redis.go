// Package store persists the last live spot quote in Redis so a restarted
// process can serve it as stale instead of falling straight to the backup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jewelry-catalog/pkg/oracle"
)

// DefaultKey is the Redis key holding the last quote.
const DefaultKey = "gold:spot:last"

// RedisQuoteStore keeps a single quote under one key.
type RedisQuoteStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisQuoteStore returns a store writing to key. A ttl of zero keeps the
// quote until it is overwritten.
func NewRedisQuoteStore(client *redis.Client, key string, ttl time.Duration) *RedisQuoteStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQuoteStore{client: client, key: key, ttl: ttl}
}

// SaveQuote overwrites the stored quote.
func (s *RedisQuoteStore) SaveQuote(ctx context.Context, q *oracle.Quote) error {
	if q == nil {
		return fmt.Errorf("nil quote")
	}
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set quote: %w", err)
	}
	return nil
}

// LoadQuote returns the stored quote, or nil, nil if there is none.
func (s *RedisQuoteStore) LoadQuote(ctx context.Context) (*oracle.Quote, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	var q oracle.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote: %w", err)
	}
	return &q, nil
}
