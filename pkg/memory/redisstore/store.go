// Package redisstore is the Redis memory backend. Each record is one string key holding the
// serialized message list; expiry is enforced by the server through the key TTL.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
)

// DefaultKeyPrefix namespaces memory keys.
const DefaultKeyPrefix = "agentrun:memory:"

// Config holds the Redis connection settings
type Config struct {
	Addr      string `json:"addr" mapstructure:"addr"`
	Password  string `json:"password" mapstructure:"password"`
	DB        int    `json:"db" mapstructure:"db"`
	KeyPrefix string `json:"key_prefix" mapstructure:"key_prefix"`
}

// Store implements memory.Store on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// New connects to Redis.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewWithClient(client, cfg.KeyPrefix)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. The client is not closed by Close.
func NewWithClient(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(memoryID string) string { return s.prefix + memoryID }

// Name returns "redis".
func (s *Store) Name() string { return "redis" }

// Get returns the record for memoryID, or nil when the key does not exist.
func (s *Store) Get(ctx context.Context, memoryID string) (*memory.Record, error) {
	data, err := s.client.Get(ctx, s.key(memoryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	messages, err := memory.DecodeMessages(data)
	if err != nil {
		return nil, err
	}
	return &memory.Record{MemoryID: memoryID, Messages: messages}, nil
}

// Put writes the record. A positive ttl becomes the key TTL in whole seconds, rounded up.
func (s *Store) Put(ctx context.Context, memoryID string, messages []chat.Message, ttl time.Duration) error {
	payload, err := memory.EncodeMessages(messages)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(memoryID), payload, seconds(ttl)).Err(); err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

// Delete removes the key.
func (s *Store) Delete(ctx context.Context, memoryID string) error {
	if err := s.client.Del(ctx, s.key(memoryID)).Err(); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// Close closes the client if the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// seconds rounds a positive ttl up to whole seconds. Zero keeps the key forever.
func seconds(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ((ttl + time.Second - 1) / time.Second) * time.Second
}
