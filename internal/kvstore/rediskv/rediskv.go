// Package rediskv implements kv.Store on Redis for deployments where the
// playground state must be shared across hosts. Configuration can be
// loaded from the environment via envdecode.
package rediskv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/crim50n/falai-paw/pkg/kv"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// Addr like "localhost:6379". ENV: PAW_REDIS_ADDR
	Addr string `env:"PAW_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: PAW_REDIS_PREFIX
	KeyPrefix string `env:"PAW_REDIS_PREFIX,default=paw:kv:"`
	// Password, empty when the server runs unauthenticated. ENV: PAW_REDIS_PASSWORD
	Password string `env:"PAW_REDIS_PASSWORD,default="`
	// DB index. ENV: PAW_REDIS_DB
	DB int `env:"PAW_REDIS_DB,default=0"`
}

// Store implements kv.Store on a Redis client.
type Store struct {
	client *redis.Client
	prefix string
}

var _ kv.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("rediskv: ping %s: %w", addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "paw:kv:"
	}
	return &Store{client: client, prefix: prefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediskv: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes value under key. A server rejecting the write for memory
// pressure surfaces as kv.ErrQuotaExceeded so callers can run their
// cleanup passes.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	err := s.client.Set(ctx, s.redisKey(key), value, 0).Err()
	if err == nil {
		return nil
	}
	// "OOM command not allowed when used memory > 'maxmemory'".
	if strings.Contains(err.Error(), "OOM") {
		return fmt.Errorf("rediskv: set %s: %w", key, kv.ErrQuotaExceeded)
	}
	return fmt.Errorf("rediskv: set %s: %w", key, err)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("rediskv: delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored key under the configured prefix, with the
// prefix stripped, in lexical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("rediskv: keys: %w", err)
		}
		for _, key := range batch {
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}
