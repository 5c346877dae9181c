// Package redis implements the key-value port on Redis, for deployments
// where multiple workers share breaker state and the response cache.
package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/havenlabs/haven/internal/core/ports"
)

// KV is a Redis-backed KeyValueStore. Compare-and-set uses a WATCH/MULTI
// transaction so concurrent workers never lose breaker updates.
type KV struct {
	client *redis.Client
}

var _ ports.KeyValueStore = (*KV)(nil)

// New connects to Redis and verifies the connection.
func New(addr, password string, db int) (*KV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &KV{client: client}, nil
}

// NewFromURL connects using a redis:// URL.
func NewFromURL(rawURL string) (*KV, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return &KV{client: client}, nil
}

func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

var errMismatch = errors.New("cas mismatch")

func (s *KV) CompareAndSet(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error) {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			cur = nil
		case err != nil:
			return err
		}

		if old == nil {
			if cur != nil {
				return errMismatch
			}
		} else if !bytes.Equal(cur, old) {
			return errMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errMismatch), errors.Is(err, redis.TxFailedErr):
		// Value didn't match, or another writer raced us. Either way the
		// caller should reload and retry.
		return false, nil
	default:
		return false, fmt.Errorf("redis cas %s: %w", key, err)
	}
}

func (s *KV) Close() error {
	return s.client.Close()
}
