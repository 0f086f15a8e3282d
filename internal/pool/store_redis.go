package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mohatt/github-api-utils/internal/credential"
)

// RedisStore keeps the serialized pool under a single key so several hosts
// can share one pool without a shared filesystem. Writes go through WATCH so
// a concurrent writer never produces a partial or lost update.
type RedisStore struct {
	client *redis.Client
	key    string
}

const redisUpdateAttempts = 16

// NewRedisStore returns a store backed by key on client.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "github-api-utils:pool"
	}
	return &RedisStore{client: client, key: key}
}

// Load reads and decodes the current pool value. A missing key is an empty
// pool.
func (s *RedisStore) Load(ctx context.Context) ([]*credential.Credential, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pool key: %w", err)
	}
	return decode(data)
}

// Update applies fn under optimistic concurrency control, retrying when a
// concurrent writer touches the key mid-transaction.
func (s *RedisStore) Update(ctx context.Context, fn func([]*credential.Credential) ([]*credential.Credential, error)) error {
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("read pool key: %w", err)
		}
		current, err := decode(data)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		out, err := encode(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisUpdateAttempts; i++ {
		err := s.client.Watch(ctx, txn, s.key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update pool key %s: too many concurrent writers", s.key)
}
