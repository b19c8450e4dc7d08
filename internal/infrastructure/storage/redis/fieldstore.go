package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
)

// FieldStore keeps one Redis hash per instrument key. Writes pipeline
// HSET + EXPIRE so a merge lands as a unit and refreshes the TTL.
type FieldStore struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *FieldStore {
	return &FieldStore{rdb: rdb}
}

func (s *FieldStore) MergeFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	kv := make(map[string]any, len(fields))
	for k, v := range fields {
		kv[k] = v
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, kv)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *FieldStore) Read(ctx context.Context, key string) (map[string]string, bool, error) {
	m, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if len(m) == 0 {
		// HGETALL on a missing (or expired) key returns an empty map.
		return nil, false, nil
	}
	return m, true, nil
}

func (s *FieldStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

var _ port.FieldStore = (*FieldStore)(nil)
