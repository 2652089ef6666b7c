package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores all cursors as fields of one hash. HSET on a single
// field never touches other scopes' entries.
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(client *redis.Client, hashKey string) *RedisBackend {
	return &RedisBackend{client: client, key: hashKey}
}

func (r *RedisBackend) Load(ctx context.Context, key Key) (Position, bool, error) {
	raw, err := r.client.HGet(ctx, r.key, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("hget: %w", err)
	}
	var pos Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return Position{}, false, fmt.Errorf("decode cursor: %w", err)
	}
	return pos, true, nil
}

func (r *RedisBackend) Save(ctx context.Context, key Key, pos Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, key.String(), raw).Err(); err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, key Key) error {
	if err := r.client.HDel(ctx, r.key, key.String()).Err(); err != nil {
		return fmt.Errorf("hdel: %w", err)
	}
	return nil
}

func (r *RedisBackend) DeleteAll(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
