package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript bundles INCR and PEXPIRE into one server-side unit so
// two concurrent attempts on the same key can neither lose an
// increment nor observe a counter without its window.
var incrScript = redis.NewScript(`
    local n = redis.call('INCR', KEYS[1])
    if tonumber(ARGV[1]) > 0 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
    end
    return n
`)

// Redis implements Store on a go-redis client.
type Redis struct{ client *redis.Client }

// NewRedis wraps an already-connected client.
func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (r *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return v, true, nil
}

func (r *Redis) GetDel(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap(err)
	}
	return v, true, nil
}

func (r *Redis) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, r.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func wrap(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
