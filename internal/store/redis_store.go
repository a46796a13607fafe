/**
 * @description
 * Redis implementation of the Store interface. Atomicity of RunAtomic is
 * provided by Redis server-side Lua scripting: a script runs as one
 * indivisible unit, which is what the claim transaction relies on.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseLockScript deletes the lock key only when the stored token matches,
// so a late holder whose lease expired cannot release someone else's lock.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store on top of a Redis client.
type RedisStore struct {
	client redis.UniversalClient

	// scripts caches redis.Script handles per script body so repeated
	// RunAtomic calls use EVALSHA after the first load.
	scripts sync.Map
}

// NewRedisStore creates a new RedisStore using the given client. The client
// is a process-wide handle: initialized once at startup, shared by all
// requests, closed on shutdown.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// PutWithExpiry stores a serialized value under key with the given TTL.
func (s *RedisStore) PutWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrKeyNotFound if the key is
// absent or has expired.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}

// RunAtomic executes the given Lua script against the named keys as one
// indivisible unit and returns the raw script reply.
func (s *RedisStore) RunAtomic(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	handle, ok := s.scripts.Load(script)
	if !ok {
		handle, _ = s.scripts.LoadOrStore(script, redis.NewScript(script))
	}
	result, err := handle.(*redis.Script).Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, nil
}

// AcquireLock takes the lock with SET NX and a lease TTL. A false return
// means the lock is currently held by an in-flight attempt.
func (s *RedisStore) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// ReleaseLock releases the lock if token still matches the holder. A
// non-matching token is not an error; the lease will expire on its own.
func (s *RedisStore) ReleaseLock(ctx context.Context, key, token string) error {
	if err := releaseLockScript.Run(ctx, s.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
