package probe

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-settle/v1/wait"
)

// ErrKeyNotFound is returned by RedisGet while the key does not exist.
var ErrKeyNotFound = errors.New("settle: redis key not found")

// RedisGet returns a probe reading the string value of key. A missing key
// is reported as ErrKeyNotFound so that a wait ending on it says why.
func RedisGet(client redis.UniversalClient, key string) wait.Probe[string] {
	return func(ctx context.Context) (string, error) {
		v, err := client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return v, err
	}
}

// RedisExists returns a probe reporting whether key exists.
func RedisExists(client redis.UniversalClient, key string) wait.Probe[bool] {
	return func(ctx context.Context) (bool, error) {
		n, err := client.Exists(ctx, key).Result()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}
