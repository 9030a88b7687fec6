package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	"gate-service/internal/utils"
)

// consumeScript deletes the key only when it holds a terminal decision, so a
// concurrent writer can never lose a decision between the read and the
// delete.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v == 'allowed' or v == 'denied' then
	redis.call('DEL', KEYS[1])
end
return v
`)

// RedisStore keeps one string key per plate under a common prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(plate string) string {
	return s.prefix + utils.NormalizePlate(plate)
}

func (s *RedisStore) MarkPending(ctx context.Context, plate string) error {
	if err := s.client.Set(ctx, s.key(plate), string(StatusPending), 0).Err(); err != nil {
		return fmt.Errorf("failed to mark %s pending: %w", plate, err)
	}
	return nil
}

func (s *RedisStore) Decide(ctx context.Context, plate string, status Status) (bool, error) {
	ok, err := s.client.SetXX(ctx, s.key(plate), string(status), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store decision for %s: %w", plate, err)
	}
	return ok, nil
}

func (s *RedisStore) Consume(ctx context.Context, plate string) (Status, error) {
	v, err := consumeScript.Run(ctx, s.client, []string{s.key(plate)}).Text()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume decision for %s: %w", plate, err)
	}
	return Status(v), nil
}

func (s *RedisStore) Remove(ctx context.Context, plate string) error {
	if err := s.client.Del(ctx, s.key(plate)).Err(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", plate, err)
	}
	return nil
}

func (s *RedisStore) Pending(ctx context.Context) ([]string, error) {
	var plates []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		v, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		if Status(v) == StatusPending {
			plates = append(plates, strings.TrimPrefix(key, s.prefix))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan approvals: %w", err)
	}
	sort.Strings(plates)
	return plates, nil
}
