package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/minechat/internal/logging"
	"github.com/go-redis/redis/v8"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisStore keeps the token under a single key, so several client hosts can
// share one account.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(opts RedisOptions) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		key: opts.Key,
	}
}

func (s *RedisStore) Read(ctx context.Context) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tokenstore: redis get %s: %w", s.key, err)
	}
	token := strings.TrimSpace(val)
	return token, token != "", nil
}

func (s *RedisStore) Write(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key, strings.TrimSpace(token), 0).Err(); err != nil {
		return fmt.Errorf("tokenstore: redis set %s: %w", s.key, err)
	}
	logging.Debugf("tokenstore.RedisStore.Write key=%q", s.key)
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
