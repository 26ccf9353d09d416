// Package tokenstore persists the account token issued at registration so
// later sessions can authenticate without re-registering.
package tokenstore

import (
	"context"
	"fmt"

	"github.com/danmuck/minechat/internal/config"
)

// Store reads and writes one account token. Read reports ok=false when no
// token has been stored.
type Store interface {
	Read(ctx context.Context) (token string, ok bool, err error)
	Write(ctx context.Context, token string) error
}

// Open builds the backend selected by cfg.
func Open(cfg config.TokenStore) (Store, error) {
	switch cfg.Backend {
	case config.TokenBackendFile, "":
		return NewFileStore(cfg.Path), nil
	case config.TokenBackendRedis:
		return NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		}), nil
	default:
		return nil, fmt.Errorf("tokenstore: unknown backend %q", cfg.Backend)
	}
}

// Memory is an in-process Store.
type Memory struct {
	Token string
}

func (m *Memory) Read(context.Context) (string, bool, error) {
	return m.Token, m.Token != "", nil
}

func (m *Memory) Write(_ context.Context, token string) error {
	m.Token = token
	return nil
}
