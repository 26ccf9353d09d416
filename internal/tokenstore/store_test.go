package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/danmuck/minechat/internal/config"
	"github.com/danmuck/minechat/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "minechat.token")
	store := NewFileStore(path)

	_, ok, err := store.Read(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, "tok-1\n"))
	token, ok, err := store.Read(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Write(ctx, "tok-2"))
	token, _, err = store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestFileStoreReadsFirstLine(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "minechat.token")
	require.NoError(t, os.WriteFile(path, []byte("tok-1\nleftover\n"), 0o600))

	token, ok, err := NewFileStore(path).Read(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
}

func TestFileStoreEmptyFileIsAbsent(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "minechat.token")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, ok, err := NewFileStore(path).Read(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	testlog.Start(t)
	mr := miniredis.RunT(t)
	ctx := context.Background()

	store := NewRedisStore(RedisOptions{Addr: mr.Addr(), Key: "minechat:token"})
	defer store.Close()

	_, ok, err := store.Read(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Write(ctx, "tok-1"))
	token, ok, err := store.Read(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)

	raw, err := mr.Get("minechat:token")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", raw)
}

func TestOpenSelectsBackend(t *testing.T) {
	testlog.Start(t)
	cfg := config.Default().TokenStore
	cfg.Path = filepath.Join(t.TempDir(), "minechat.token")

	store, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	cfg.Backend = config.TokenBackendRedis
	store, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)
	_ = store.(*RedisStore).Close()

	cfg.Backend = "etcd"
	_, err = Open(cfg)
	assert.Error(t, err)
}
