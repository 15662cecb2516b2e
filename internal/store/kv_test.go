package store

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKVContract exercises the behaviour every backend must share.
func testKVContract(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	// Missing key
	_, err := kv.Get(ctx, "rooms/none")
	require.ErrorIs(t, err, ErrNotFound)

	// ACT: write a few records, including an escaped segment
	require.NoError(t, kv.Put(ctx, Key("rooms", "!a:x"), []byte("a")))
	require.NoError(t, kv.Put(ctx, Key("rooms", "!b/slash:x"), []byte("b")))
	require.NoError(t, kv.Put(ctx, Key("roomsx", "other"), []byte("c")))
	require.NoError(t, kv.Put(ctx, "identity", []byte("id")))

	// ASSERT
	got, err := kv.Get(ctx, Key("rooms", "!b/slash:x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)

	keys, err := kv.List(ctx, Prefix("rooms"))
	require.NoError(t, err)
	assert.Equal(t, []string{Key("rooms", "!a:x"), Key("rooms", "!b/slash:x")}, keys)

	// Overwrite
	require.NoError(t, kv.Put(ctx, Key("rooms", "!a:x"), []byte("a2")))
	got, err = kv.Get(ctx, Key("rooms", "!a:x"))
	require.NoError(t, err)
	assert.Equal(t, []byte("a2"), got)

	// Delete, twice
	require.NoError(t, kv.Delete(ctx, Key("rooms", "!a:x")))
	require.NoError(t, kv.Delete(ctx, Key("rooms", "!a:x")))
	_, err = kv.Get(ctx, Key("rooms", "!a:x"))
	require.ErrorIs(t, err, ErrNotFound)

	keys, err = kv.List(ctx, Prefix("rooms"))
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestMemoryKV(t *testing.T) {
	testKVContract(t, NewMemoryKV())
}

func TestMemoryKV_ValuesAreCopied(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	v := []byte("abc")
	require.NoError(t, kv.Put(ctx, "k", v))
	v[0] = 'x'
	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	testKVContract(t, kv)
}

func TestFileKV_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	kv, err := NewFileKV(dir)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, Key("prekeys", "k1"), []byte("v")))

	reopened, err := NewFileKV(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, Key("prekeys", "k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	info, err := os.Stat(reopened.path(Key("prekeys", "k1")))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKV(client, "roomcrypt:test:")
	defer kv.Close()

	testKVContract(t, kv)

	// Records live under the namespace.
	assert.True(t, mr.Exists("roomcrypt:test:identity"))
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = NewRedisClient(context.Background(), "not a url")
	require.Error(t, err)
}

func TestPostgresKV(t *testing.T) {
	url := os.Getenv("ROOMCRYPT_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ROOMCRYPT_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(url))

	pool, err := NewPostgresPool(ctx, url)
	require.NoError(t, err)
	kv := NewPostgresKV(pool)
	defer kv.Close()

	_, err = pool.Exec(ctx, `DELETE FROM kv_records`)
	require.NoError(t, err)

	testKVContract(t, kv)

	// A second writer that read the same version loses the race.
	require.NoError(t, kv.Put(ctx, "race", []byte("v1")))
	other := NewPostgresKV(pool)
	_, err = kv.Get(ctx, "race")
	require.NoError(t, err)
	_, err = other.Get(ctx, "race")
	require.NoError(t, err)

	require.NoError(t, other.Put(ctx, "race", []byte("v2")))
	err = kv.Put(ctx, "race", []byte("stale"))
	require.ErrorIs(t, err, ErrVersionConflict)
}
