package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "token", "abc", 0))
	v, ok, err := s.Get(ctx, "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, s.Set(ctx, "token", "def", 0))
	v, _, _ = s.Get(ctx, "token")
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, "token"))
	_, ok, err = s.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, "never-set"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	exerciseStore(t, NewFileStore(path))
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	require.NoError(t, NewFileStore(path).Set(ctx, "device_id", "d-1", 0))

	v, ok, err := NewFileStore(path).Get(ctx, "device_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d-1", v)
}

func TestFileStoreExpiry(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Hour))
	_, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Hour)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path)
	ctx := context.Background()
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, _ := s.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedisStoreTTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "work_drafts_v1", "{}", time.Minute))
	assert.True(t, mr.Exists("afterword:work_drafts_v1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Get(ctx, "work_drafts_v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	s, err := Open("file", filepath.Join(t.TempDir(), "s.json"), "")
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open("memory", "", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("etcd", "", "")
	assert.Error(t, err)
}
