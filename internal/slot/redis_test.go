package slot

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedisStore creates a store connected to a miniredis instance
func setupTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-profile")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, mr
}

func TestNewRedisStore_RejectsEmptyProfile(t *testing.T) {
	_, err := NewRedisStore(&redis.Options{Addr: "localhost:6379"}, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "profile cannot be empty")
}

func TestSlotKeys(t *testing.T) {
	assert.Equal(t, "stash:p1:slot:4", SlotKey("p1", 4))
	assert.Equal(t, "stash:p1:slot:4:backup", SlotBackupKey("p1", 4))
}

func TestRedisStore_WriteRead(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedisStore(t)

	require.NoError(t, s.Ping(ctx))

	info, err := s.Describe(ctx, 2)
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, StatusEmpty, info.Status)

	require.NoError(t, s.Write(ctx, 2, []byte("payload"), CreateOnly))
	assert.True(t, mr.Exists("stash:test-profile:slot:2"))
	assert.Equal(t, "payload", mr.HGet("stash:test-profile:slot:2", "data"))

	data, err := s.Read(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	info, err = s.Describe(ctx, 2)
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(len("payload")), info.Size)
	assert.False(t, info.ModTime.IsZero())
	assert.Equal(t, "stash:test-profile:slot:2", info.Location)
}

func TestRedisStore_ReadMissing(t *testing.T) {
	s, _ := setupTestRedisStore(t)
	_, err := s.Read(context.Background(), 7)
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_OverwriteSemantics(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedisStore(t)

	require.NoError(t, s.Write(ctx, 1, []byte("first"), CreateOnly))
	assert.ErrorIs(t, s.Write(ctx, 1, []byte("second"), CreateOnly), ErrSlotOccupied)

	require.NoError(t, s.Write(ctx, 1, []byte("second"), Replace))
	assert.Equal(t, "first", mr.HGet("stash:test-profile:slot:1:backup", "data"))

	data, err := s.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, s.RestoreBackup(ctx, 1))
	data, err = s.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.Equal(t, "second", mr.HGet("stash:test-profile:slot:1:backup", "data"))
}

func TestRedisStore_RestoreWithoutBackup(t *testing.T) {
	s, _ := setupTestRedisStore(t)
	err := s.RestoreBackup(context.Background(), 1)
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedisStore(t)

	require.NoError(t, s.Write(ctx, 3, []byte("three"), CreateOnly))
	require.NoError(t, s.Write(ctx, 1, []byte("one"), CreateOnly))
	require.NoError(t, s.Write(ctx, 1, []byte("one again"), Replace))
	mr.HSet("stash:other-profile:slot:9", "data", "x")

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].Slot)
	assert.True(t, infos[0].HasBackup)
	assert.Equal(t, 3, infos[1].Slot)

	require.NoError(t, s.Delete(ctx, 1))
	assert.False(t, mr.Exists("stash:test-profile:slot:1"))
	assert.False(t, mr.Exists("stash:test-profile:slot:1:backup"))
	assert.ErrorIs(t, s.Delete(ctx, 1), ErrNotFound)

	infos, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].Slot)
}
