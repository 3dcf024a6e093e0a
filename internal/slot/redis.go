package slot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key pattern helpers
//
// Keys are namespaced by profile so several players (or test runs) can share
// one Redis server.
//
// Slot key:   stash:{profile}:slot:{n}
// Backup key: stash:{profile}:slot:{n}:backup

// SlotKey returns the Redis hash key for a slot.
func SlotKey(profile string, slot int) string {
	return fmt.Sprintf("stash:%s:slot:%d", profile, slot)
}

// SlotBackupKey returns the Redis hash key for a slot's backup.
func SlotBackupKey(profile string, slot int) string {
	return SlotKey(profile, slot) + ":backup"
}

const (
	fieldData    = "data"
	fieldSavedAt = "saved_at_ms"
	fieldSize    = "size"
)

// maxWriteRetries bounds optimistic-lock retries when two writers race on a slot.
const maxWriteRetries = 5

// RedisStore keeps each slot as a Redis hash.
type RedisStore struct {
	rdb     *redis.Client
	profile string
}

// NewRedisStore creates a Redis-backed store for profile.
func NewRedisStore(redisOpts *redis.Options, profile string) (*RedisStore, error) {
	if profile == "" {
		return nil, fmt.Errorf("profile cannot be empty")
	}
	return &RedisStore{rdb: redis.NewClient(redisOpts), profile: profile}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Exists reports whether the slot hash is present.
func (s *RedisStore) Exists(ctx context.Context, slot int) (bool, error) {
	if err := validSlot(slot); err != nil {
		return false, err
	}
	n, err := s.rdb.Exists(ctx, SlotKey(s.profile, slot)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check slot existence: %w", err)
	}
	return n > 0, nil
}

// Read returns the slot's payload, or ErrNotFound.
func (s *RedisStore) Read(ctx context.Context, slot int) ([]byte, error) {
	if err := validSlot(slot); err != nil {
		return nil, err
	}
	data, err := s.rdb.HGet(ctx, SlotKey(s.profile, slot), fieldData).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read slot %d from Redis: %w", slot, err)
	}
	return data, nil
}

// Write stores data for slot inside a WATCH transaction, so a concurrent
// writer cannot slip in between the existence check and the write.
func (s *RedisStore) Write(ctx context.Context, slot int, data []byte, mode WriteMode) error {
	if err := validSlot(slot); err != nil {
		return err
	}

	key := SlotKey(s.profile, slot)
	backup := SlotBackupKey(s.profile, slot)

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		exists := n > 0
		if exists && mode != Replace {
			return fmt.Errorf("slot %d: %w", slot, ErrSlotOccupied)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if exists {
				pipe.Rename(ctx, key, backup)
			}
			pipe.HSet(ctx, key,
				fieldData, data,
				fieldSavedAt, time.Now().UnixMilli(),
				fieldSize, len(data),
			)
			return nil
		})
		return err
	}

	for i := 0; i < maxWriteRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, ErrSlotOccupied) {
				return err
			}
			return fmt.Errorf("failed to write slot %d to Redis: %w", slot, err)
		}
		return nil
	}
	return fmt.Errorf("failed to write slot %d to Redis: too much contention", slot)
}

// Delete removes the slot and its backup. Deleting an empty slot returns ErrNotFound.
func (s *RedisStore) Delete(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	n, err := s.rdb.Del(ctx, SlotKey(s.profile, slot), SlotBackupKey(s.profile, slot)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete slot %d from Redis: %w", slot, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreBackup swaps the backup into place. The current payload, if any,
// becomes the new backup.
func (s *RedisStore) RestoreBackup(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}

	key := SlotKey(s.profile, slot)
	backup := SlotBackupKey(s.profile, slot)
	swap := key + ":swap"

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		counts, err := tx.Exists(ctx, backup).Result()
		if err != nil {
			return err
		}
		if counts == 0 {
			return fmt.Errorf("slot %d has no backup: %w", slot, ErrNotFound)
		}
		current, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if current > 0 {
				pipe.Rename(ctx, key, swap)
				pipe.Rename(ctx, backup, key)
				pipe.Rename(ctx, swap, backup)
			} else {
				pipe.Rename(ctx, backup, key)
			}
			return nil
		})
		return err
	}, key, backup)

	if err != nil {
		if IsNotFound(err) {
			return err
		}
		return fmt.Errorf("failed to restore slot %d: %w", slot, err)
	}
	return nil
}

// Describe returns metadata for slot. A never-written slot reports Exists=false.
func (s *RedisStore) Describe(ctx context.Context, slot int) (Info, error) {
	if err := validSlot(slot); err != nil {
		return Info{}, err
	}

	key := SlotKey(s.profile, slot)
	info := Info{Slot: slot, Location: key}

	meta, err := s.rdb.HMGet(ctx, key, fieldSavedAt, fieldSize).Result()
	if err != nil {
		return Info{}, fmt.Errorf("failed to describe slot %d: %w", slot, err)
	}
	if meta[0] != nil || meta[1] != nil {
		info.Exists = true
		if ms, ok := parseInt(meta[0]); ok {
			info.ModTime = time.UnixMilli(ms)
		}
		if size, ok := parseInt(meta[1]); ok {
			info.Size = size
		}
	}

	n, err := s.rdb.Exists(ctx, SlotBackupKey(s.profile, slot)).Result()
	if err != nil {
		return Info{}, fmt.Errorf("failed to check backup for slot %d: %w", slot, err)
	}
	info.HasBackup = n > 0
	info.Status = statusOf(info.Exists, info.HasBackup)
	return info, nil
}

// List describes every slot with a hash or a backup, ordered by slot number.
func (s *RedisStore) List(ctx context.Context) ([]Info, error) {
	prefix := fmt.Sprintf("stash:%s:slot:", s.profile)

	seen := make(map[int]bool)
	var slots []int
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rest := strings.TrimPrefix(iter.Val(), prefix)
		rest = strings.TrimSuffix(rest, ":backup")
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || seen[n] {
			continue
		}
		seen[n] = true
		slots = append(slots, n)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan slots: %w", err)
	}
	sort.Ints(slots)

	infos := make([]Info, 0, len(slots))
	for _, n := range slots {
		info, err := s.Describe(ctx, n)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func parseInt(v interface{}) (int64, bool) {
	str, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
