package inspect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/stash/internal/slot"
	"github.com/dyluth/stash/pkg/cipher"
	"github.com/dyluth/stash/pkg/codec"
	"github.com/dyluth/stash/pkg/savepkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *slot.FileStore {
	t.Helper()
	r, err := slot.NewResolver(slot.LocationCustom, t.TempDir(), "stash-test", "saves", "sav")
	require.NoError(t, err)
	return slot.NewFileStore(r)
}

func writePackage(t *testing.T, store slot.Store, c *codec.Codec, n int, systems map[string]string) {
	t.Helper()
	pkg := savepkg.FromMap(n, "Dungeon", systems)
	pkg.GameVersion = "1.2.0"
	pkg.OperationID = "op-" + strings.Repeat("x", n)
	data, err := savepkg.Marshal(pkg, c)
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), n, data, slot.Replace))
}

func TestListSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("empty store - default format", func(t *testing.T) {
		store := newStore(t)

		var buf bytes.Buffer
		err := ListSlots(ctx, store, "test-saves", OutputFormatDefault, nil, &buf)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "No save slots found in test-saves")
	})

	t.Run("empty store - JSONL format", func(t *testing.T) {
		store := newStore(t)

		var buf bytes.Buffer
		err := ListSlots(ctx, store, "test-saves", OutputFormatJSONL, nil, &buf)
		require.NoError(t, err)
		assert.Empty(t, buf.String())
	})

	t.Run("multiple slots - default format", func(t *testing.T) {
		store := newStore(t)
		c := codec.New(nil)
		writePackage(t, store, c, 3, map[string]string{"Inventory": "A=1"})
		writePackage(t, store, c, 1, map[string]string{"Inventory": "A=2"})
		writePackage(t, store, c, 1, map[string]string{"Inventory": "A=3"})

		// Slot 7 only has a backup after its main file is removed.
		writePackage(t, store, c, 7, map[string]string{"Inventory": "A=4"})
		writePackage(t, store, c, 7, map[string]string{"Inventory": "A=5"})
		require.NoError(t, os.Remove(store.Resolver().Path(7)))

		var buf bytes.Buffer
		err := ListSlots(ctx, store, "test-saves", OutputFormatDefault, nil, &buf)
		require.NoError(t, err)

		output := buf.String()
		assert.Contains(t, output, "Save slots in test-saves")
		assert.Contains(t, output, "saved")
		assert.Contains(t, output, "backup-only")
		assert.Contains(t, output, "yes")
		assert.Contains(t, output, "3 slots found")
	})

	t.Run("JSONL output is ordered and complete", func(t *testing.T) {
		store := newStore(t)
		c := codec.New(nil)
		writePackage(t, store, c, 5, map[string]string{"Flags": "f"})
		writePackage(t, store, c, 2, map[string]string{"Flags": "f"})

		var buf bytes.Buffer
		err := ListSlots(ctx, store, "test-saves", OutputFormatJSONL, nil, &buf)
		require.NoError(t, err)

		var slots []slot.Info
		scanner := bufio.NewScanner(&buf)
		for scanner.Scan() {
			var info slot.Info
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &info))
			slots = append(slots, info)
		}
		require.Len(t, slots, 2)
		assert.Equal(t, 2, slots[0].Slot)
		assert.Equal(t, 5, slots[1].Slot)
		assert.True(t, slots[0].Exists)
		assert.Greater(t, slots[0].Size, int64(0))
	})

	t.Run("unknown format", func(t *testing.T) {
		store := newStore(t)
		err := ListSlots(ctx, store, "test-saves", OutputFormat("xml"), nil, &bytes.Buffer{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

func TestListSlots_Filters(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := codec.New(nil)
	writePackage(t, store, c, 1, map[string]string{"Flags": "f"})
	writePackage(t, store, c, 2, map[string]string{"Flags": "f"})

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Resolver().Path(1), old, old))

	list := func(fc *FilterCriteria) []int {
		var buf bytes.Buffer
		require.NoError(t, ListSlots(ctx, store, "test", OutputFormatJSONL, fc, &buf))
		var got []int
		scanner := bufio.NewScanner(&buf)
		for scanner.Scan() {
			var info slot.Info
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &info))
			got = append(got, info.Slot)
		}
		return got
	}

	dayAgo := time.Now().Add(-24 * time.Hour).UnixMilli()
	assert.Equal(t, []int{2}, list(&FilterCriteria{SinceTimestampMs: dayAgo}))
	assert.Equal(t, []int{1}, list(&FilterCriteria{UntilTimestampMs: dayAgo}))
	assert.Equal(t, []int{1, 2}, list(&FilterCriteria{Status: slot.StatusSaved}))
	assert.Empty(t, list(&FilterCriteria{Status: slot.StatusBackupOnly}))
}

func TestFilterCriteria_TimeFilterSkipsUndated(t *testing.T) {
	fc := &FilterCriteria{SinceTimestampMs: 1}
	assert.False(t, fc.matchesFilter(slot.Info{Slot: 1, Status: slot.StatusBackupOnly}))

	fc = &FilterCriteria{}
	assert.True(t, fc.matchesFilter(slot.Info{Slot: 1}))
}

func TestInspectSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("plain package", func(t *testing.T) {
		store := newStore(t)
		c := codec.New(nil)
		writePackage(t, store, c, 2, map[string]string{
			"Inventory": "A=1;B=2",
			"Flags":     strings.Repeat("z", 60),
		})

		var buf bytes.Buffer
		require.NoError(t, InspectSlot(ctx, store, c, 2, false, &buf))

		var report Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
		assert.Equal(t, 2, report.Slot)
		assert.Equal(t, "Dungeon", report.SceneName)
		assert.Equal(t, "1.2.0", report.GameVersion)
		assert.Equal(t, 67, report.Checksum)
		assert.True(t, report.ChecksumValid)
		assert.Empty(t, report.Warnings)
		require.Len(t, report.Systems, 2)

		// FromMap sorts names.
		assert.Equal(t, "Flags", report.Systems[0].Name)
		assert.Equal(t, 60, report.Systems[0].Size)
		assert.True(t, strings.HasSuffix(report.Systems[0].Preview, "..."))
		assert.Empty(t, report.Systems[0].Data)
		assert.Equal(t, "A=1;B=2", report.Systems[1].Preview)
	})

	t.Run("full output includes data", func(t *testing.T) {
		store := newStore(t)
		c := codec.New(nil)
		writePackage(t, store, c, 0, map[string]string{"Inventory": "A=1"})

		report, err := BuildReport(ctx, store, c, 0, true)
		require.NoError(t, err)
		require.Len(t, report.Systems, 1)
		assert.Equal(t, "A=1", report.Systems[0].Data)
	})

	t.Run("encrypted package needs the key", func(t *testing.T) {
		key, err := cipher.KeyFromSecret("inspect-test")
		require.NoError(t, err)
		aes, err := cipher.NewAES(key)
		require.NoError(t, err)
		enc := codec.New(aes)

		store := newStore(t)
		writePackage(t, store, enc, 4, map[string]string{"Settings": "secret"})

		report, err := BuildReport(ctx, store, enc, 4, true)
		require.NoError(t, err)
		assert.Equal(t, "secret", report.Systems[0].Data)

		_, err = BuildReport(ctx, store, codec.New(nil), 4, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, savepkg.ErrCorruptPackage)
	})

	t.Run("checksum mismatch is reported, not fatal", func(t *testing.T) {
		store := newStore(t)
		c := codec.New(nil)
		pkg := savepkg.FromMap(6, "Town", map[string]string{"Inventory": "A=1"})
		data, err := savepkg.Marshal(pkg, c)
		require.NoError(t, err)
		data = bytes.Replace(data, []byte(`"checksum": 3`), []byte(`"checksum": 99`), 1)
		require.NoError(t, store.Write(ctx, 6, data, slot.CreateOnly))

		report, err := BuildReport(ctx, store, c, 6, false)
		require.NoError(t, err)
		assert.False(t, report.ChecksumValid)
		require.Len(t, report.Warnings, 1)
		assert.Contains(t, report.Warnings[0], "checksum mismatch")
	})

	t.Run("empty slot", func(t *testing.T) {
		store := newStore(t)
		err := InspectSlot(ctx, store, codec.New(nil), 9, false, &bytes.Buffer{})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Equal(t, "slot 9 is empty", err.Error())
	})

	t.Run("empty slot with backup", func(t *testing.T) {
		store := newStore(t)
		c := codec.New(nil)
		writePackage(t, store, c, 3, map[string]string{"Inventory": "A=1"})
		writePackage(t, store, c, 3, map[string]string{"Inventory": "A=2"})
		require.NoError(t, os.Remove(store.Resolver().Path(3)))

		_, err := BuildReport(ctx, store, c, 3, false)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.Contains(t, err.Error(), "a backup exists")
	})

	t.Run("corrupt file", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Write(ctx, 1, []byte("not a save"), slot.CreateOnly))
		_, err := BuildReport(ctx, store, codec.New(nil), 1, false)
		require.Error(t, err)
		assert.False(t, IsNotFound(err))
		assert.ErrorIs(t, err, savepkg.ErrCorruptPackage)
	})
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "-", formatSize(0, false))
	assert.Equal(t, "512B", formatSize(512, true))
	assert.Equal(t, "1.5K", formatSize(1536, true))
	assert.Equal(t, "2.0M", formatSize(2*1024*1024, true))

	assert.Equal(t, "-", formatAge(time.Time{}))
	assert.Equal(t, "2h ago", formatAge(time.Now().Add(-2*time.Hour-time.Minute)))
	assert.Equal(t, "3d ago", formatAge(time.Now().Add(-73*time.Hour)))

	assert.Equal(t, "-", formatPreview(""))
	assert.Equal(t, "short", formatPreview("short"))
	assert.Len(t, []rune(formatPreview(strings.Repeat("é", 50))), 40)
}
