package slot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocation_Validate(t *testing.T) {
	for _, loc := range []Location{LocationPersistent, LocationData, LocationCache, LocationAssets, LocationCustom} {
		assert.NoError(t, loc.Validate(), loc)
	}
	err := Location("cloud").Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown file location")
}

func TestLocation_Root(t *testing.T) {
	t.Run("data honours XDG_DATA_HOME", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
		root, err := LocationData.Root("mygame", "")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/tmp/xdg", "mygame"), root)
	})

	t.Run("custom requires a path", func(t *testing.T) {
		_, err := LocationCustom.Root("mygame", "")
		assert.Error(t, err)
	})

	t.Run("custom uses path verbatim", func(t *testing.T) {
		root, err := LocationCustom.Root("mygame", "/srv/saves")
		require.NoError(t, err)
		assert.Equal(t, "/srv/saves", root)
	})
}

func TestResolver_Paths(t *testing.T) {
	r, err := NewResolver(LocationCustom, "/srv", "mygame", "SaveData", ".sav")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv", "SaveData"), r.Dir())
	assert.Equal(t, filepath.Join("/srv", "SaveData", "3.sav"), r.Path(3))
	assert.Equal(t, filepath.Join("/srv", "SaveData", "3.sav.bak"), r.BackupPath(3))

	flat, err := NewResolver(LocationCustom, "/srv", "mygame", "", "sav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv", "0.sav"), flat.Path(0))
}

func TestNewResolver_RejectsBadExtension(t *testing.T) {
	_, err := NewResolver(LocationCustom, "/srv", "g", "", "")
	assert.Error(t, err)
	_, err = NewResolver(LocationCustom, "/srv", "g", "", "a/b")
	assert.Error(t, err)
}

func TestResolver_ParseFileName(t *testing.T) {
	r := &Resolver{Root: "/srv", Extension: "sav"}

	tests := []struct {
		name   string
		slot   int
		backup bool
		ok     bool
	}{
		{"0.sav", 0, false, true},
		{"12.sav", 12, false, true},
		{"12.sav.bak", 12, true, true},
		{"012.sav", 0, false, false},
		{"-1.sav", 0, false, false},
		{"a.sav", 0, false, false},
		{"1.json", 0, false, false},
		{"1.sav.tmp-123", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, backup, ok := r.ParseFileName(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.slot, slot)
				assert.Equal(t, tt.backup, backup)
			}
		})
	}
}

func TestRandomExtension(t *testing.T) {
	ext, err := RandomExtension(8)
	require.NoError(t, err)
	assert.Len(t, ext, 8)
	assert.Regexp(t, `^[a-z0-9]{8}$`, ext)

	_, err = RandomExtension(0)
	assert.Error(t, err)
}
