package slot

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Location selects the root directory for save files.
type Location string

const (
	LocationPersistent Location = "persistent" // per-user config dir
	LocationData       Location = "data"       // per-user data dir
	LocationCache      Location = "cache"      // per-user cache dir, may be purged
	LocationAssets     Location = "assets"     // next to the executable
	LocationCustom     Location = "custom"     // explicit path
)

// Validate checks the location is a known value.
func (l Location) Validate() error {
	switch l {
	case LocationPersistent, LocationData, LocationCache, LocationAssets, LocationCustom:
		return nil
	default:
		return fmt.Errorf("unknown file location: %q (must be persistent, data, cache, assets or custom)", l)
	}
}

// Root returns the directory for this location. appName namespaces the
// per-user directories; customPath is only used by LocationCustom.
func (l Location) Root(appName, customPath string) (string, error) {
	switch l {
	case LocationPersistent:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve config directory: %w", err)
		}
		return filepath.Join(dir, appName), nil

	case LocationData:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, ".local", "share", appName), nil

	case LocationCache:
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve cache directory: %w", err)
		}
		return filepath.Join(dir, appName), nil

	case LocationAssets:
		exe, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to resolve executable path: %w", err)
		}
		return filepath.Join(filepath.Dir(exe), "assets"), nil

	case LocationCustom:
		if customPath == "" {
			return "", fmt.Errorf("custom file location requires a custom file path")
		}
		return customPath, nil

	default:
		return "", l.Validate()
	}
}

// Resolver maps slot numbers to file paths: Root[/SubFolder]/<slot>.<Extension>.
type Resolver struct {
	Root      string
	SubFolder string
	Extension string
}

// NewResolver builds a resolver for a location. An empty subFolder disables
// the sub-folder level.
func NewResolver(loc Location, customPath, appName, subFolder, extension string) (*Resolver, error) {
	root, err := loc.Root(appName, customPath)
	if err != nil {
		return nil, err
	}
	extension = strings.TrimPrefix(extension, ".")
	if extension == "" {
		return nil, fmt.Errorf("file extension cannot be empty")
	}
	if strings.ContainsAny(extension, `/\`) {
		return nil, fmt.Errorf("invalid file extension: %q", extension)
	}
	return &Resolver{Root: root, SubFolder: subFolder, Extension: extension}, nil
}

// Dir returns the directory holding every slot file.
func (r *Resolver) Dir() string {
	if r.SubFolder == "" {
		return r.Root
	}
	return filepath.Join(r.Root, r.SubFolder)
}

// Path returns the file path for slot.
func (r *Resolver) Path(slot int) string {
	return filepath.Join(r.Dir(), strconv.Itoa(slot)+"."+r.Extension)
}

// BackupPath returns the path of the slot's backup file.
func (r *Resolver) BackupPath(slot int) string {
	return r.Path(slot) + backupSuffix
}

// ParseFileName extracts the slot number from a slot or backup file name.
func (r *Resolver) ParseFileName(name string) (slot int, backup bool, ok bool) {
	if strings.HasSuffix(name, backupSuffix) {
		name = strings.TrimSuffix(name, backupSuffix)
		backup = true
	}
	base, found := strings.CutSuffix(name, "."+r.Extension)
	if !found {
		return 0, false, false
	}
	n, err := strconv.Atoi(base)
	if err != nil || n < 0 || strconv.Itoa(n) != base {
		return 0, false, false
	}
	return n, backup, true
}

const backupSuffix = ".bak"

const extensionAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomExtension returns a random lowercase alphanumeric extension of length
// n, used to obfuscate save file names. It is generated once and stored in
// configuration; a new value on every run would orphan existing saves.
func RandomExtension(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("extension length must be positive")
	}
	var b strings.Builder
	limit := big.NewInt(int64(len(extensionAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate extension: %w", err)
		}
		b.WriteByte(extensionAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
