package slot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FileStore keeps one file per slot under a Resolver's directory.
type FileStore struct {
	resolver *Resolver
}

// NewFileStore creates a file-backed store. Directories are created lazily on
// the first write.
func NewFileStore(r *Resolver) *FileStore {
	return &FileStore{resolver: r}
}

// Resolver returns the path resolver used by the store.
func (s *FileStore) Resolver() *Resolver {
	return s.resolver
}

// Exists reports whether the slot file is present.
func (s *FileStore) Exists(ctx context.Context, slot int) (bool, error) {
	if err := validSlot(slot); err != nil {
		return false, err
	}
	return fileExists(s.resolver.Path(slot))
}

// Read returns the slot's payload, or ErrNotFound.
func (s *FileStore) Read(ctx context.Context, slot int) ([]byte, error) {
	if err := validSlot(slot); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.resolver.Path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read slot %d: %w", slot, err)
	}
	return data, nil
}

// Write stores data for slot. The payload is written to a temporary file and
// renamed into place so a crash never leaves a half-written slot. With
// Replace, the previous payload becomes the slot's backup.
func (s *FileStore) Write(ctx context.Context, slot int, data []byte, mode WriteMode) error {
	if err := validSlot(slot); err != nil {
		return err
	}

	dir := s.resolver.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}

	path := s.resolver.Path(slot)
	exists, err := fileExists(path)
	if err != nil {
		return err
	}
	if exists && mode != Replace {
		return fmt.Errorf("slot %d: %w", slot, ErrSlotOccupied)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write slot %d: %w", slot, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync slot %d: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close slot %d: %w", slot, err)
	}

	if exists {
		if err := os.Rename(path, s.resolver.BackupPath(slot)); err != nil {
			return fmt.Errorf("failed to back up slot %d: %w", slot, err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move slot %d into place: %w", slot, err)
	}
	return nil
}

// Delete removes the slot and its backup. Deleting an empty slot returns ErrNotFound.
func (s *FileStore) Delete(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}

	removed := false
	for _, p := range []string{s.resolver.Path(slot), s.resolver.BackupPath(slot)} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = true
		case os.IsNotExist(err):
		default:
			return fmt.Errorf("failed to delete slot %d: %w", slot, err)
		}
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}

// RestoreBackup swaps the backup into place. The current payload, if any,
// becomes the new backup.
func (s *FileStore) RestoreBackup(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}

	path := s.resolver.Path(slot)
	backup := s.resolver.BackupPath(slot)

	hasBackup, err := fileExists(backup)
	if err != nil {
		return err
	}
	if !hasBackup {
		return fmt.Errorf("slot %d has no backup: %w", slot, ErrNotFound)
	}

	exists, err := fileExists(path)
	if err != nil {
		return err
	}
	if !exists {
		return os.Rename(backup, path)
	}

	swap := path + ".swap"
	if err := os.Rename(path, swap); err != nil {
		return fmt.Errorf("failed to restore slot %d: %w", slot, err)
	}
	if err := os.Rename(backup, path); err != nil {
		return fmt.Errorf("failed to restore slot %d: %w", slot, err)
	}
	if err := os.Rename(swap, backup); err != nil {
		return fmt.Errorf("failed to restore slot %d: %w", slot, err)
	}
	return nil
}

// Describe returns metadata for slot. A never-written slot reports Exists=false.
func (s *FileStore) Describe(ctx context.Context, slot int) (Info, error) {
	if err := validSlot(slot); err != nil {
		return Info{}, err
	}

	path := s.resolver.Path(slot)
	info := Info{Slot: slot, Location: path}

	st, err := os.Stat(path)
	switch {
	case err == nil:
		info.Exists = true
		info.Size = st.Size()
		info.ModTime = st.ModTime()
	case os.IsNotExist(err):
	default:
		return Info{}, fmt.Errorf("failed to stat slot %d: %w", slot, err)
	}

	info.HasBackup, err = fileExists(s.resolver.BackupPath(slot))
	if err != nil {
		return Info{}, err
	}
	info.Status = statusOf(info.Exists, info.HasBackup)
	return info, nil
}

// List describes every slot with a file or a backup in the save directory,
// ordered by slot number. A missing directory yields an empty list.
func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.resolver.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to list save directory: %w", err)
	}

	seen := make(map[int]bool)
	var slots []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, _, ok := s.resolver.ParseFileName(e.Name())
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		slots = append(slots, n)
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

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}
