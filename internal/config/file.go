package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

// DefaultBackupCount is how many previous versions of a config file Save
// keeps: voxnote.json.bak is the newest, voxnote.json.bak.4 the oldest.
const DefaultBackupCount = 5

// Backup is one saved previous version of a config file.
type Backup struct {
	Index   int       `json:"index"` // 0 = newest
	Path    string    `json:"path"`
	ModTime time.Time `json:"modTime"`
	Size    int64     `json:"size"`
}

func backupPath(path string, index int) string {
	if index == 0 {
		return path + ".bak"
	}
	return fmt.Sprintf("%s.bak.%d", path, index)
}

// AtomicWrite replaces path with data through a synced temp file in the
// same directory, so readers see either the old or the new file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".voxnote-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeSynced(tmp, data, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func writeSynced(f *os.File, data []byte, perm os.FileMode) error {
	err := f.Chmod(perm)
	if err == nil {
		_, err = f.Write(data)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	return nil
}

// BackupAndWrite shifts the existing backups of path down one slot, copies
// the current file to the newest slot and then writes data atomically.
// A failed backup is logged and does not stop the write.
func BackupAndWrite(path string, data []byte, keep int) error {
	if keep <= 0 {
		keep = DefaultBackupCount
	}
	if err := backup(path, keep); err != nil {
		L_warn("config: backup failed, continuing with save", "path", path, "error", err)
	}
	if err := AtomicWrite(path, data, 0600); err != nil {
		return err
	}
	L_debug("config: saved", "path", path)
	return nil
}

// backup copies the current file into slot 0 after rotating. A missing
// file is not an error.
func backup(path string, keep int) error {
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	rotate(path, keep)
	if err := os.WriteFile(backupPath(path, 0), current, 0600); err != nil {
		return err
	}
	L_debug("config: backup written", "path", backupPath(path, 0))
	return nil
}

// rotate drops the oldest slot and renames every other one to the next
// index.
func rotate(path string, keep int) {
	if keep <= 1 {
		return
	}
	if err := os.Remove(backupPath(path, keep-1)); err != nil && !os.IsNotExist(err) {
		L_trace("config: failed to drop oldest backup", "error", err)
	}
	for i := keep - 2; i >= 0; i-- {
		if err := os.Rename(backupPath(path, i), backupPath(path, i+1)); err != nil && !os.IsNotExist(err) {
			L_trace("config: failed to rotate backup", "from", i, "error", err)
		}
	}
}

// ListBackups returns the backups of path, newest first.
func ListBackups(path string) []Backup {
	var out []Backup
	for i := 0; ; i++ {
		info, err := os.Stat(backupPath(path, i))
		if err != nil {
			return out
		}
		out = append(out, Backup{Index: i, Path: backupPath(path, i), ModTime: info.ModTime(), Size: info.Size()})
	}
}

// RestoreBackup replaces path with backup index after checking that the
// backup parses and validates as a voxnote config. The replaced file
// becomes the newest backup, so a restore can itself be undone.
func RestoreBackup(path string, index int) (*Config, error) {
	src := backupPath(path, index)
	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no backup %d for %s", index, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	cfg, err := Parse(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("backup %d is not a usable config: %w", index, err)
	}

	if err := BackupAndWrite(path, data, DefaultBackupCount); err != nil {
		return nil, fmt.Errorf("failed to write restored config: %w", err)
	}
	L_info("config: restored backup", "from", src, "to", path)
	return cfg, nil
}
