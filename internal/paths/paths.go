// Package paths provides centralized path resolution for voxnote.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigNames are the accepted config file names, in lookup order.
var ConfigNames = []string{"voxnote.json", "voxnote.toml", "voxnote.yaml", "voxnote.yml"}

// BaseDir returns the voxnote base directory (~/.voxnote).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".voxnote"), nil
}

// DataPath returns a path within the voxnote data directory (~/.voxnote/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active config path.
// Priority: ./voxnote.* (current dir) > ~/.voxnote/voxnote.*
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	for _, name := range ConfigNames {
		if _, err := os.Stat(name); err == nil {
			abs, err := filepath.Abs(name)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path: %w", err)
			}
			return abs, nil
		}
	}

	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	for _, name := range ConfigNames {
		p := filepath.Join(base, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// DefaultConfigPath returns the default location for new configs (~/.voxnote/voxnote.json).
func DefaultConfigPath() (string, error) {
	return DataPath("voxnote.json")
}

// DefaultDatabasePath returns the default recordings database (~/.voxnote/recordings.db).
func DefaultDatabasePath() (string, error) {
	return DataPath("recordings.db")
}

// DefaultInboxDir returns the default watched inbox (~/.voxnote/inbox).
func DefaultInboxDir() (string, error) {
	return DataPath("inbox")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
