package media

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const scratchPrefix = "voxnote-"

// Scratch is a per-call temporary directory for compressed files and
// exported chunks. Files are removed as soon as their chunk finishes;
// Close removes whatever is left.
type Scratch struct {
	dir string
}

// NewScratch creates a scratch directory under base (os.TempDir when empty).
func NewScratch(base, label string) (*Scratch, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0750); err != nil {
			return nil, types.Wrap(types.KindMedia, "scratch", err)
		}
	}
	dir, err := os.MkdirTemp(base, scratchPrefix+sanitize(label)+"-*")
	if err != nil {
		return nil, types.Wrap(types.KindMedia, "scratch", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory.
func (s *Scratch) Dir() string {
	return s.dir
}

// Remove deletes one file, logging instead of failing.
func (s *Scratch) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		L_warn("media: failed to remove scratch file", "path", path, "error", err)
	}
}

// Close removes the directory and everything in it.
func (s *Scratch) Close() error {
	if s == nil || s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

// CleanStale removes scratch directories under base older than ttl, left
// behind by a crashed process. Returns the number removed.
func CleanStale(base string, ttl time.Duration) int {
	if base == "" {
		base = os.TempDir()
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		L_info("media: removed stale scratch dirs", "count", removed, "base", base)
	}
	return removed
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
