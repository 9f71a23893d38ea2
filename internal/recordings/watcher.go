package recordings

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/media"
)

var audioExts = map[string]bool{
	".m4a": true, ".mp3": true, ".wav": true, ".ogg": true, ".oga": true,
	".opus": true, ".flac": true, ".webm": true, ".mp4": true, ".aac": true,
}

// IsAudioName reports whether path has a recognised audio extension.
func IsAudioName(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// Adder is the part of a store the watcher needs.
type Adder interface {
	FindByPath(ctx context.Context, path string) (Recording, bool, error)
	Add(ctx context.Context, r Recording) (Recording, error)
}

// Watcher adds audio files that appear in an inbox directory to a store
// and reports each new recording to onNew.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	store    Adder
	language string
	debounce time.Duration
	onNew    func(Recording)

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for dir. The directory is created if missing.
func NewWatcher(dir string, store Adder, cfg Config, onNew func(Recording)) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	debounce := time.Duration(cfg.DebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		store:    store,
		language: cfg.Language,
		debounce: debounce,
		onNew:    onNew,
		pending:  make(map[string]*time.Timer),
		stopCh:   make(chan struct{}),
	}, nil
}

// Scan adds audio files already in the inbox. It returns how many were new
// to the store.
func (w *Watcher) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		L_warn("recordings: inbox scan failed", "dir", w.dir, "error", err)
		return 0
	}
	added := 0
	for _, e := range entries {
		if e.IsDir() || !IsAudioName(e.Name()) {
			continue
		}
		if w.add(ctx, filepath.Join(w.dir, e.Name())) {
			added++
		}
	}
	return added
}

// Start begins watching in a goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
	L_info("recordings: watching inbox", "dir", w.dir)
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("recordings: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsAudioName(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	L_trace("recordings: inbox event", "path", event.Name, "op", event.Op.String())
	w.schedule(event.Name)
}

// schedule waits for writes to a file to settle before adding it.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case <-w.stopCh:
			return
		default:
		}
		w.add(context.Background(), path)
	})
}

func (w *Watcher) add(ctx context.Context, path string) bool {
	if _, err := media.Inspect(path); err != nil {
		L_debug("recordings: skipping inbox file", "path", path, "error", err)
		return false
	}

	if _, known, err := w.store.FindByPath(ctx, path); err != nil || known {
		return false
	}
	rec, err := w.store.Add(ctx, Recording{Path: path, Language: w.language})
	if err != nil {
		L_warn("recordings: failed to add inbox file", "path", path, "error", err)
		return false
	}
	L_info("recordings: new recording", "id", rec.ID, "path", path)
	if w.onNew != nil {
		w.onNew(rec)
	}
	return true
}

// Stop stops watching and cancels pending adds.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
