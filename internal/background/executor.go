// Package background brackets long-running work in extended-execution
// windows and receives restart requests for operations that stopped
// making progress.
package background

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	. "github.com/roelfdiedericks/voxnote/internal/metrics"
)

// Window is an open extended-execution window.
type Window struct {
	ID      uint64
	Name    string
	Started time.Time
}

// Executor is the host collaborator for background execution.
type Executor interface {
	// Begin opens a window before a task starts work.
	Begin(name string) Window
	// End closes a window. Ending an unknown window is a no-op.
	End(w Window)
	// RestartNeeded is told about operations that have been running without
	// progress for too long.
	RestartNeeded(ids []string)
}

// Tracker is the server-side Executor: it counts open windows and hands
// restart requests to an optional hook.
type Tracker struct {
	mu        sync.Mutex
	open      map[uint64]Window
	next      atomic.Uint64
	onRestart func(ids []string)
}

var _ Executor = (*Tracker)(nil)

// NewTracker returns a tracker. onRestart may be nil.
func NewTracker(onRestart func(ids []string)) *Tracker {
	return &Tracker{open: make(map[uint64]Window), onRestart: onRestart}
}

// Begin opens a window.
func (t *Tracker) Begin(name string) Window {
	w := Window{ID: t.next.Add(1), Name: name, Started: time.Now()}
	t.mu.Lock()
	t.open[w.ID] = w
	n := len(t.open)
	t.mu.Unlock()

	MetricSet("background", "windows", int64(n))
	L_trace("background: window opened", "id", w.ID, "name", name, "open", n)
	return w
}

// End closes a window.
func (t *Tracker) End(w Window) {
	t.mu.Lock()
	_, ok := t.open[w.ID]
	delete(t.open, w.ID)
	n := len(t.open)
	t.mu.Unlock()
	if !ok {
		return
	}

	MetricSet("background", "windows", int64(n))
	MetricDuration("background", "window", time.Since(w.Started))
	L_trace("background: window closed", "id", w.ID, "name", w.Name, "elapsed", time.Since(w.Started))
}

// RestartNeeded logs the dormant operations and forwards them to the hook.
func (t *Tracker) RestartNeeded(ids []string) {
	if len(ids) == 0 {
		return
	}
	L_warn("background: operations dormant", "count", len(ids), "ids", ids)
	MetricAdd("background", "dormant", int64(len(ids)))
	if t.onRestart != nil {
		t.onRestart(ids)
	}
}

// Open returns the currently open windows.
func (t *Tracker) Open() []Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Window, 0, len(t.open))
	for _, w := range t.open {
		out = append(out, w)
	}
	return out
}

// Nop ignores every call.
type Nop struct{}

func (Nop) Begin(name string) Window { return Window{Name: name, Started: time.Now()} }
func (Nop) End(Window)               {}
func (Nop) RestartNeeded([]string)   {}
