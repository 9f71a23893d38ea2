// Package telemetry delivers summarization attempt records to sinks without
// ever blocking the caller.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

// Fallback says which step of the provider chain produced a result.
type Fallback string

const (
	FallbackNone     Fallback = "none"     // the requested provider
	FallbackProvider Fallback = "provider" // a later provider in the chain
	FallbackLocal    Fallback = "local"    // local extract
)

// Record is one provider attempt.
type Record struct {
	ProviderID   string    `json:"providerId"`
	Success      bool      `json:"success"`
	UsedFallback Fallback  `json:"usedFallback"`
	ElapsedMs    int64     `json:"elapsedMs"`
	InputLength  int       `json:"inputLength"`
	OutputLength int       `json:"outputLength"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	At           time.Time `json:"at"`
}

// Reporter accepts records. Report must not block.
type Reporter interface {
	Report(Record)
}

// Sink persists or forwards records.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Record) error
	Close() error
}

// Nop discards records.
type Nop struct{}

func (Nop) Report(Record) {}

// Async queues records and writes them to every sink on one goroutine.
// When the queue is full new records are dropped and counted.
type Async struct {
	queue   chan Record
	sinks   []Sink
	timeout time.Duration
	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewAsync starts a reporter with a queue of size records.
func NewAsync(size int, sinks ...Sink) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		queue:   make(chan Record, size),
		sinks:   sinks,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Report enqueues r or drops it when the queue is full.
func (a *Async) Report(r Record) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	select {
	case a.queue <- r:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			L_warn("telemetry: queue full, dropping records", "dropped", n)
		}
	}
}

// Dropped returns how many records were discarded.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

func (a *Async) loop() {
	defer close(a.done)
	for r := range a.queue {
		for _, s := range a.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			if err := s.Write(ctx, r); err != nil {
				L_debug("telemetry: sink write failed", "sink", s.Name(), "error", err)
			}
			cancel()
		}
	}
}

// Close flushes queued records and closes every sink. Report must not be
// called after Close.
func (a *Async) Close() error {
	var firstErr error
	a.once.Do(func() {
		close(a.queue)
		<-a.done
		for _, s := range a.sinks {
			if err := s.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
