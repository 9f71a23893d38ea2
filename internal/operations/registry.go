// Package operations tracks transcription and summarization jobs: it
// creates them, runs each on a bounded worker pool, and applies pause,
// resume and cancel requests under one lock.
package operations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/roelfdiedericks/voxnote/internal/background"
	"github.com/roelfdiedericks/voxnote/internal/bus"
	"github.com/roelfdiedericks/voxnote/internal/cancel"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/metrics"
	"github.com/roelfdiedericks/voxnote/internal/recordings"
	"github.com/roelfdiedericks/voxnote/internal/summarize"
	"github.com/roelfdiedericks/voxnote/internal/transcribe"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// ErrClosed is returned when starting work on a closed registry.
var ErrClosed = errors.New("operations: registry closed")

// Transcriber runs one transcription.
type Transcriber interface {
	Run(ctx context.Context, req transcribe.Request, progress types.ProgressFunc, tok cancel.Token) (types.Transcript, error)
}

// Summarizer runs one summarization.
type Summarizer interface {
	Run(ctx context.Context, req summarize.Request, progress types.ProgressFunc, tok cancel.Token) (types.Summary, error)
}

// Config holds registry settings.
type Config struct {
	GracePeriodSeconds  float64 `json:"gracePeriodSeconds" toml:"gracePeriodSeconds" yaml:"gracePeriodSeconds"`    // keep terminal operations this long
	DormantAfterMinutes float64 `json:"dormantAfterMinutes" toml:"dormantAfterMinutes" yaml:"dormantAfterMinutes"` // running without progress this long = dormant
	SweepSchedule       string  `json:"sweepSchedule" toml:"sweepSchedule" yaml:"sweepSchedule"`                   // cron spec, e.g. "@every 1m"
	MaxConcurrent       int     `json:"maxConcurrent" toml:"maxConcurrent" yaml:"maxConcurrent"`                   // operations doing work at once
	AutoSummarize       bool    `json:"autoSummarize" toml:"autoSummarize" yaml:"autoSummarize"`                   // summarize after each transcription
	SummaryLength       string  `json:"summaryLength" toml:"summaryLength" yaml:"summaryLength"`                   // default length for automatic summaries
	Language            string  `json:"language" toml:"language" yaml:"language"`                                  // transcription language when a request names none
	EagerSweep          bool    `json:"eagerSweep" toml:"eagerSweep" yaml:"eagerSweep"`                            // sweep removes terminal operations still inside their grace period
}

// DefaultConfig returns a 30s grace period, 10m dormancy, a sweep every
// minute and four concurrent operations.
func DefaultConfig() Config {
	return Config{
		GracePeriodSeconds:  30,
		DormantAfterMinutes: 10,
		SweepSchedule:       "@every 1m",
		MaxConcurrent:       4,
		SummaryLength:       string(types.LengthStandard),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GracePeriodSeconds <= 0 {
		c.GracePeriodSeconds = d.GracePeriodSeconds
	}
	if c.DormantAfterMinutes <= 0 {
		c.DormantAfterMinutes = d.DormantAfterMinutes
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = d.SweepSchedule
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	return c
}

// Deps are the registry's collaborators.
type Deps struct {
	Transcriber Transcriber
	Summarizer  Summarizer
	Recordings  recordings.Store    // nil = results are not written back
	Background  background.Executor // nil = background.Nop
	Bus         *bus.Bus            // nil = bus.Default()
}

// SweepReport is what one sweep did.
type SweepReport struct {
	Removed []string `json:"removed"`
	Dormant []string `json:"dormant"`
}

// Registry owns every operation. All state lives in one mutex-guarded map;
// callers only ever see snapshots.
type Registry struct {
	cfg     Config
	deps    Deps
	grace   time.Duration
	dormant time.Duration
	length  types.Length

	mu     sync.RWMutex
	ops    map[string]*operation
	byKey  map[opKey]string
	closed bool

	sem     *semaphore.Weighted
	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	sweeper *cron.Cron
}

// New creates a registry. Call StartSweeper to enable periodic cleanup and
// Close to stop it.
func New(cfg Config, deps Deps) *Registry {
	cfg = cfg.withDefaults()
	if deps.Background == nil {
		deps.Background = background.Nop{}
	}
	if deps.Bus == nil {
		deps.Bus = bus.Default()
	}
	length, err := types.ParseLength(cfg.SummaryLength)
	if err != nil {
		L_warn("operations: invalid summary length, using standard", "value", cfg.SummaryLength)
		length = types.LengthStandard
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Registry{
		cfg:     cfg,
		deps:    deps,
		grace:   time.Duration(cfg.GracePeriodSeconds * float64(time.Second)),
		dormant: time.Duration(cfg.DormantAfterMinutes * float64(time.Minute)),
		length:  length,
		ops:     make(map[string]*operation),
		byKey:   make(map[opKey]string),
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ctx:     ctx,
		stop:    stop,
	}
}

// TranscriptionOptions select how a recording is transcribed. Empty fields
// fall back to the registry language and the provider registry default.
type TranscriptionOptions struct {
	Language          string `json:"language,omitempty"`
	Provider          string `json:"provider,omitempty"`
	OnDevicePreferred bool   `json:"onDevicePreferred,omitempty"`
}

// StartTranscription starts transcribing audioPath for a recording. If a
// transcription for that recording is already running or paused, it is
// returned instead and nothing new is started.
func (r *Registry) StartTranscription(recordingID, audioPath string, opts TranscriptionOptions) (Snapshot, error) {
	if r.deps.Transcriber == nil {
		return Snapshot{}, fmt.Errorf("operations: no transcriber configured")
	}
	if opts.Language == "" {
		opts.Language = r.cfg.Language
	}
	op, snap, created, err := r.create(recordingID, TypeTranscription)
	if err != nil || !created {
		return snap, err
	}

	r.spawn(op, func(ctx context.Context, tok cancel.Token) (any, string, error) {
		tr, err := r.deps.Transcriber.Run(ctx, transcribe.Request{
			AudioPath:         audioPath,
			Language:          opts.Language,
			Provider:          opts.Provider,
			OnDevicePreferred: opts.OnDevicePreferred,
			Checkpoint:        r.checkpoint(op, tok),
		}, r.progressFunc(op), tok)
		if err != nil {
			return nil, "", err
		}
		return tr, tr.Provider, nil
	}, func(result any) {
		tr := result.(types.Transcript)
		if r.deps.Recordings != nil {
			r.writeBack(recordingID, func(ctx context.Context) error {
				return r.deps.Recordings.SaveTranscript(ctx, recordingID, tr)
			})
		}
		if r.cfg.AutoSummarize {
			if _, err := r.StartSummarization(recordingID, tr.Text, r.length, ""); err != nil {
				L_warn("operations: automatic summarization not started", "recording", recordingID, "error", err)
			}
		}
	})
	return snap, nil
}

// StartSummarization starts summarizing transcript for a recording. An
// empty transcript is loaded from the recordings store when one is
// configured. An empty length uses the configured default and an empty
// provider uses the app default.
func (r *Registry) StartSummarization(recordingID, transcript string, length types.Length, provider string) (Snapshot, error) {
	if r.deps.Summarizer == nil {
		return Snapshot{}, fmt.Errorf("operations: no summarizer configured")
	}
	if length == "" {
		length = r.length
	}
	op, snap, created, err := r.create(recordingID, TypeSummarization)
	if err != nil || !created {
		return snap, err
	}

	r.spawn(op, func(ctx context.Context, tok cancel.Token) (any, string, error) {
		text := transcript
		if text == "" && r.deps.Recordings != nil {
			rec, err := r.deps.Recordings.Get(ctx, recordingID)
			if err != nil {
				return nil, "", err
			}
			if rec.Transcript != nil {
				text = rec.Transcript.Text
			}
		}
		sum, err := r.deps.Summarizer.Run(ctx, summarize.Request{
			Transcript: text,
			Length:     length,
			Provider:   provider,
			Checkpoint: r.checkpoint(op, tok),
		}, r.progressFunc(op), tok)
		if err != nil {
			return nil, "", err
		}
		return sum, sum.Provider, nil
	}, func(result any) {
		sum := result.(types.Summary)
		if r.deps.Recordings != nil {
			r.writeBack(recordingID, func(ctx context.Context) error {
				return r.deps.Recordings.SaveSummary(ctx, recordingID, sum)
			})
		}
	})
	return snap, nil
}

// create registers a new running operation, or returns the existing
// non-terminal one for the same (recording, type). A terminal operation for
// that pair is evicted first. A created operation is counted in r.wg before
// the lock is released, so Close waits for the task spawn starts for it.
func (r *Registry) create(recordingID string, typ Type) (*operation, Snapshot, bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, Snapshot{}, false, ErrClosed
	}

	key := opKey{recordingID: recordingID, typ: typ}
	if id, ok := r.byKey[key]; ok {
		existing := r.ops[id]
		if !existing.status.State.Terminal() {
			snap := existing.snapshot()
			r.mu.Unlock()
			L_debug("operations: returning existing operation", "id", id, "recording", recordingID, "type", typ)
			return existing, snap, false, nil
		}
		r.evictLocked(existing)
	}

	now := time.Now()
	op := &operation{
		id:             uuid.NewString(),
		recordingID:    recordingID,
		typ:            typ,
		status:         Status{State: StateRunning},
		token:          cancel.Never(),
		createdAt:      now,
		updatedAt:      now,
		lastProgressAt: now,
	}
	r.ops[op.id] = op
	r.byKey[key] = op.id
	r.wg.Add(1)
	snap := op.snapshot()
	active := r.activeCountLocked()
	r.mu.Unlock()

	L_info("operations: started", "id", op.id, "recording", recordingID, "type", typ)
	metrics.MetricInc("operations/"+string(typ), "started")
	metrics.MetricSet("operations", "active", int64(active))
	r.publish(snap)
	return op, snap, true, nil
}

// spawn runs work on its own goroutine once a pool slot is free. then runs
// only if the operation completed. The wg slot was taken by create.
func (r *Registry) spawn(op *operation, work func(context.Context, cancel.Token) (any, string, error), then func(any)) {
	tok := r.taskToken(op)
	name := string(op.typ) + ":" + op.recordingID

	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				L_error("operations: task panic", "id", op.id, "panic", rec)
				r.finish(op, nil, "", fmt.Errorf("operation panicked: %v", rec))
			}
		}()

		ctx, release := cancel.Context(r.ctx, tok)
		defer release()

		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.finish(op, nil, "", types.ErrCancelled)
			return
		}
		defer r.sem.Release(1)

		w := r.deps.Background.Begin(name)
		defer r.deps.Background.End(w)

		result, provider, err := work(ctx, tok)
		if r.finish(op, result, provider, err) && err == nil && then != nil {
			then(result)
		}
	}()
}

// taskToken delegates to the operation's current token, so replacing the
// token under the lock cancels the running task.
func (r *Registry) taskToken(op *operation) cancel.Token {
	return cancel.New(func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return op.token.IsCancelled()
	})
}

// checkpoint returns the gate tasks call at chunk boundaries and before
// every attempt: it fails once cancelled and blocks while paused.
func (r *Registry) checkpoint(op *operation, tok cancel.Token) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			if err := cancel.Check(ctx, tok); err != nil {
				return err
			}
			r.mu.RLock()
			wait := op.resumeCh
			r.mu.RUnlock()
			if wait == nil {
				return nil
			}

			L_debug("operations: holding at checkpoint while paused", "id", op.id)
			select {
			case <-wait:
			case <-ctx.Done():
				return types.ErrCancelled
			}
		}
	}
}

// progressFunc applies progress to a running operation and re-wraps it into
// a paused one. Terminal operations ignore it.
func (r *Registry) progressFunc(op *operation) types.ProgressFunc {
	return func(p float64) {
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}

		r.mu.Lock()
		if op.status.State.Terminal() {
			r.mu.Unlock()
			return
		}
		now := time.Now()
		op.status.Progress = p
		op.updatedAt = now
		op.lastProgressAt = now
		snap := op.snapshot()
		r.mu.Unlock()

		r.publish(snap)
	}
}

// finish moves the operation to its terminal state unless it already has
// one. It reports whether the transition happened.
func (r *Registry) finish(op *operation, result any, provider string, err error) bool {
	r.mu.Lock()
	if op.status.State.Terminal() {
		r.mu.Unlock()
		L_debug("operations: late result ignored", "id", op.id, "state", op.status.State)
		return false
	}

	switch {
	case err == nil:
		op.status = Status{State: StateCompleted, Progress: 1, Result: result}
		op.provider = provider
	case types.IsCancelled(err):
		op.token = cancel.Cancelled()
		op.status = Status{State: StateCancelled, Progress: op.status.Progress}
	default:
		op.status = Status{State: StateFailed, Progress: op.status.Progress, Err: err}
	}
	r.terminateLocked(op)
	snap := op.snapshot()
	active := r.activeCountLocked()
	r.mu.Unlock()

	elapsed := snap.FinishedAt.Sub(snap.CreatedAt)
	metrics.MetricOutcome("operations/"+string(op.typ), "finish", string(snap.State))
	metrics.MetricDuration("operations/"+string(op.typ), "elapsed", elapsed)
	metrics.MetricSet("operations", "active", int64(active))
	if err != nil && snap.State == StateFailed {
		L_warn("operations: failed", "id", op.id, "type", op.typ, "error", err)
	} else {
		L_info("operations: finished", "id", op.id, "type", op.typ, "state", snap.State, "provider", snap.Provider, "elapsed", elapsed)
	}
	r.publish(snap)
	return true
}

// terminateLocked stamps the finish time, wakes any paused checkpoint and
// schedules removal after the grace period.
func (r *Registry) terminateLocked(op *operation) {
	now := time.Now()
	op.finishedAt = now
	op.updatedAt = now
	if op.resumeCh != nil {
		close(op.resumeCh)
		op.resumeCh = nil
	}
	if op.grace != nil {
		op.grace.Stop()
	}
	op.grace = time.AfterFunc(r.grace, func() { r.expire(op) })
}

func (r *Registry) expire(op *operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops[op.id] == op && op.status.State.Terminal() {
		r.evictLocked(op)
		L_trace("operations: removed after grace period", "id", op.id)
	}
}

func (r *Registry) evictLocked(op *operation) {
	if op.grace != nil {
		op.grace.Stop()
		op.grace = nil
	}
	delete(r.ops, op.id)
	if r.byKey[op.key()] == op.id {
		delete(r.byKey, op.key())
	}
}

func (r *Registry) activeCountLocked() int {
	n := 0
	for _, op := range r.ops {
		if !op.status.State.Terminal() {
			n++
		}
	}
	return n
}

// Pause freezes a running operation. The task keeps its current provider
// call and holds at its next checkpoint. Returns false unless the
// operation was running.
func (r *Registry) Pause(id string) bool {
	r.mu.Lock()
	op, ok := r.ops[id]
	if !ok || op.status.State != StateRunning {
		r.mu.Unlock()
		return false
	}
	op.status.State = StatePaused
	op.resumeCh = make(chan struct{})
	op.updatedAt = time.Now()
	snap := op.snapshot()
	r.mu.Unlock()

	L_info("operations: paused", "id", id, "progress", snap.Progress)
	r.publish(snap)
	return true
}

// Resume continues a paused operation from its frozen progress. Returns
// false unless the operation was paused.
func (r *Registry) Resume(id string) bool {
	r.mu.Lock()
	op, ok := r.ops[id]
	if !ok || op.status.State != StatePaused {
		r.mu.Unlock()
		return false
	}
	op.status.State = StateRunning
	close(op.resumeCh)
	op.resumeCh = nil
	now := time.Now()
	op.updatedAt = now
	op.lastProgressAt = now
	snap := op.snapshot()
	r.mu.Unlock()

	L_info("operations: resumed", "id", id, "progress", snap.Progress)
	r.publish(snap)
	return true
}

// Cancel swaps the operation's token for a cancelled one and marks it
// cancelled at once; the task observes the token at its next suspension
// point. Returns false for unknown or terminal operations.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	op, ok := r.ops[id]
	if !ok || op.status.State.Terminal() {
		r.mu.Unlock()
		return false
	}
	op.token = cancel.Cancelled()
	op.status = Status{State: StateCancelled, Progress: op.status.Progress}
	r.terminateLocked(op)
	snap := op.snapshot()
	active := r.activeCountLocked()
	r.mu.Unlock()

	L_info("operations: cancelled", "id", id, "type", op.typ, "progress", snap.Progress)
	metrics.MetricOutcome("operations/"+string(op.typ), "finish", string(StateCancelled))
	metrics.MetricSet("operations", "active", int64(active))
	r.publish(snap)
	return true
}

// Get returns a snapshot of one operation.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[id]
	if !ok {
		return Snapshot{}, false
	}
	return op.snapshot(), true
}

// List returns snapshots of every tracked operation keyed by id.
func (r *Registry) List() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Snapshot, len(r.ops))
	for id, op := range r.ops {
		out[id] = op.snapshot()
	}
	return out
}

// Active returns non-terminal operations, oldest first.
func (r *Registry) Active() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.ops))
	for _, op := range r.ops {
		if !op.status.State.Terminal() {
			out = append(out, op.snapshot())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Sweep removes terminal operations whose grace period has passed at now,
// or every terminal operation when EagerSweep is set, and reports running
// operations without progress for the dormancy period to the background
// executor.
func (r *Registry) Sweep(now time.Time) SweepReport {
	var rep SweepReport

	r.mu.Lock()
	for id, op := range r.ops {
		switch {
		case op.status.State.Terminal():
			if r.cfg.EagerSweep || !now.Before(op.finishedAt.Add(r.grace)) {
				r.evictLocked(op)
				rep.Removed = append(rep.Removed, id)
			}
		case op.status.State == StateRunning:
			if now.Sub(op.lastProgressAt) >= r.dormant {
				rep.Dormant = append(rep.Dormant, id)
			}
		}
	}
	r.mu.Unlock()

	sort.Strings(rep.Removed)
	sort.Strings(rep.Dormant)
	if len(rep.Dormant) > 0 {
		r.deps.Background.RestartNeeded(rep.Dormant)
	}
	if len(rep.Removed) > 0 || len(rep.Dormant) > 0 {
		L_debug("operations: sweep", "removed", len(rep.Removed), "dormant", len(rep.Dormant))
	}
	return rep
}

// Close cancels every non-terminal operation, stops the sweeper and waits
// for running tasks to return.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	var snaps []Snapshot
	for _, op := range r.ops {
		if op.grace != nil {
			op.grace.Stop()
			op.grace = nil
		}
		if op.status.State.Terminal() {
			continue
		}
		op.token = cancel.Cancelled()
		op.status = Status{State: StateCancelled, Progress: op.status.Progress}
		op.finishedAt = time.Now()
		op.updatedAt = op.finishedAt
		if op.resumeCh != nil {
			close(op.resumeCh)
			op.resumeCh = nil
		}
		snaps = append(snaps, op.snapshot())
	}
	sweeper := r.sweeper
	r.sweeper = nil
	r.mu.Unlock()

	for _, s := range snaps {
		r.publish(s)
	}
	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
	r.stop()
	r.wg.Wait()
	metrics.MetricSet("operations", "active", 0)
	L_info("operations: registry closed", "cancelled", len(snaps))
	return nil
}

func (r *Registry) publish(s Snapshot) {
	r.deps.Bus.Publish(bus.TopicOperationChanged, s, "operations")
}

// writeBack saves a result to the recordings store. Failures are logged;
// the operation itself has already completed.
func (r *Registry) writeBack(recordingID string, save func(context.Context) error) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFn()
	if err := save(ctx); err != nil {
		L_warn("operations: failed to save result", "recording", recordingID, "error", err)
		metrics.MetricFailWithReason("operations", "writeback", string(types.KindOf(err)))
		return
	}
	metrics.MetricSuccess("operations", "writeback")
}
