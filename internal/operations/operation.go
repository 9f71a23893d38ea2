package operations

import (
	"time"

	"github.com/roelfdiedericks/voxnote/internal/cancel"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Type is the kind of work an operation does.
type Type string

const (
	TypeTranscription Type = "transcription"
	TypeSummarization Type = "summarization"
)

// ParseType parses an operation type name.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeTranscription, TypeSummarization:
		return Type(s), true
	}
	return "", false
}

// State is the lifecycle state of an operation.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Status is the state together with what it carries: progress while
// running or paused, the result when completed, the error when failed.
type Status struct {
	State    State
	Progress float64
	Result   any // types.Transcript or types.Summary
	Err      error
}

// operation is the registry-owned mutable record. Every field is guarded by
// the registry mutex.
type operation struct {
	id          string
	recordingID string
	typ         Type
	status      Status
	provider    string
	token       cancel.Token

	createdAt      time.Time
	updatedAt      time.Time
	finishedAt     time.Time
	lastProgressAt time.Time

	resumeCh chan struct{} // non-nil while paused, closed on resume or cancel
	grace    *time.Timer
}

func (op *operation) key() opKey {
	return opKey{recordingID: op.recordingID, typ: op.typ}
}

type opKey struct {
	recordingID string
	typ         Type
}

// Snapshot is a read-only copy of an operation.
type Snapshot struct {
	ID          string            `json:"id"`
	RecordingID string            `json:"recordingId"`
	Type        Type              `json:"type"`
	State       State             `json:"state"`
	Progress    float64           `json:"progress"`
	Provider    string            `json:"provider,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   types.Kind        `json:"errorKind,omitempty"`
	Transcript  *types.Transcript `json:"transcript,omitempty"`
	Summary     *types.Summary    `json:"summary,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	FinishedAt  *time.Time        `json:"finishedAt,omitempty"`
}

// Status rebuilds the status value from the snapshot.
func (s Snapshot) Status() Status {
	st := Status{State: s.State, Progress: s.Progress}
	switch {
	case s.Transcript != nil:
		st.Result = *s.Transcript
	case s.Summary != nil:
		st.Result = *s.Summary
	}
	if s.Error != "" {
		st.Err = types.NewError(s.ErrorKind, string(s.Type), s.Error)
	}
	return st
}

func (op *operation) snapshot() Snapshot {
	s := Snapshot{
		ID:          op.id,
		RecordingID: op.recordingID,
		Type:        op.typ,
		State:       op.status.State,
		Progress:    op.status.Progress,
		Provider:    op.provider,
		CreatedAt:   op.createdAt,
		UpdatedAt:   op.updatedAt,
	}
	if !op.finishedAt.IsZero() {
		t := op.finishedAt
		s.FinishedAt = &t
	}
	switch r := op.status.Result.(type) {
	case types.Transcript:
		s.Transcript = &r
	case types.Summary:
		s.Summary = &r
	}
	if op.status.Err != nil {
		s.Error = op.status.Err.Error()
		s.ErrorKind = types.KindOf(op.status.Err)
	}
	return s
}
