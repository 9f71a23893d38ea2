package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/metrics"
	"github.com/roelfdiedericks/voxnote/internal/operations"
	"github.com/roelfdiedericks/voxnote/internal/recordings"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const maxBodyBytes = 1 << 20

// apiError is the JSON body of every non-2xx response.
type apiError struct {
	Error string     `json:"error"`
	Kind  types.Kind `json:"kind,omitempty"`
}

// TranscriptionRequest is the body of POST /api/transcriptions. Either
// RecordingID or Path must be set; a path not yet in the recordings store
// is added to it. An empty language falls back to the recording's, then to
// the registry default.
type TranscriptionRequest struct {
	RecordingID       string `json:"recordingId,omitempty"`
	Path              string `json:"path,omitempty"`
	Language          string `json:"language,omitempty"`
	Provider          string `json:"provider,omitempty"`
	OnDevicePreferred bool   `json:"onDevicePreferred,omitempty"`
}

// SummaryRequest is the body of POST /api/summaries. An empty transcript
// is loaded from the recording.
type SummaryRequest struct {
	RecordingID string `json:"recordingId"`
	Transcript  string `json:"transcript,omitempty"`
	Length      string `json:"length,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_debug("http: response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// writeErr maps the error taxonomy onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := types.KindOf(err)
	switch {
	case errors.Is(err, operations.ErrClosed):
		status = http.StatusServiceUnavailable
	case kind == types.KindNotFound:
		status = http.StatusNotFound
	case kind == types.KindPermissionDenied:
		status = http.StatusForbidden
	case kind == types.KindEmptyText:
		status = http.StatusUnprocessableEntity
	}
	if kind == types.KindUnknown {
		kind = ""
	}
	writeJSON(w, status, apiError{Error: err.Error(), Kind: kind})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleListOperations handles GET /api/operations. With ?active=true only
// running and paused operations are returned.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	var out []operations.Snapshot
	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		out = s.ops.Active()
	} else {
		all := s.ops.List()
		out = make([]operations.Snapshot, 0, len(all))
		for _, snap := range all {
			out = append(out, snap)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetOperation handles GET /api/operations/{id}.
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, ok := s.ops.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleOperationAction handles POST /api/operations/{id}/{pause|resume|cancel}.
// An illegal transition for a known operation is a conflict.
func (s *Server) handleOperationAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	var apply func(string) bool
	switch action {
	case "pause":
		apply = s.ops.Pause
	case "resume":
		apply = s.ops.Resume
	case "cancel":
		apply = s.ops.Cancel
	default:
		writeError(w, http.StatusNotFound, "unknown action: "+action)
		return
	}

	snap, ok := s.ops.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found: "+id)
		return
	}
	if !apply(id) {
		writeJSON(w, http.StatusConflict, apiError{Error: "cannot " + action + " operation in state " + string(snap.State)})
		return
	}

	L_debug("http: operation action", "id", id, "action", action)
	snap, _ = s.ops.Get(id)
	writeJSON(w, http.StatusOK, snap)
}

// handleStartTranscription handles POST /api/transcriptions.
func (s *Server) handleStartTranscription(w http.ResponseWriter, r *http.Request) {
	var req TranscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RecordingID == "" && req.Path == "" {
		writeError(w, http.StatusBadRequest, "recordingId or path is required")
		return
	}

	recordingID, path, language := req.RecordingID, req.Path, req.Language
	if s.recs != nil {
		var rec recordings.Recording
		var err error
		if recordingID != "" {
			rec, err = s.recs.Get(r.Context(), recordingID)
		} else {
			rec, err = s.recs.Add(r.Context(), recordings.Recording{Path: path, Language: language})
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		recordingID, path = rec.ID, rec.Path
		if language == "" {
			language = rec.Language
		}
	} else if path == "" {
		writeError(w, http.StatusBadRequest, "path is required without a recordings store")
		return
	} else if recordingID == "" {
		recordingID = path
	}

	snap, err := s.ops.StartTranscription(recordingID, path, operations.TranscriptionOptions{
		Language:          language,
		Provider:          req.Provider,
		OnDevicePreferred: req.OnDevicePreferred,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleStartSummarization handles POST /api/summaries.
func (s *Server) handleStartSummarization(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RecordingID == "" {
		writeError(w, http.StatusBadRequest, "recordingId is required")
		return
	}
	if req.Transcript == "" && s.recs == nil {
		writeError(w, http.StatusBadRequest, "transcript is required without a recordings store")
		return
	}

	var length types.Length
	if req.Length != "" {
		l, err := types.ParseLength(req.Length)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		length = l
	}

	snap, err := s.ops.StartSummarization(req.RecordingID, req.Transcript, length, req.Provider)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleListRecordings handles GET /api/recordings.
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.recs == nil {
		writeError(w, http.StatusNotFound, "no recordings store configured")
		return
	}
	recs, err := s.recs.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if recs == nil {
		recs = []recordings.Recording{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleGetRecording handles GET /api/recordings/{id}.
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	if s.recs == nil {
		writeError(w, http.StatusNotFound, "no recordings store configured")
		return
	}
	rec, err := s.recs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleMetrics handles GET /api/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.GetInstance().Snapshot())
}
