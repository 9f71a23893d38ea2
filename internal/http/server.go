// Package http provides the JSON API and websocket event stream.
package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/voxnote/internal/bus"
	. "github.com/roelfdiedericks/voxnote/internal/logging"
	. "github.com/roelfdiedericks/voxnote/internal/metrics"
	"github.com/roelfdiedericks/voxnote/internal/operations"
	"github.com/roelfdiedericks/voxnote/internal/recordings"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Operations is the part of the operations registry the API drives.
type Operations interface {
	StartTranscription(recordingID, audioPath string, opts operations.TranscriptionOptions) (operations.Snapshot, error)
	StartSummarization(recordingID, transcript string, length types.Length, provider string) (operations.Snapshot, error)
	Pause(id string) bool
	Resume(id string) bool
	Cancel(id string) bool
	Get(id string) (operations.Snapshot, bool)
	List() map[string]operations.Snapshot
	Active() []operations.Snapshot
}

// Recordings is the part of the recordings store the API reads.
type Recordings interface {
	Get(ctx context.Context, id string) (recordings.Recording, error)
	List(ctx context.Context) ([]recordings.Recording, error)
	Add(ctx context.Context, r recordings.Recording) (recordings.Recording, error)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen string // e.g. "127.0.0.1:7337", ":0" picks a free port
}

// Deps are the collaborators behind the API. Recordings may be nil.
type Deps struct {
	Operations Operations
	Recordings Recordings
	Bus        *bus.Bus
}

// Server represents the HTTP server.
type Server struct {
	server       *http.Server
	ops          Operations
	recs         Recordings
	bus          *bus.Bus
	upgrader     websocket.Upgrader
	shutdownChan chan struct{}
	wg           sync.WaitGroup

	mu   sync.RWMutex
	addr string
}

// NewServer creates a new HTTP server instance.
func NewServer(cfg ServerConfig, deps Deps) (*Server, error) {
	if deps.Operations == nil {
		return nil, fmt.Errorf("http: operations registry is required")
	}
	listen := cfg.Listen
	if listen == "" {
		listen = "127.0.0.1:7337"
	}
	b := deps.Bus
	if b == nil {
		b = bus.Default()
	}

	s := &Server{
		ops:          deps.Operations,
		recs:         deps.Recordings,
		bus:          b,
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHostOrigin,
		},
	}
	s.server = &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(s.stripHeaders(h))
	}

	mux.HandleFunc("GET /api/operations", wrap(s.handleListOperations))
	mux.HandleFunc("GET /api/operations/{id}", wrap(s.handleGetOperation))
	mux.HandleFunc("POST /api/operations/{id}/{action}", wrap(s.handleOperationAction))
	mux.HandleFunc("POST /api/transcriptions", wrap(s.handleStartTranscription))
	mux.HandleFunc("POST /api/summaries", wrap(s.handleStartSummarization))
	mux.HandleFunc("GET /api/recordings", wrap(s.handleListRecordings))
	mux.HandleFunc("GET /api/recordings/{id}", wrap(s.handleGetRecording))
	mux.HandleFunc("GET /api/metrics", wrap(s.handleMetrics))
	mux.HandleFunc("GET /api/ws", s.logRequest(s.handleWebSocket))

	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("http: server starting", "addr", ln.Addr().String())

		err := s.server.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			L_error("http: server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Stop gracefully shuts down the HTTP server and closes websocket streams.
func (s *Server) Stop() error {
	close(s.shutdownChan)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("http: shutdown error", "error", err)
		return err
	}

	s.wg.Wait()
	L_info("http: server stopped")
	return nil
}

// logRequest wraps an HTTP handler to log requests.
func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		MetricInc("http", "requests")
		MetricOutcome("http", "status", strconv.Itoa(lw.statusCode/100)+"xx")
		L_trace("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"client", clientIP(r),
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// loggingResponseWriter wraps ResponseWriter to capture status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (lw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}

// Hijack is needed by the websocket upgrader.
func (lw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("http: response writer does not support hijacking")
	}
	return h.Hijack()
}

// stripHeaders removes fingerprinting headers.
func (s *Server) stripHeaders(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Del("Server")
		w.Header().Del("X-Powered-By")

		handler(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// sameHostOrigin accepts non-browser clients and browsers on the same host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	i := strings.Index(origin, "://")
	if i < 0 {
		return false
	}
	return strings.EqualFold(origin[i+3:], r.Host)
}
