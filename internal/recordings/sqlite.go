package recordings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/paths"
	"github.com/roelfdiedericks/voxnote/internal/types"
)

const currentSchemaVersion = 1

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := paths.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	L_info("recordings: store opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	var version int
	if err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version); err != nil {
		version = 0
	}
	if version >= currentSchemaVersion {
		return nil
	}

	migrations := []func(*sql.DB) error{migrateV1}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		L_debug("recordings: applied migration", "version", i+1)
	}
	return nil
}

func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		transcript TEXT,
		summary TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

const selectColumns = `id, path, title, language, created_at, updated_at, transcript, summary`

// Get returns the recording with id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, types.NewError(types.KindNotFound, "recordings.get", "recording "+id+" not found")
	}
	return r, err
}

// FindByPath returns the recording stored for an audio path.
func (s *SQLiteStore) FindByPath(ctx context.Context, path string) (Recording, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM recordings WHERE path = ?`, path)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, false, nil
	}
	if err != nil {
		return Recording{}, false, err
	}
	return r, true, nil
}

// List returns every recording, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Recording, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM recordings ORDER BY created_at DESC, id`)
}

// Pending lists recordings missing a transcript or summary, oldest first.
func (s *SQLiteStore) Pending(ctx context.Context) ([]Recording, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM recordings
		WHERE transcript IS NULL OR summary IS NULL
		ORDER BY created_at, id`)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Recording, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Add inserts r. A recording for the same path is returned unchanged.
func (s *SQLiteStore) Add(ctx context.Context, r Recording) (Recording, error) {
	if strings.TrimSpace(r.Path) == "" {
		return Recording{}, errors.New("recording path is empty")
	}
	if existing, ok, err := s.FindByPath(ctx, r.Path); err != nil {
		return Recording{}, err
	} else if ok {
		return existing, nil
	}

	now := time.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Title == "" {
		r.Title = strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path))
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	transcript, err := encodeJSON(r.Transcript)
	if err != nil {
		return Recording{}, err
	}
	summary, err := encodeJSON(r.Summary)
	if err != nil {
		return Recording{}, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO recordings (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Path, r.Title, r.Language, r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(), transcript, summary)
	if err != nil {
		return Recording{}, fmt.Errorf("insert recording: %w", err)
	}
	L_debug("recordings: added", "id", r.ID, "path", r.Path)
	return r, nil
}

// SaveTranscript stores t and clears any summary derived from an older one.
func (s *SQLiteStore) SaveTranscript(ctx context.Context, id string, t types.Transcript) error {
	data, err := encodeJSON(&t)
	if err != nil {
		return err
	}
	return s.update(ctx, id, `UPDATE recordings SET transcript = ?, summary = NULL, updated_at = ? WHERE id = ?`, data)
}

// SaveSummary stores sum.
func (s *SQLiteStore) SaveSummary(ctx context.Context, id string, sum types.Summary) error {
	data, err := encodeJSON(&sum)
	if err != nil {
		return err
	}
	return s.update(ctx, id, `UPDATE recordings SET summary = ?, updated_at = ? WHERE id = ?`, data)
}

func (s *SQLiteStore) update(ctx context.Context, id, q string, data any) error {
	res, err := s.db.ExecContext(ctx, q, data, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("update recording %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewError(types.KindNotFound, "recordings.update", "recording "+id+" not found")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (Recording, error) {
	var (
		r                   Recording
		created, updated    int64
		transcript, summary sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Path, &r.Title, &r.Language, &created, &updated, &transcript, &summary); err != nil {
		return Recording{}, err
	}
	r.CreatedAt = time.UnixMilli(created)
	r.UpdatedAt = time.UnixMilli(updated)

	if transcript.Valid {
		var t types.Transcript
		if err := json.Unmarshal([]byte(transcript.String), &t); err != nil {
			return Recording{}, fmt.Errorf("decode transcript of %s: %w", r.ID, err)
		}
		r.Transcript = &t
	}
	if summary.Valid {
		var sum types.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return Recording{}, fmt.Errorf("decode summary of %s: %w", r.ID, err)
		}
		r.Summary = &sum
	}
	return r, nil
}

// encodeJSON returns nil for a nil value so the column stays NULL.
func encodeJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
