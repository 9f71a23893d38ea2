package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
	"github.com/roelfdiedericks/voxnote/internal/paths"
)

const (
	saveInterval  = 5 * time.Minute
	pruneMaxAge   = 7 * 24 * time.Hour
	dbOpenOptions = "?_busy_timeout=5000"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS metrics (
	path       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (path, kind)
)`

// Open enables persistence to the SQLite file at dbPath: previously saved
// counters are loaded, rows older than a week are pruned, and a background
// loop saves every few minutes until Close.
func (m *Manager) Open(dbPath string) error {
	m.mu.Lock()
	if m.db != nil {
		m.mu.Unlock()
		return fmt.Errorf("metrics: persistence already open")
	}
	m.mu.Unlock()

	if err := paths.EnsureParentDir(dbPath); err != nil {
		return fmt.Errorf("metrics: create directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		return fmt.Errorf("metrics: open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("metrics: create schema: %w", err)
	}

	pruned, err := prune(db, time.Now().Add(-pruneMaxAge))
	if err != nil {
		L_warn("metrics: prune failed", "error", err)
	} else if pruned > 0 {
		L_debug("metrics: pruned stale rows", "count", pruned)
	}

	loaded, err := m.load(db)
	if err != nil {
		L_warn("metrics: failed to load persisted data", "error", err)
	} else if loaded > 0 {
		L_info("metrics: loaded persisted data", "count", loaded)
	}

	m.mu.Lock()
	m.db = db
	m.stopSave = make(chan struct{})
	m.saveDone = make(chan struct{})
	m.mu.Unlock()

	go m.saveLoop()
	return nil
}

// Close stops the save loop, writes a final save and closes the database.
// It is a no-op when persistence was never opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	db := m.db
	stop, done := m.stopSave, m.saveDone
	m.db = nil
	m.mu.Unlock()
	if db == nil {
		return nil
	}

	close(stop)
	<-done
	if err := m.save(db); err != nil {
		L_warn("metrics: final save failed", "error", err)
	}
	return db.Close()
}

func (m *Manager) saveLoop() {
	m.mu.RLock()
	db, stop, done := m.db, m.stopSave, m.saveDone
	m.mu.RUnlock()
	defer close(done)

	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.save(db); err != nil {
				L_warn("metrics: periodic save failed", "error", err)
			}
		case <-stop:
			return
		}
	}
}

// save writes every counter-like metric. Timings are process-local and
// only their aggregates are kept.
func (m *Manager) save(db *sql.DB) error {
	snaps := m.Snapshot()
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO metrics (path, kind, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(path, kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, s := range snaps {
		data, err := json.Marshal(s.Data)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.Exec(s.Path, string(s.Kind), data, now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) load(db *sql.DB) (int, error) {
	rows, err := db.Query(`SELECT path, kind, data FROM metrics`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for rows.Next() {
		var path, kind string
		var data []byte
		if err := rows.Scan(&path, &kind, &data); err != nil {
			return n, err
		}
		if m.restore(path, Kind(kind), data) {
			n++
		}
	}
	return n, rows.Err()
}

// restore must be called with m.mu held.
func (m *Manager) restore(path string, kind Kind, data []byte) bool {
	switch kind {
	case KindTiming:
		var d TimingData
		if json.Unmarshal(data, &d) != nil || d.Count == 0 {
			return false
		}
		m.timings[path] = &timing{
			count:   d.Count,
			total:   time.Duration(d.AvgMs * float64(d.Count) * float64(time.Millisecond)),
			min:     time.Duration(d.MinMs * float64(time.Millisecond)),
			max:     time.Duration(d.MaxMs * float64(time.Millisecond)),
			last:    time.Duration(d.LastMs * float64(time.Millisecond)),
			samples: make([]time.Duration, 0, maxSamples),
		}
	case KindCounter:
		var d ValueData
		if json.Unmarshal(data, &d) != nil {
			return false
		}
		m.counters[path] = &counter{value: d.Value}
	case KindSuccessFail:
		var d SuccessFailData
		if json.Unmarshal(data, &d) != nil {
			return false
		}
		reasons := d.Reasons
		if reasons == nil {
			reasons = make(map[string]int64)
		}
		m.successFail[path] = &successFail{success: d.Success, failures: d.Failures, reasons: reasons}
	case KindOutcome:
		var d OutcomeData
		if json.Unmarshal(data, &d) != nil {
			return false
		}
		counts := d.Outcomes
		if counts == nil {
			counts = make(map[string]int64)
		}
		m.outcomes[path] = &outcome{counts: counts, total: d.Total, last: d.Last}
	default:
		// gauges describe the current process only
		return false
	}
	return true
}

func prune(db *sql.DB, before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM metrics WHERE updated_at < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
