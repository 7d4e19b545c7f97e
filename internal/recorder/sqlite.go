package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"AngelLink/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists desk history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS link_attempts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			attempt_id TEXT,
			outcome    TEXT,
			channel    TEXT,
			note       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_ts ON link_attempts(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_id ON link_attempts(attempt_id)`,

		`CREATE TABLE IF NOT EXISTS engine_toggles (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			target    INTEGER,
			guidance  TEXT,
			success   INTEGER,
			note      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_toggles_ts ON engine_toggles(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordAttempt(evt *AttemptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO link_attempts
		(timestamp, attempt_id, outcome, channel, note)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.AttemptID, string(evt.Outcome), string(evt.Channel), evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordToggle(evt *ToggleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO engine_toggles
		(timestamp, target, guidance, success, note)
		VALUES (?,?,?,?,?)`,
		time.Now().Unix(), evt.Target, string(evt.Guidance), evt.Success, evt.Note,
	)
	return err
}

// AttemptOutcomes returns the recorded outcomes of an attempt in insertion order.
func (r *SQLiteRecorder) AttemptOutcomes(attemptID string) ([]model.LinkOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT outcome FROM link_attempts WHERE attempt_id = ? ORDER BY id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.LinkOutcome
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		out = append(out, model.LinkOutcome(o))
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
