package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"inverter-drive/internal/drive"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

type Run struct {
	ID         string
	DriveID    string
	StartedAt  time.Time
	FinishedAt *time.Time
	TimeStep   float64 // s
	Ticks      uint64
	Status     string
	Summary    string
}

type FaultEvent struct {
	ID      int64
	RunID   string
	From    drive.FaultKind
	To      drive.FaultKind
	Cause   drive.TransitionCause
	SimTime float64
	At      time.Time
}

// 定宽时间格式, 字符串排序即时间排序
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the sqlite run journal.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// 单连接: :memory: 库按连接隔离, 写入也无需并发
	db.SetMaxOpenConns(1)

	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    drive_id TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    time_step REAL NOT NULL,
    ticks INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    summary TEXT DEFAULT ''
);

CREATE TABLE IF NOT EXISTS fault_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id),
    from_kind TEXT NOT NULL,
    to_kind TEXT NOT NULL,
    cause TEXT NOT NULL,
    sim_time REAL NOT NULL,
    timestamp TEXT NOT NULL
);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateRun inserts a running run and returns its new id.
func (s *Store) CreateRun(driveID string, timeStep float64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, drive_id, started_at, time_step, ticks, status, summary) VALUES (?, ?, ?, ?, 0, ?, '')`,
		id, driveID, time.Now().UTC().Format(timeLayout), timeStep, StatusRunning,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FinishRun(id string, ticks uint64, status, summary string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, ticks = ?, status = ?, summary = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), int64(ticks), status, summary, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func (s *Store) RecordFault(runID string, t drive.FaultTransition) error {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO fault_events (run_id, from_kind, to_kind, cause, sim_time, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, t.From.String(), t.To.String(), string(t.Cause), t.SimTime, at.UTC().Format(timeLayout),
	)
	return err
}

// GetRun returns nil, nil when the run does not exist.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, drive_id, started_at, finished_at, time_step, ticks, status, summary FROM runs WHERE id = ?`, id,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, drive_id, started_at, finished_at, time_step, ticks, status, summary FROM runs ORDER BY started_at DESC, _rowid_ DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	var ticks int64
	if err := sc.Scan(&r.ID, &r.DriveID, &startedAt, &finishedAt, &r.TimeStep, &ticks, &r.Status, &r.Summary); err != nil {
		return nil, err
	}
	r.Ticks = uint64(ticks)
	var err error
	if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, err
		}
		r.FinishedAt = &t
	}
	return &r, nil
}

// FaultEvents returns a run's transitions in the order they happened.
func (s *Store) FaultEvents(runID string) ([]FaultEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, from_kind, to_kind, cause, sim_time, timestamp FROM fault_events WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []FaultEvent{}
	for rows.Next() {
		var e FaultEvent
		var from, to, cause, ts string
		if err := rows.Scan(&e.ID, &e.RunID, &from, &to, &cause, &e.SimTime, &ts); err != nil {
			return nil, err
		}
		if e.From, err = drive.ParseFaultKind(from); err != nil {
			return nil, err
		}
		if e.To, err = drive.ParseFaultKind(to); err != nil {
			return nil, err
		}
		e.Cause = drive.TransitionCause(cause)
		if e.At, err = time.Parse(timeLayout, ts); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
