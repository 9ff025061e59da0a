// Package dbmanager keeps the bookkeeping of workers and running jobs.
// Workers report to it through the update queue; a single consumer applies
// the updates to an embedded SQLite database.
package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/OphidiaBigData/ophidia-analytics-framework-sub012/pkg/protocol"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var ErrUnknownWorker = errors.New("unknown or down worker")

const (
	StatusUp   = "up"
	StatusDown = "down"
)

type Worker struct {
	ID          int64  `db:"id" json:"id"`
	Host        string `db:"ip_address" json:"ip_address"`
	Port        int    `db:"port" json:"port"`
	DeleteQueue string `db:"delete_queue" json:"delete_queue"`
	Status      string `db:"status" json:"status"`
	PID         int    `db:"pid" json:"pid"`
	Count       int    `db:"count" json:"count"`
}

func (w Worker) Identity() protocol.WorkerIdentity {
	return protocol.WorkerIdentity{Host: w.Host, Port: w.Port, DeleteQueue: w.DeleteQueue}
}

// Job is a job running on a worker.
type Job struct {
	ID         int64  `db:"id" json:"id"`
	WorkflowID int    `db:"workflow_id" json:"workflow_id"`
	JobID      int    `db:"job_id" json:"job_id"`
	WorkerID   int64  `db:"worker_id" json:"worker_id"`
	Host       string `db:"ip_address" json:"ip_address"`
	Port       int    `db:"port" json:"port"`
}

const schema = `
CREATE TABLE IF NOT EXISTS worker (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ip_address TEXT NOT NULL,
	port INTEGER NOT NULL,
	delete_queue TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('up','down')),
	pid INTEGER NOT NULL DEFAULT 0,
	count INTEGER NOT NULL DEFAULT 0,
	UNIQUE (ip_address, port, delete_queue)
);
CREATE TABLE IF NOT EXISTS job (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workflow_id INTEGER NOT NULL,
	job_id INTEGER NOT NULL,
	worker_id INTEGER NOT NULL REFERENCES worker(id) ON DELETE CASCADE,
	UNIQUE (workflow_id, job_id, worker_id)
);
CREATE INDEX IF NOT EXISTS idx_job_workflow ON job(workflow_id, job_id);
`

type Store struct {
	db *sqlx.DB
}

// Time a statement waits for a lock held by another connection before
// failing with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// Open opens, and creates if needed, the database at path. The store uses
// a single connection so that every write is serialized.
func Open(path string) (*Store, error) {
	return open(path, busyTimeout)
}

func open(path string, timeout time.Duration) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d", path, timeout.Milliseconds())
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database for listing. It neither creates
// the file nor touches the schema, so the database manager stays the only
// writer.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) workerID(ctx context.Context, q sqlx.QueryerContext, id protocol.WorkerIdentity) (int64, error) {
	var workerID int64
	err := sqlx.GetContext(ctx, q, &workerID,
		`SELECT id FROM worker WHERE ip_address = ? AND port = ? AND delete_queue = ?`,
		id.Host, id.Port, id.DeleteQueue)
	return workerID, err
}

func (s *Store) upWorkerID(ctx context.Context, q sqlx.QueryerContext, id protocol.WorkerIdentity) (int64, error) {
	var workerID int64
	err := sqlx.GetContext(ctx, q, &workerID,
		`SELECT id FROM worker WHERE ip_address = ? AND port = ? AND delete_queue = ? AND status = 'up'`,
		id.Host, id.Port, id.DeleteQueue)
	return workerID, err
}

// InsertJob records a job started by a worker. It returns false if the
// worker is unknown or down, in which case nothing is recorded.
func (s *Store) InsertJob(ctx context.Context, id protocol.WorkerIdentity, workflow, job int) (bool, error) {
	workerID, err := s.upWorkerID(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO job (workflow_id, job_id, worker_id) VALUES (?, ?, ?)`,
		workflow, job, workerID)
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveJob forgets a job on whichever worker it was recorded.
func (s *Store) RemoveJob(ctx context.Context, workflow, job int) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM job WHERE workflow_id = ? AND job_id = ?`,
		workflow, job)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// WorkerUp records a worker as up, updating its pid and thread count if it
// is already known.
func (s *Store) WorkerUp(ctx context.Context, id protocol.WorkerIdentity, pid, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker (ip_address, port, delete_queue, status, pid, count)
		VALUES (?, ?, ?, 'up', ?, ?)
		ON CONFLICT (ip_address, port, delete_queue)
		DO UPDATE SET status = 'up', pid = excluded.pid, count = excluded.count`,
		id.Host, id.Port, id.DeleteQueue, pid, count)
	return err
}

// WorkerDown removes the jobs of a worker and marks it down, atomically.
// The worker row is kept. Unknown workers are ignored.
func (s *Store) WorkerDown(ctx context.Context, id protocol.WorkerIdentity) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	workerID, err := s.workerID(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job WHERE worker_id = ?`, workerID); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE worker SET status = 'down', pid = 0, count = 0 WHERE id = ?`,
		workerID); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *Store) Workers(ctx context.Context) ([]Worker, error) {
	workers := []Worker{}
	err := s.db.SelectContext(ctx, &workers,
		`SELECT id, ip_address, port, delete_queue, status, pid, count FROM worker ORDER BY id`)
	return workers, err
}

func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	jobs := []Job{}
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT job.id, job.workflow_id, job.job_id, job.worker_id, worker.ip_address, worker.port
		FROM job JOIN worker ON worker.id = job.worker_id
		ORDER BY job.workflow_id, job.job_id`)
	return jobs, err
}

// Apply performs the transition requested by an update.
func (s *Store) Apply(ctx context.Context, update protocol.Update) error {
	switch update.Mode {
	case protocol.ModeInsertJob:
		ok, err := s.InsertJob(ctx, update.Worker, update.WorkflowID, update.JobID)
		if err == nil && !ok {
			return fmt.Errorf("%w: worker %s", ErrUnknownWorker, update.Worker)
		}
		return err

	case protocol.ModeRemoveJob:
		_, err := s.RemoveJob(ctx, update.WorkflowID, update.JobID)
		return err

	case protocol.ModeWorkerUp:
		return s.WorkerUp(ctx, update.Worker, update.PID, update.Count)

	case protocol.ModeWorkerDown:
		ok, err := s.WorkerDown(ctx, update.Worker)
		if err == nil && !ok {
			return fmt.Errorf("%w: worker %s", ErrUnknownWorker, update.Worker)
		}
		return err
	}
	return fmt.Errorf("unsupported update mode %v", update.Mode)
}

// Transient reports whether err is caused by lock contention on the
// database and the write should be retried.
func Transient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
