package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/intake/internal/db"
)

// Repository persists jobs. All timestamps are stored as unix milliseconds.
type Repository struct {
	db    *db.DB
	lease time.Duration
}

func NewRepository(d *db.DB) *Repository { return &Repository{db: d, lease: DefaultLease} }

// SetLease changes how long a running job is owned by its worker.
func (r *Repository) SetLease(d time.Duration) {
	if d > 0 {
		r.lease = d
	}
}

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *Repository) Enqueue(ctx context.Context, j *Job) (int64, error) {
	if j == nil {
		return 0, errors.New("job is nil")
	}
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = DefaultMaxAttempts
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now()
	}
	now := time.Now().UTC().UnixMilli()
	q := `INSERT INTO jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`
	res, err := r.db.Exec(ctx, q, j.Type, string(j.Payload), StatusQueued, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().UnixMilli(), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	j.ID = id
	j.Status = StatusQueued
	return id, nil
}

// FetchNext fetches the next available job respecting priority and schedule.
// A running job whose lease expired counts as available.
func (r *Repository) FetchNext(ctx context.Context) (*Job, error) {
	q := `SELECT id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated
		FROM jobs
		WHERE ((status IN (?, ?) AND (next_try_at IS NULL OR next_try_at <= ?)) OR (status = ? AND updated <= ?))
			AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1`
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, q, StatusQueued, StatusRetry, now.UnixMilli(),
		StatusRunning, now.Add(-r.lease).UnixMilli(), now.UnixMilli())
	var (
		j           Job
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch next job: %w", err)
	}
	j.ScheduledAt = time.UnixMilli(scheduledAt).UTC()
	j.Created = time.UnixMilli(created).UTC()
	j.Updated = time.UnixMilli(updated).UTC()
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.UnixMilli(nextTry.Int64).UTC()
		j.NextTryAt = &t
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}
	return &j, nil
}

// Claim marks a fetched job as running so other workers skip it. It reports
// false if another worker claimed it first. The row must be unchanged since
// it was fetched, and updated always moves forward so a reclaim is detected.
func (r *Repository) Claim(ctx context.Context, j *Job) (bool, error) {
	res, err := r.db.Exec(ctx, `UPDATE jobs SET status = ?, updated = MAX(?, updated + 1)
		WHERE id = ? AND status = ? AND updated = ?`,
		StatusRunning, time.Now().UTC().UnixMilli(), j.ID, j.Status, j.Updated.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", j.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RequeueRunning returns every running job to retry. Call it before any
// worker starts, when running rows can only be left over from a previous
// process.
func (r *Repository) RequeueRunning(ctx context.Context) (int64, error) {
	res, err := r.db.Exec(ctx, `UPDATE jobs SET status = ?, next_try_at = NULL, updated = ? WHERE status = ?`,
		StatusRetry, time.Now().UTC().UnixMilli(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("requeue running jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.UTC().UnixMilli()
	}
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.db.Exec(ctx, q, j.Status, j.Attempts, nextTry, j.LastError, time.Now().UTC().UnixMilli(), j.ID)
	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *Repository) MoveToDeadLetter(ctx context.Context, j *Job) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().UnixMilli()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	})
}

// Stats counts jobs by status plus dead-lettered jobs.
type Stats struct {
	Pending    int64
	Done       int64
	DeadLetter int64
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	q := `SELECT
		(SELECT COUNT(*) FROM jobs WHERE status IN ('queued', 'retry', 'running')),
		(SELECT COUNT(*) FROM jobs WHERE status = 'done'),
		(SELECT COUNT(*) FROM dead_letter_jobs)`
	if err := r.db.QueryRow(ctx, q).Scan(&s.Pending, &s.Done, &s.DeadLetter); err != nil {
		return s, fmt.Errorf("job stats: %w", err)
	}
	return s, nil
}
