package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
)

// DefaultFetchLimit bounds the work done per dispatcher tick.
const DefaultFetchLimit = 10

type TaskRepositoryInterface interface {
	Enqueue(ctx context.Context, task model.NewTask) (string, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.QueueTask, error)
	Claim(ctx context.Context, id, workerID string, now, leaseUntil time.Time) (bool, error)
	RequeueExpiredClaims(ctx context.Context, now time.Time) (int, error)
	UpdateStatus(ctx context.Context, id string, status model.TaskStatus, fields model.TaskUpdate) error
	CancelBySubject(ctx context.Context, subjectID string) (int, error)

	GetByID(ctx context.Context, id string) (*model.QueueTask, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*model.QueueTask, error)
}

type TaskRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r *TaskRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

const taskColumns = `id, subject_id, type, status, scheduled_at, created_at, updated_at,
        retry_count, COALESCE(error, ''), payload, COALESCE(dedupe_key, ''),
        COALESCE(claimed_by, ''), lease_expires_at`

// Enqueue inserts a PENDING task. A task carrying a dedupe key that is already
// open returns the existing id instead of inserting a second row.
func (r *TaskRepository) Enqueue(ctx context.Context, task model.NewTask) (string, error) {
	payload, err := model.EncodePayload(task.Payload)
	if err != nil {
		return "", err
	}

	if task.DedupeKey != "" {
		var existing string
		err := r.DB.QueryRowContext(ctx, `
            SELECT id FROM queue_tasks
            WHERE dedupe_key = $1 AND status IN ('PENDING', 'RETRY', 'CLAIMED')
            LIMIT 1
        `, task.DedupeKey).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if err != sql.ErrNoRows {
			return "", fmt.Errorf("enqueue dedupe lookup: %w", err)
		}
	}

	now := r.now()
	id := uuid.NewString()
	query := `
        INSERT INTO queue_tasks (id, subject_id, type, status, scheduled_at, created_at, updated_at, retry_count, payload, dedupe_key)
        VALUES ($1, $2, $3, 'PENDING', $4, $5, $5, 0, $6, NULLIF($7, ''))
        ON CONFLICT DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query, id, task.SubjectID, task.Type(), task.ScheduledAt, now, payload, task.DedupeKey)
	if err != nil {
		return "", fmt.Errorf("enqueue %s task: %w", task.Type(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 && task.DedupeKey != "" {
		// Lost a race against a concurrent enqueue with the same key.
		var existing string
		if err := r.DB.QueryRowContext(ctx, `
            SELECT id FROM queue_tasks
            WHERE dedupe_key = $1 AND status IN ('PENDING', 'RETRY', 'CLAIMED')
            LIMIT 1
        `, task.DedupeKey).Scan(&existing); err != nil {
			return "", fmt.Errorf("enqueue dedupe lookup: %w", err)
		}
		return existing, nil
	}
	return id, nil
}

func (r *TaskRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.QueueTask, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	query := `SELECT ` + taskColumns + `
        FROM queue_tasks
        WHERE status IN ('PENDING', 'RETRY') AND scheduled_at <= $1
        ORDER BY scheduled_at ASC
        LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Claim moves a schedulable task to CLAIMED for workerID. It reports false when
// the task was claimed, cancelled or rescheduled by someone else first.
func (r *TaskRepository) Claim(ctx context.Context, id, workerID string, now, leaseUntil time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE queue_tasks
        SET status = 'CLAIMED', claimed_by = $2, lease_expires_at = $3, updated_at = $4
        WHERE id = $1 AND status IN ('PENDING', 'RETRY') AND scheduled_at <= $4
    `, id, workerID, leaseUntil, now)
	if err != nil {
		return false, fmt.Errorf("claim task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TaskRepository) RequeueExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE queue_tasks
        SET status = CASE WHEN retry_count = 0 THEN 'PENDING' ELSE 'RETRY' END,
            claimed_by = NULL, lease_expires_at = NULL, updated_at = $1
        WHERE status = 'CLAIMED' AND lease_expires_at < $1
    `, now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired claims: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status model.TaskStatus, fields model.TaskUpdate) error {
	sets := []string{"status=$1", "updated_at=$2", "claimed_by=NULL", "lease_expires_at=NULL"}
	args := []interface{}{status, r.now()}
	argPos := 3

	if fields.RetryCount != nil {
		sets = append(sets, fmt.Sprintf("retry_count=$%d", argPos))
		args = append(args, *fields.RetryCount)
		argPos++
	}
	if fields.ScheduledAt != nil {
		sets = append(sets, fmt.Sprintf("scheduled_at=$%d", argPos))
		args = append(args, *fields.ScheduledAt)
		argPos++
	}
	if fields.Error != nil {
		sets = append(sets, fmt.Sprintf("error=$%d", argPos))
		args = append(args, *fields.Error)
		argPos++
	}

	query := fmt.Sprintf("UPDATE queue_tasks SET %s WHERE id=$%d", strings.Join(sets, ", "), argPos)
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s to %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewTaskNotFound(id)
	}
	return nil
}

// CancelBySubject cancels every not-yet-started task of the subject in one statement.
func (r *TaskRepository) CancelBySubject(ctx context.Context, subjectID string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE queue_tasks SET status = 'CANCELLED', updated_at = $2
        WHERE subject_id = $1 AND status IN ('PENDING', 'RETRY')
    `, subjectID, r.now())
	if err != nil {
		return 0, fmt.Errorf("cancel tasks for %s: %w", subjectID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*model.QueueTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM queue_tasks WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, appErrors.NewTaskNotFound(id)
	}
	return tasks[0], nil
}

func (r *TaskRepository) ListBySubject(ctx context.Context, subjectID string) ([]*model.QueueTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+`
        FROM queue_tasks WHERE subject_id=$1 ORDER BY scheduled_at ASC, created_at ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]*model.QueueTask, error) {
	tasks := []*model.QueueTask{}
	for rows.Next() {
		var (
			t       model.QueueTask
			payload []byte
			lease   sql.NullTime
		)
		if err := rows.Scan(
			&t.ID, &t.SubjectID, &t.Type, &t.Status, &t.ScheduledAt, &t.CreatedAt, &t.UpdatedAt,
			&t.RetryCount, &t.Error, &payload, &t.DedupeKey, &t.ClaimedBy, &lease,
		); err != nil {
			return nil, err
		}
		p, err := model.DecodePayload(t.Type, payload)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		t.Payload = p
		if lease.Valid {
			l := lease.Time
			t.LeaseExpiresAt = &l
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

var _ TaskRepositoryInterface = (*TaskRepository)(nil)
