package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// TaskStore implements store.TaskStore on SQLite. Timestamps are stored as
// UTC unix milliseconds so next_fire compares numerically.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskColumns = `id, tenant_id, destination, prompt, schedule_kind, schedule_value, context_mode, next_fire, status, created_at, last_run, last_result`

func (s *TaskStore) CreateTask(ctx context.Context, t *store.Task) error {
	if t.ID == "" {
		t.ID = store.GenNewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = store.TaskActive
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TenantID, t.Destination, t.Prompt, string(t.ScheduleKind), t.ScheduleValue,
		string(t.ContextMode), nullMillis(t.NextFire), string(t.Status), toMillis(t.CreatedAt),
		nullMillis(t.LastRun), nullString(t.LastResult),
	)
	return err
}

func (s *TaskStore) GetTask(ctx context.Context, id string) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return t, err
}

func (s *TaskStore) ListTasks(ctx context.Context, tenantID string) ([]store.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM scheduled_tasks`
	var args []any
	if tenantID != "" {
		q += ` WHERE tenant_id = ?`
		args = append(args, tenantID)
	}
	q += ` ORDER BY created_at, id`
	return s.query(ctx, q, args...)
}

func (s *TaskStore) DueTasks(ctx context.Context, now time.Time) ([]store.Task, error) {
	return s.query(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE status = ? AND next_fire IS NOT NULL AND next_fire <= ?
		 ORDER BY next_fire, id`,
		string(store.TaskActive), toMillis(now))
}

func (s *TaskStore) SetTaskStatus(ctx context.Context, id string, status store.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *TaskStore) SetNextFire(ctx context.Context, id string, next *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_tasks SET next_fire = ? WHERE id = ?`, nullMillis(next), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *TaskStore) RecordRun(ctx context.Context, id string, at time.Time, result string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET last_run = ?, last_result = ? WHERE id = ?`, toMillis(at), result, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *TaskStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	return err
}

func (s *TaskStore) query(ctx context.Context, q string, args ...any) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTask(sc scanner) (*store.Task, error) {
	var (
		t                  store.Task
		kind, mode, status string
		nextFire, lastRun  sql.NullInt64
		created            int64
		lastResult         sql.NullString
	)
	err := sc.Scan(&t.ID, &t.TenantID, &t.Destination, &t.Prompt, &kind, &t.ScheduleValue,
		&mode, &nextFire, &status, &created, &lastRun, &lastResult)
	if err != nil {
		return nil, err
	}
	t.ScheduleKind = store.ScheduleKind(kind)
	t.ContextMode = store.ContextMode(mode)
	t.Status = store.TaskStatus(status)
	t.NextFire = timePtr(nextFire)
	t.CreatedAt = fromMillis(created)
	t.LastRun = timePtr(lastRun)
	if lastResult.Valid {
		t.LastResult = &lastResult.String
	}
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
