package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// PGTaskStore implements store.TaskStore backed by Postgres.
type PGTaskStore struct {
	db *sql.DB
}

func NewPGTaskStore(db *sql.DB) *PGTaskStore {
	return &PGTaskStore{db: db}
}

const taskColumns = `id, tenant_id, destination, prompt, schedule_kind, schedule_value, context_mode, next_fire, status, created_at, last_run, last_result`

func (s *PGTaskStore) CreateTask(ctx context.Context, t *store.Task) error {
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
		`INSERT INTO scheduled_tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.TenantID, t.Destination, t.Prompt, string(t.ScheduleKind), t.ScheduleValue,
		string(t.ContextMode), t.NextFire, string(t.Status), t.CreatedAt, t.LastRun, t.LastResult,
	)
	return err
}

func (s *PGTaskStore) GetTask(ctx context.Context, id string) (*store.Task, error) {
	out, err := s.query(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, store.ErrNotFound
	}
	return &out[0], nil
}

func (s *PGTaskStore) ListTasks(ctx context.Context, tenantID string) ([]store.Task, error) {
	if tenantID == "" {
		return s.query(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY created_at, id`)
	}
	return s.query(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
}

func (s *PGTaskStore) DueTasks(ctx context.Context, now time.Time) ([]store.Task, error) {
	return s.query(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
		 WHERE status = $1 AND next_fire IS NOT NULL AND next_fire <= $2
		 ORDER BY next_fire, id`,
		string(store.TaskActive), now)
}

func (s *PGTaskStore) SetTaskStatus(ctx context.Context, id string, status store.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_tasks SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *PGTaskStore) SetNextFire(ctx context.Context, id string, next *time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_tasks SET next_fire = $1 WHERE id = $2`, next, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *PGTaskStore) RecordRun(ctx context.Context, id string, at time.Time, result string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET last_run = $1, last_result = $2 WHERE id = $3`, at, result, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *PGTaskStore) DeleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	return err
}

func (s *PGTaskStore) query(ctx context.Context, q string, args ...any) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Task
	for rows.Next() {
		var (
			t                  store.Task
			kind, mode, status string
			nextFire, lastRun  sql.NullTime
			lastResult         sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Destination, &t.Prompt, &kind, &t.ScheduleValue,
			&mode, &nextFire, &status, &t.CreatedAt, &lastRun, &lastResult); err != nil {
			return nil, err
		}
		t.ScheduleKind = store.ScheduleKind(kind)
		t.ContextMode = store.ContextMode(mode)
		t.Status = store.TaskStatus(status)
		t.NextFire = nilIfNullTime(nextFire)
		t.LastRun = nilIfNullTime(lastRun)
		t.CreatedAt = t.CreatedAt.UTC()
		if lastResult.Valid {
			t.LastResult = &lastResult.String
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
