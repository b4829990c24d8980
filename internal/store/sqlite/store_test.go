package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

func newTestStores(t *testing.T) *store.Stores {
	t.Helper()
	st, err := NewStores(store.StoreConfig{SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewStores: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestTenants(t *testing.T) {
	st := newTestStores(t)
	ctx := context.Background()

	mainTenant := &store.Tenant{ID: "main", Name: "Main", Trigger: "@Andy", Destination: "tg:1", IsMain: true}
	if err := st.Tenants.CreateTenant(ctx, mainTenant); err != nil {
		t.Fatal(err)
	}
	fam := &store.Tenant{
		ID: "family", Name: "Family", Trigger: "@Andy", Destination: "tg:-100", RequiresTrigger: true,
		Mounts: []store.Mount{{HostPath: "/srv/photos", ContainerPath: "photos", ReadOnly: true}},
	}
	if err := st.Tenants.CreateTenant(ctx, fam); err != nil {
		t.Fatal(err)
	}

	dup := &store.Tenant{ID: "family", Name: "x", Trigger: "@x", Destination: "tg:5"}
	if err := st.Tenants.CreateTenant(ctx, dup); !errors.Is(err, store.ErrExists) {
		t.Errorf("duplicate id err = %v, want ErrExists", err)
	}
	dupDest := &store.Tenant{ID: "other", Name: "x", Trigger: "@x", Destination: "tg:-100"}
	if err := st.Tenants.CreateTenant(ctx, dupDest); !errors.Is(err, store.ErrExists) {
		t.Errorf("duplicate destination err = %v, want ErrExists", err)
	}

	got, err := st.Tenants.GetTenant(ctx, "family")
	if err != nil {
		t.Fatal(err)
	}
	if !got.RequiresTrigger || got.IsMain || len(got.Mounts) != 1 || !got.Mounts[0].ReadOnly {
		t.Errorf("GetTenant = %+v", got)
	}
	if _, err := st.Tenants.GetTenant(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing tenant err = %v", err)
	}

	all, err := st.Tenants.ListTenants(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("ListTenants len = %d, want 2", len(all))
	}
}

func TestTasksDueOrdering(t *testing.T) {
	st := newTestStores(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mk := func(id string, next *time.Time, status store.TaskStatus) {
		t.Helper()
		task := &store.Task{
			ID: id, TenantID: "main", Destination: "tg:1", Prompt: "p",
			ScheduleKind: store.ScheduleOnce, ScheduleValue: "x", ContextMode: store.ContextIsolated,
			NextFire: next, Status: status, CreatedAt: base.Add(-time.Hour),
		}
		if err := st.Tasks.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}
	t1 := base
	t0 := base.Add(-time.Minute)
	future := base.Add(time.Hour)
	mk("b", &t1, store.TaskActive)
	mk("a", &t1, store.TaskActive)
	mk("c", &t0, store.TaskActive)
	mk("paused", &t0, store.TaskPaused)
	mk("later", &future, store.TaskActive)
	mk("never", nil, store.TaskActive)

	due, err := st.Tasks.DueTasks(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, d := range due {
		ids = append(ids, d.ID)
	}
	want := []string{"c", "a", "b"}
	if len(ids) != len(want) {
		t.Fatalf("DueTasks = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("DueTasks = %v, want %v", ids, want)
		}
	}
}

func TestTaskMutations(t *testing.T) {
	st := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	task := &store.Task{
		TenantID: "main", Destination: "tg:1", Prompt: "report",
		ScheduleKind: store.ScheduleInterval, ScheduleValue: "60000", ContextMode: store.ContextGroup,
		NextFire: &now,
	}
	if err := st.Tasks.CreateTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if task.ID == "" || task.Status != store.TaskActive {
		t.Fatalf("CreateTask did not fill defaults: %+v", task)
	}

	if err := st.Tasks.SetTaskStatus(ctx, task.ID, store.TaskPaused); err != nil {
		t.Fatal(err)
	}
	next := now.Add(time.Minute)
	if err := st.Tasks.SetNextFire(ctx, task.ID, &next); err != nil {
		t.Fatal(err)
	}
	if err := st.Tasks.RecordRun(ctx, task.ID, now, "done"); err != nil {
		t.Fatal(err)
	}

	got, err := st.Tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.TaskPaused {
		t.Errorf("Status = %s, RecordRun must not touch status", got.Status)
	}
	if got.NextFire == nil || !got.NextFire.Equal(next) {
		t.Errorf("NextFire = %v, want %v", got.NextFire, next)
	}
	if got.LastResult == nil || *got.LastResult != "done" || got.LastRun == nil || !got.LastRun.Equal(now) {
		t.Errorf("last run not recorded: %+v", got)
	}

	if err := st.Tasks.SetTaskStatus(ctx, "missing", store.TaskActive); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetTaskStatus missing err = %v", err)
	}
	if err := st.Tasks.DeleteTask(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	if err := st.Tasks.DeleteTask(ctx, task.ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}
	if _, err := st.Tasks.GetTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTask after delete err = %v", err)
	}
}

func TestPairingLifecycle(t *testing.T) {
	st := newTestStores(t)
	ctx := context.Background()

	created, err := st.Pairing.AddPending(ctx, store.PendingUser{UserID: "7", Channel: "telegram", ChatID: "7", Sample: "hi"})
	if err != nil || !created {
		t.Fatalf("AddPending = %v, %v", created, err)
	}
	created, err = st.Pairing.AddPending(ctx, store.PendingUser{UserID: "7", Channel: "telegram", ChatID: "7"})
	if err != nil || created {
		t.Fatalf("second AddPending = %v, %v; want false", created, err)
	}

	p, err := st.Pairing.Approve(ctx, "7", "main", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if p.Channel != "telegram" || p.Sample != "hi" {
		t.Errorf("Approve returned %+v", p)
	}
	pending, _ := st.Pairing.ListPending(ctx)
	paired, _ := st.Pairing.ListPaired(ctx)
	if len(pending) != 0 || len(paired) != 1 || paired[0].ApprovedBy != "main" {
		t.Errorf("after approve pending=%v paired=%v", pending, paired)
	}

	// Paired users cannot become pending again.
	created, err = st.Pairing.AddPending(ctx, store.PendingUser{UserID: "7", Channel: "telegram", ChatID: "7"})
	if err != nil || created {
		t.Errorf("AddPending for paired user = %v, %v", created, err)
	}

	if _, err := st.Pairing.Approve(ctx, "8", "main", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Approve unknown err = %v", err)
	}

	if _, err := st.Pairing.AddPending(ctx, store.PendingUser{UserID: "9", Channel: "discord", ChatID: "c"}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Pairing.Deny(ctx, "9"); err != nil {
		t.Fatal(err)
	}
	pending, _ = st.Pairing.ListPending(ctx)
	paired, _ = st.Pairing.ListPaired(ctx)
	if len(pending) != 0 || len(paired) != 1 {
		t.Errorf("after deny pending=%v paired=%v", pending, paired)
	}
}

func TestSessions(t *testing.T) {
	st := newTestStores(t)
	ctx := context.Background()

	if tok, err := st.Sessions.GetSession(ctx, "main"); err != nil || tok != "" {
		t.Fatalf("GetSession empty = %q, %v", tok, err)
	}
	if err := st.Sessions.SetSession(ctx, "main", "s1"); err != nil {
		t.Fatal(err)
	}
	if err := st.Sessions.SetSession(ctx, "main", "s2"); err != nil {
		t.Fatal(err)
	}
	if tok, _ := st.Sessions.GetSession(ctx, "main"); tok != "s2" {
		t.Errorf("GetSession = %q, want s2", tok)
	}
	all, err := st.Sessions.ListSessions(ctx)
	if err != nil || all["main"] != "s2" {
		t.Errorf("ListSessions = %v, %v", all, err)
	}
	if err := st.Sessions.DeleteSession(ctx, "main"); err != nil {
		t.Fatal(err)
	}
	if tok, _ := st.Sessions.GetSession(ctx, "main"); tok != "" {
		t.Errorf("token survived delete: %q", tok)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := Migrate(db); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(db); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}
