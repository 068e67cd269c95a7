package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chloestaris/iot-sensor/internal/auth"
	"github.com/chloestaris/iot-sensor/internal/infrastructure/database"
	_ "github.com/chloestaris/iot-sensor/migrations"
)

// newTestRepository opens a migrated temp database and wraps it.
func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(database.Config{Path: path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return NewRepository(db.DB)
}

func TestRepository_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	r := New(repo)
	if err := r.AddUser(ctx, "u1", []auth.Permission{auth.PermWriteSensor}, []string{"s1"}); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.AddUser(ctx, "u2", nil, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}

	// A fresh registry over the same repository sees the same state.
	restored := New(repo)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if restored.Size() != 2 {
		t.Fatalf("restored Size() = %d, want 2", restored.Size())
	}

	u, ok := restored.Lookup("u1")
	if !ok {
		t.Fatal("restored registry should hold u1")
	}
	if len(u.Permissions) != 1 || u.Permissions[0] != auth.PermWriteSensor {
		t.Errorf("restored permissions = %v", u.Permissions)
	}
	if len(u.AllowedSensors) != 1 || u.AllowedSensors[0] != "s1" {
		t.Errorf("restored sensors = %v", u.AllowedSensors)
	}

	// Empty grant lists come back as empty sets, not nil-induced errors.
	if u2, ok := restored.Lookup("u2"); !ok || u2.Permissions == nil || u2.AllowedSensors == nil {
		t.Errorf("u2 restored with nil sets: %+v", u2)
	}
}

func TestRepository_DeletePersists(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	r := New(repo)
	if err := r.AddUser(ctx, "u1", nil, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.RemoveUser(ctx, "u1"); err != nil {
		t.Fatalf("RemoveUser() error: %v", err)
	}

	restored := New(repo)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if restored.Size() != 0 {
		t.Errorf("removed user resurrected after restart: size=%d", restored.Size())
	}
}

func TestRepository_GrantSurvivesRestart(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	r := New(repo)
	if err := r.AddUser(ctx, "u1", nil, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.Grant(ctx, "u1", auth.PermWriteSensor, "s1"); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}

	restored := New(repo)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	perms, sensors, ok := restored.Grants("u1")
	if !ok {
		t.Fatal("Grants() should find u1 after restart")
	}
	if len(perms) != 1 || perms[0] != auth.PermWriteSensor || len(sensors) != 1 {
		t.Errorf("restored grants = %v %v", perms, sensors)
	}
}
