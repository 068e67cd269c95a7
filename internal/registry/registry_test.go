package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chloestaris/iot-sensor/internal/auth"
)

func TestAddUser_Overwrites(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1", []auth.Permission{auth.PermReadSensor}, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.AddUser(ctx, "u1", []auth.Permission{auth.PermWriteSensor}, []string{"s1"}); err != nil {
		t.Fatalf("AddUser() overwrite error: %v", err)
	}

	u, ok := r.Lookup("u1")
	if !ok {
		t.Fatal("Lookup() should find u1")
	}
	if len(u.Permissions) != 1 || u.Permissions[0] != auth.PermWriteSensor {
		t.Errorf("overwrite should replace permissions, got %v", u.Permissions)
	}
	if r.Size() != 1 {
		t.Errorf("Size() = %d, want 1", r.Size())
	}
}

func TestAddUser_Rejects(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "", nil, nil); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("empty user ID error = %v, want ErrInvalidUserID", err)
	}
	err := r.AddUser(ctx, "u1", []auth.Permission{"DELETE_EVERYTHING"}, nil)
	if !errors.Is(err, ErrInvalidPermission) {
		t.Errorf("unknown permission error = %v, want ErrInvalidPermission", err)
	}
}

func TestRemoveUser_IdempotentNoOp(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	// Removing a user that was never added succeeds.
	if err := r.RemoveUser(ctx, "ghost"); err != nil {
		t.Errorf("RemoveUser() on absent user = %v, want nil", err)
	}

	if err := r.AddUser(ctx, "u1", nil, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.RemoveUser(ctx, "u1"); err != nil {
		t.Fatalf("RemoveUser() error: %v", err)
	}
	if _, ok := r.Lookup("u1"); ok {
		t.Error("u1 should be gone after removal")
	}
	if err := r.RemoveUser(ctx, "u1"); err != nil {
		t.Errorf("second RemoveUser() = %v, want nil", err)
	}
}

func TestGrant(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1", nil, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}

	if err := r.Grant(ctx, "u1", auth.PermWriteSensor, "s1"); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}
	// Granting again is a no-op, not a duplicate.
	if err := r.Grant(ctx, "u1", auth.PermWriteSensor, "s1"); err != nil {
		t.Fatalf("repeat Grant() error: %v", err)
	}

	u, _ := r.Lookup("u1")
	if len(u.Permissions) != 1 || u.Permissions[0] != auth.PermWriteSensor {
		t.Errorf("permissions = %v, want [WRITE_SENSOR]", u.Permissions)
	}
	if len(u.AllowedSensors) != 1 || u.AllowedSensors[0] != "s1" {
		t.Errorf("allowed sensors = %v, want [s1]", u.AllowedSensors)
	}
}

func TestGrant_UnknownUser(t *testing.T) {
	r := New(nil)
	if err := r.Grant(context.Background(), "ghost", auth.PermWriteSensor, ""); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Grant() error = %v, want ErrUnknownUser", err)
	}
}

func TestRevoke(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1",
		[]auth.Permission{auth.PermReadSensor, auth.PermWriteSensor},
		[]string{"s1", "s2"}); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}

	if err := r.Revoke(ctx, "u1", auth.PermWriteSensor, "s2"); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	u, _ := r.Lookup("u1")
	if len(u.Permissions) != 1 || u.Permissions[0] != auth.PermReadSensor {
		t.Errorf("permissions = %v, want [READ_SENSOR]", u.Permissions)
	}
	if len(u.AllowedSensors) != 1 || u.AllowedSensors[0] != "s1" {
		t.Errorf("allowed sensors = %v, want [s1]", u.AllowedSensors)
	}

	// Revoking a permission the user does not hold is a no-op.
	if err := r.Revoke(ctx, "u1", auth.PermManageUsers, ""); err != nil {
		t.Errorf("Revoke() of unheld permission = %v, want nil", err)
	}
	if err := r.Revoke(ctx, "ghost", auth.PermReadSensor, ""); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("Revoke() unknown user error = %v, want ErrUnknownUser", err)
	}
}

func TestGrants_VisibleAfterSequentialAdminCalls(t *testing.T) {
	// add followed by grant is visible to a subsequent authorisation
	// check: no lost update under sequential admin calls.
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1", []auth.Permission{auth.PermWriteSensor}, []string{"s1"}); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.Grant(ctx, "u1", auth.PermManageSensors, "s2"); err != nil {
		t.Fatalf("Grant() error: %v", err)
	}

	perms, sensors, ok := r.Grants("u1")
	if !ok {
		t.Fatal("Grants() should find u1")
	}
	p := auth.Principal{Role: auth.RoleRegular, UserID: "u1", Permissions: perms, AllowedSensors: sensors}
	if err := auth.Authorize(p, auth.Action{Kind: auth.ActionSensorWrite, SensorID: "s2"}); err != nil {
		t.Errorf("Authorize() after grant = %v, want nil", err)
	}
	if err := auth.Authorize(p, auth.Action{Kind: auth.ActionSensorWrite, SensorID: "s3"}); err == nil {
		t.Error("sensor outside scope should be denied")
	}
}

func TestSeed_DoesNotClobber(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1", []auth.Permission{auth.PermManageSensors}, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	if err := r.Seed(ctx, "u1", []auth.Permission{auth.PermReadSensor}, nil); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}

	u, _ := r.Lookup("u1")
	if len(u.Permissions) != 1 || u.Permissions[0] != auth.PermManageSensors {
		t.Errorf("Seed() overwrote existing entry: %v", u.Permissions)
	}

	if err := r.Seed(ctx, "u2", []auth.Permission{auth.PermReadSensor}, nil); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if _, ok := r.Lookup("u2"); !ok {
		t.Error("Seed() should create absent users")
	}
}

func TestLookup_ReturnsCopy(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1", []auth.Permission{auth.PermReadSensor}, []string{"s1"}); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}

	u, _ := r.Lookup("u1")
	u.Permissions[0] = auth.PermManageUsers
	u.AllowedSensors[0] = "tampered"

	fresh, _ := r.Lookup("u1")
	if fresh.Permissions[0] != auth.PermReadSensor || fresh.AllowedSensors[0] != "s1" {
		t.Error("Lookup() must return a copy, not shared slices")
	}
}

func TestConcurrentMutations(t *testing.T) {
	r := New(nil)
	ctx := context.Background()

	if err := r.AddUser(ctx, "u1", nil, nil); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Grant(ctx, "u1", auth.PermWriteSensor, "s1") //nolint:errcheck // racing on purpose
		}()
		go func() {
			defer wg.Done()
			_ = r.Revoke(ctx, "u1", auth.PermWriteSensor, "s1") //nolint:errcheck // racing on purpose
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the entry must be coherent:
	// no duplicates, scope consistent with a single atomic last write.
	u, ok := r.Lookup("u1")
	if !ok {
		t.Fatal("u1 should survive concurrent grant/revoke")
	}
	if len(u.Permissions) > 1 || len(u.AllowedSensors) > 1 {
		t.Errorf("corrupted entry: perms=%v sensors=%v", u.Permissions, u.AllowedSensors)
	}
}
