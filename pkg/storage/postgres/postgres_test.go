package postgres

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/toolgate/pkg/storage"
)

func init() {
	// Fall back to a podman machine socket when DOCKER_HOST is unset.
	if os.Getenv("DOCKER_HOST") != "" {
		return
	}
	out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
	if err != nil {
		return
	}
	if sock := strings.TrimSpace(string(out)); sock != "" {
		os.Setenv("DOCKER_HOST", "unix://"+sock)
		if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
			os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
		}
	}
}

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped when no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("toolgate_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       4,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestPendingMigrations_Ordered(t *testing.T) {
	migrations, err := pendingMigrations()
	if err != nil {
		t.Fatalf("pendingMigrations failed: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}
	if migrations[0].version != 1 {
		t.Errorf("first version = %d, want 1", migrations[0].version)
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version <= migrations[i-1].version {
			t.Errorf("migrations out of order: %v", migrations)
		}
	}
}

func TestPostgres_UpsertAndLookup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	p := storage.Principal{Subject: "user-1", TenantID: "org-1", ServiceTier: "gold"}
	if err := store.UpsertPrincipal(ctx, p); err != nil {
		t.Fatalf("UpsertPrincipal failed: %v", err)
	}

	got, err := store.LookupPrincipal(ctx, "user-1")
	if err != nil {
		t.Fatalf("LookupPrincipal failed: %v", err)
	}
	if got.TenantID != "org-1" || got.ServiceTier != "gold" || got.Disabled {
		t.Errorf("principal = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not populated")
	}

	p.ServiceTier = "silver"
	if err := store.UpsertPrincipal(ctx, p); err != nil {
		t.Fatalf("second UpsertPrincipal failed: %v", err)
	}
	got, _ = store.LookupPrincipal(ctx, "user-1")
	if got.ServiceTier != "silver" {
		t.Errorf("ServiceTier after upsert = %q, want silver", got.ServiceTier)
	}
}

func TestPostgres_LookupNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.LookupPrincipal(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgres_SetDisabled(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	if err := store.SetDisabled(ctx, "ghost", true); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SetDisabled(unknown) err = %v, want ErrNotFound", err)
	}

	store.UpsertPrincipal(ctx, storage.Principal{Subject: "user-2"})
	if err := store.SetDisabled(ctx, "user-2", true); err != nil {
		t.Fatalf("SetDisabled failed: %v", err)
	}
	got, err := store.LookupPrincipal(ctx, "user-2")
	if err != nil {
		t.Fatalf("LookupPrincipal failed: %v", err)
	}
	if !got.Disabled {
		t.Error("principal should be disabled")
	}
}

func TestPostgres_Delete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	store.UpsertPrincipal(ctx, storage.Principal{Subject: "user-3"})
	if err := store.DeletePrincipal(ctx, "user-3"); err != nil {
		t.Fatalf("DeletePrincipal failed: %v", err)
	}
	if err := store.DeletePrincipal(ctx, "user-3"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeletePrincipal err = %v, want ErrNotFound", err)
	}
}

func TestPostgres_MigrateIdempotent(t *testing.T) {
	store := setupTestDB(t)

	if err := store.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}
