// Package postgres provides PostgreSQL repository implementations with integration tests.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/repository"
)

// testHelper provisions a disposable Postgres container and applies Schema.
type testHelper struct {
	db        *sql.DB
	container testcontainers.Container
	ctx       context.Context
}

func newTestHelper(ctx context.Context, t *testing.T) *testHelper {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "shiftsolver_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/shiftsolver_test?sslmode=disable", host, port.Port())
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	_, err = db.ExecContext(ctx, Schema)
	require.NoError(t, err)

	return &testHelper{db: db, container: container, ctx: ctx}
}

func (h *testHelper) Close(t *testing.T) {
	if err := h.db.Close(); err != nil {
		t.Logf("warning: failed to close database: %v", err)
	}
	if err := h.container.Terminate(h.ctx); err != nil {
		t.Logf("warning: failed to terminate container: %v", err)
	}
}

func TestCatalogStoreSeedSnapshotAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers integration test in short mode")
	}
	ctx := context.Background()
	h := newTestHelper(ctx, t)
	defer h.Close(t)

	store := NewCatalogStore(h.db)
	require.NoError(t, store.Seed(ctx))

	e, err := store.EmployeeByID(ctx, "E2")
	require.NoError(t, err)
	require.Equal(t, entity.RoleNurse, e.Role)
	require.Contains(t, e.Skills, entity.SkillToken("ICU"))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Employees, 3)
	require.Len(t, snap.Shifts, 3)

	_, err = store.EmployeeByID(ctx, "nonexistent")
	require.True(t, repository.IsNotFound(err))
}

func TestRunRegistryLifecycleAndCAS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers integration test in short mode")
	}
	ctx := context.Background()
	h := newTestHelper(ctx, t)
	defer h.Close(t)

	reg := NewRunRegistry(h.db)
	req := entity.Request{HorizonDays: 7, SolverTimeLimitSeconds: 30, MaxConsecutiveDays: 3}
	id, err := reg.Create(ctx, req)
	require.NoError(t, err)

	run, err := reg.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, entity.RunStatusQueued, run.Status)
	require.Equal(t, 7, run.Request.HorizonDays)

	require.NoError(t, reg.MarkRunning(ctx, id))
	run, err = reg.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, entity.RunStatusRunning, run.Status)

	obj := 1600.0
	assignments := []entity.RawAssignment{
		{EmployeeID: "E1", Date: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), ShiftID: "S1", Hours: 8, Cost: 1200},
	}
	require.NoError(t, reg.Finalize(ctx, id, entity.RunStatusOptimal, &obj, assignments, "solved to optimality"))

	run, err = reg.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, entity.RunStatusOptimal, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.Len(t, run.Assignments, 1)

	err = reg.Finalize(ctx, id, entity.RunStatusError, nil, nil, "should not apply")
	require.True(t, repository.IsTerminalConflict(err))

	summaries, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].AssignmentCount)
}
