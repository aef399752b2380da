package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/metrics"
	"github.com/hospitalops/shiftsolver/internal/repository/memory"
)

// fakeEnqueuer records enqueued tasks in-process so Submit is testable
// without a Redis broker.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "fake"}, nil
}

// fakeInspector reports a fixed pending/active count, for exercising the
// queue-saturation path without a Redis broker.
type fakeInspector struct {
	pending, active int
}

func (f *fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Pending: f.pending, Active: f.active}, nil
}
func (f *fakeInspector) ListPendingTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}
func (f *fakeInspector) DeleteTask(string, string) error { return nil }

func noopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func validRequest() entity.Request {
	return entity.Request{
		HorizonStart:           time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		HorizonDays:            7,
		SolverTimeLimitSeconds: 30,
		MaxConsecutiveDays:     3,
		MinRestHours:           10,
		MaxNightShifts:         2,
	}
}

func TestSubmit_RejectsInvalidRequest(t *testing.T) {
	reg := memory.NewRunRegistry()
	enq := &fakeEnqueuer{}
	o := New(memory.NewCatalogStore(), reg, enq, &fakeInspector{}, noopLogger(), metrics.NewWithRegistry(prometheus.NewRegistry()), 0)

	_, err := o.Submit(context.Background(), entity.Request{HorizonDays: 0})
	require.Error(t, err)
	assert.Empty(t, enq.tasks)

	summaries, err := reg.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries, "an invalid request must never create a registry row")
}

func TestSubmit_EnqueuesOnSuccess(t *testing.T) {
	reg := memory.NewRunRegistry()
	enq := &fakeEnqueuer{}
	o := New(memory.NewCatalogStore(), reg, enq, &fakeInspector{}, noopLogger(), metrics.NewWithRegistry(prometheus.NewRegistry()), 0)

	runID, err := o.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)

	var payload solveRunPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, runID, payload.RunID)

	run, err := reg.Get(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusQueued, run.Status)
}

func TestSubmit_RejectsWhenQueueSaturated(t *testing.T) {
	reg := memory.NewRunRegistry()
	enq := &fakeEnqueuer{}
	o := New(memory.NewCatalogStore(), reg, enq, &fakeInspector{pending: 5, active: 0}, noopLogger(), metrics.NewWithRegistry(prometheus.NewRegistry()), 5)

	_, err := o.Submit(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrQueueSaturated)
	assert.Empty(t, enq.tasks)
}

func TestHandleSolveRun_FinalizesOptimal(t *testing.T) {
	reg := memory.NewRunRegistry()
	catalog := memory.NewCatalogStore()
	catalog.PutEmployee(entity.Employee{ID: "E1", Name: "Nurse One", Role: entity.RoleNurse, Skills: []entity.SkillToken{"RN"}, HourlyCost: 50, MaxWeeklyHours: 40})
	catalog.PutShift(entity.Shift{ID: "S1", Name: "Morning", StartMin: 7 * 60, EndMin: 15 * 60, LengthHrs: 8})
	catalog.PutDemand(entity.Demand{ID: 1, Date: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), ShiftID: "S1", Skill: "RN", Required: 1})

	req := validRequest()
	req.HorizonDays = 1

	o := New(catalog, reg, &fakeEnqueuer{}, &fakeInspector{}, noopLogger(), metrics.NewWithRegistry(prometheus.NewRegistry()), 0)

	ctx := context.Background()
	runID, err := reg.Create(ctx, req)
	require.NoError(t, err)

	payload, err := json.Marshal(solveRunPayload{RunID: runID})
	require.NoError(t, err)

	require.NoError(t, o.HandleSolveRun(ctx, asynq.NewTask(TaskTypeSolveRun, payload)))

	run, err := reg.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusOptimal, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.Len(t, run.Assignments, 1)

	view, err := o.Status(ctx, runID)
	require.NoError(t, err)
	require.Len(t, view.Enriched, 1)
	assert.Equal(t, "Nurse One", view.Enriched[0].EmployeeName)
	assert.Equal(t, 0, view.Coverage.TotalShortfall)
}

func TestHandleSolveRun_SkipsAlreadyTerminalRun(t *testing.T) {
	reg := memory.NewRunRegistry()
	catalog := memory.NewCatalogStore()
	o := New(catalog, reg, &fakeEnqueuer{}, &fakeInspector{}, noopLogger(), metrics.NewWithRegistry(prometheus.NewRegistry()), 0)

	ctx := context.Background()
	runID, err := reg.Create(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, reg.Finalize(ctx, runID, entity.RunStatusError, nil, nil, "cancelled"))

	payload, err := json.Marshal(solveRunPayload{RunID: runID})
	require.NoError(t, err)
	require.NoError(t, o.HandleSolveRun(ctx, asynq.NewTask(TaskTypeSolveRun, payload)))

	run, err := reg.Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusError, run.Status)
	assert.Equal(t, "cancelled", run.Logs)
}

func TestDemandInHorizonFiltersOutsideRange(t *testing.T) {
	req := entity.Request{HorizonStart: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), HorizonDays: 2}
	demand := []entity.Demand{
		{Date: time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC)},
	}
	out := demandInHorizon(demand, req)
	require.Len(t, out, 2)
}
