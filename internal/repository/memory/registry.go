package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/repository"
)

// RunRegistry is an in-memory repository.RunRegistry. The single mutex
// guarding all mutations is also the serialization point for the atomic
// compare-and-set finalize requires (spec §4.3, §5).
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]*entity.Run
}

// NewRunRegistry creates an empty in-memory run registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*entity.Run)}
}

func (r *RunRegistry) Create(_ context.Context, req entity.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.runs[id] = &entity.Run{
		ID:        id,
		Request:   req,
		Status:    entity.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	return id, nil
}

func (r *RunRegistry) MarkRunning(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return &repository.NotFoundError{Resource: "Run", ID: runID}
	}
	// Idempotent-safe against double-start: a run already RUNNING (or past
	// it) is left untouched rather than erroring.
	if run.Status == entity.RunStatusQueued {
		run.Status = entity.RunStatusRunning
	}
	return nil
}

func (r *RunRegistry) Finalize(
	_ context.Context,
	runID string,
	status entity.RunStatus,
	objective *float64,
	assignments []entity.RawAssignment,
	logs string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return &repository.NotFoundError{Resource: "Run", ID: runID}
	}
	if run.Status.IsTerminal() {
		return &repository.TerminalConflictError{RunID: runID}
	}

	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	run.Logs = logs
	if status == entity.RunStatusOptimal || status == entity.RunStatusFeasible {
		run.ObjectiveValue = objective
		run.Assignments = assignments
	}
	return nil
}

func (r *RunRegistry) Get(_ context.Context, runID string) (entity.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return entity.Run{}, &repository.NotFoundError{Resource: "Run", ID: runID}
	}
	return *run, nil
}

func (r *RunRegistry) List(_ context.Context) ([]entity.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entity.Summary, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.ToSummary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
