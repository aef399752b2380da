// Package orchestrator implements C5: it accepts validated requests,
// allocates run ids, dispatches the solve onto a bounded asynq worker
// pool, and writes the terminal state exactly once (spec §4.6, §5).
//
// The background-task pattern is grounded on the teacher's
// internal/job.JobScheduler/JobHandlers split (enqueue vs. mux-registered
// handler), generalized from the teacher's ODS-import/Amion-scrape job
// types to the single "solve:run" task this core needs.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hospitalops/shiftsolver/internal/coverage"
	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/enricher"
	"github.com/hospitalops/shiftsolver/internal/logger"
	"github.com/hospitalops/shiftsolver/internal/metrics"
	"github.com/hospitalops/shiftsolver/internal/repository"
	"github.com/hospitalops/shiftsolver/internal/solver"
	"github.com/hospitalops/shiftsolver/internal/validation"
)

// Queue is the single asynq queue this core enqueues solves onto.
// hardCeilingGraceSeconds is the "+30s" of spec §5's hard ceiling: the
// orchestrator force-finalizes a solve as ERROR past
// solver_time_limit+30s even if the backend itself never returns.
const (
	Queue                   = "solver"
	TaskTypeSolveRun        = "solve:run"
	hardCeilingGraceSeconds = 30
)

// ErrQueueSaturated is returned by Submit when the pending-task count has
// reached the configurable queue bound (spec §6: "503 when the worker pool
// is saturated beyond a configurable queue bound").
var ErrQueueSaturated = errors.New("orchestrator: queue saturated")

// solveRunPayload is the asynq task payload: just the run id, since every
// other input (the Request) already lives in the registry row.
type solveRunPayload struct {
	RunID string `json:"run_id"`
}

// Inspector is the subset of *asynq.Inspector the orchestrator needs —
// narrowed to an interface so tests can substitute a fake without a Redis
// container.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Enqueuer is the subset of *asynq.Client the orchestrator needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Orchestrator wires the catalog (C1), the run registry (C2), and the
// asynq broker together to implement submit/status/list (spec §4.6).
type Orchestrator struct {
	catalog    repository.CatalogStore
	registry   repository.RunRegistry
	client     Enqueuer
	inspector  Inspector
	logger     *zap.SugaredLogger
	metrics    *metrics.Registry
	queueBound int
}

// New builds an Orchestrator. queueBound <= 0 disables the 503 saturation
// check (used in tests and small deployments that accept unbounded queueing).
func New(
	catalog repository.CatalogStore,
	registry repository.RunRegistry,
	client Enqueuer,
	inspector Inspector,
	log *zap.SugaredLogger,
	reg *metrics.Registry,
	queueBound int,
) *Orchestrator {
	return &Orchestrator{
		catalog:    catalog,
		registry:   registry,
		client:     client,
		inspector:  inspector,
		logger:     log,
		metrics:    reg,
		queueBound: queueBound,
	}
}

// Submit validates req, creates the QUEUED run, and enqueues the solve task
// (spec §4.6 steps 1-3). The caller returns as soon as this returns — only
// the background worker blocks on the solver call.
func (o *Orchestrator) Submit(ctx context.Context, req entity.Request) (string, error) {
	if err := validation.ValidateRequest(req); err != nil {
		return "", err
	}

	if o.queueBound > 0 && o.inspector != nil {
		stats, err := o.inspector.GetQueueInfo(Queue)
		if err == nil && stats.Pending+stats.Active >= o.queueBound {
			return "", ErrQueueSaturated
		}
	}

	runID, err := o.registry.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	payload, err := json.Marshal(solveRunPayload{RunID: runID})
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	timeout := time.Duration(req.SolverTimeLimitSeconds+hardCeilingGraceSeconds) * time.Second
	task := asynq.NewTask(TaskTypeSolveRun, payload)
	if _, err := o.client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.TaskID(runID),
		asynq.MaxRetry(0), // a failed solve becomes a terminal ERROR run, never a silent requeue (spec §4.6)
		asynq.Timeout(timeout),
	); err != nil {
		return "", fmt.Errorf("enqueue solve task: %w", err)
	}

	return runID, nil
}

// StatusView is the status-endpoint read model: the raw Run plus, when
// terminal and successful, the enriched roster and coverage accounting
// (spec §4.6 "Polling operation", §4.7, §8 item 4).
type StatusView struct {
	Run      entity.Run
	Enriched []entity.EnrichedAssignment
	Coverage coverage.Summary
}

// Status reads the registry and, when the run is terminal with assignments,
// invokes the enricher and the coverage resolver before responding.
func (o *Orchestrator) Status(ctx context.Context, runID string) (StatusView, error) {
	run, err := o.registry.Get(ctx, runID)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{Run: run}

	if run.Status != entity.RunStatusOptimal && run.Status != entity.RunStatusFeasible {
		return view, nil
	}

	snap, err := o.catalog.Snapshot(ctx)
	if err != nil {
		return view, fmt.Errorf("enrich: snapshot catalog: %w", err)
	}
	view.Enriched = enricher.Enrich(run.Assignments, snap)
	view.Coverage = coverage.Resolve(demandInHorizon(snap.Demand, run.Request), run.Assignments, snap)
	return view, nil
}

// List returns run summaries ordered by created_at desc (spec §4.6, §6);
// never enriched.
func (o *Orchestrator) List(ctx context.Context) ([]entity.Summary, error) {
	return o.registry.List(ctx)
}

// HandleSolveRun is the asynq handler registered under TaskTypeSolveRun: it
// implements the background-worker half of spec §4.6 step 4
// (mark_running -> snapshot -> build -> solve -> finalize).
func (o *Orchestrator) HandleSolveRun(ctx context.Context, t *asynq.Task) error {
	var payload solveRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal solve:run payload: %v: %w", err, asynq.SkipRetry)
	}

	runID := payload.RunID
	ctx = logger.WithRunID(ctx, runID)
	log := logger.ForRun(o.logger, ctx)

	run, err := o.registry.Get(ctx, runID)
	if err != nil {
		log.Errorw("load run before solve", "error", err)
		return nil
	}
	if run.Status.IsTerminal() {
		// Already finalized, e.g. by a shutdown drain racing this pickup.
		return nil
	}

	if err := o.registry.MarkRunning(ctx, runID); err != nil {
		log.Errorw("mark_running", "error", err)
		return err
	}

	snap, err := o.catalog.Snapshot(ctx)
	if err != nil {
		logs := validation.Log(validation.SeverityError, validation.CodeBackendError,
			fmt.Sprintf("snapshot catalog: %v", err), map[string]interface{}{"stage": "build"})
		o.finalize(ctx, log, runID, entity.RunStatusError, nil, nil, logs)
		return nil
	}

	ceiling := time.Duration(run.Request.SolverTimeLimitSeconds+hardCeilingGraceSeconds) * time.Second
	solveCtx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	start := time.Now()
	outcome := solver.Solve(solveCtx, snap, run.Request)
	o.metrics.ObserveSolveDuration(string(outcome.Status), time.Since(start).Seconds())
	if outcome.Status == entity.RunStatusInfeasible {
		o.metrics.ObserveIISDuration(outcome.IISDurationSecs)
	}

	switch {
	case ctx.Err() == context.Canceled:
		outcome = solver.Outcome{
			Status:  entity.RunStatusError,
			Message: validation.Log(validation.SeverityError, validation.CodeCancelled, "cancelled", nil),
		}
	case outcome.Status == entity.RunStatusError && solveCtx.Err() == context.DeadlineExceeded:
		outcome.Message = validation.Log(validation.SeverityError, validation.CodeBackendError,
			"solve exceeded hard ceiling", map[string]interface{}{"stage": "solve"})
	}

	o.finalize(ctx, log, runID, outcome.Status, outcome.ObjectiveValue, outcome.Assignments, outcome.Message)
	return nil
}

func (o *Orchestrator) finalize(
	ctx context.Context,
	log *zap.SugaredLogger,
	runID string,
	status entity.RunStatus,
	objective *float64,
	assignments []entity.RawAssignment,
	logs string,
) {
	if err := o.registry.Finalize(ctx, runID, status, objective, assignments, logs); err != nil {
		if repository.IsTerminalConflict(err) {
			// TerminalConflict is a programming-error assertion (spec §7):
			// log it, never surface it, and leave the earlier write intact.
			log.Warnw("finalize: run already terminal", "error", err)
			return
		}
		log.Errorw("finalize", "error", err)
		return
	}
	o.metrics.RecordRunOutcome(string(status))
	log.Infow("run finalized", "status", status)
}

// Shutdown drains every queued-but-unstarted task on a process-wide
// shutdown signal, finalizing each as ERROR "not started" (spec §5). It
// does not touch in-flight solves: those observe the per-task context
// cancellation asynq's own Server.Shutdown drives and finalize themselves
// as ERROR "cancelled" from inside HandleSolveRun.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.inspector == nil {
		return nil
	}
	pending, err := o.inspector.ListPendingTasks(Queue)
	if err != nil {
		return fmt.Errorf("list pending tasks: %w", err)
	}

	notStarted := validation.Log(validation.SeverityError, validation.CodeNotStarted, "not started", nil)
	for _, p := range pending {
		var payload solveRunPayload
		if err := json.Unmarshal(p.Payload, &payload); err != nil {
			continue
		}
		if err := o.inspector.DeleteTask(Queue, p.ID); err != nil {
			o.logger.Warnw("delete pending task during shutdown", "task_id", p.ID, "error", err)
		}
		if err := o.registry.Finalize(ctx, payload.RunID, entity.RunStatusError, nil, nil, notStarted); err != nil &&
			!repository.IsTerminalConflict(err) {
			o.logger.Warnw("finalize drained run", "run_id", payload.RunID, "error", err)
		}
	}
	return nil
}

// QueueStats reports the current pending count and oldest-queued age for
// the solver queue, exported as Prometheus gauges by the caller (spec §5:
// "queue depth and oldest-wait are observable").
func (o *Orchestrator) QueueStats() (depth int, oldestWaitSeconds float64, err error) {
	if o.inspector == nil {
		return 0, 0, nil
	}
	stats, err := o.inspector.GetQueueInfo(Queue)
	if err != nil {
		return 0, 0, err
	}
	depth = stats.Pending

	pending, err := o.inspector.ListPendingTasks(Queue)
	if err != nil || len(pending) == 0 {
		return depth, 0, nil
	}
	oldest := pending[0].NextProcessAt
	for _, p := range pending[1:] {
		if p.NextProcessAt.Before(oldest) {
			oldest = p.NextProcessAt
		}
	}
	return depth, time.Since(oldest).Seconds(), nil
}

func demandInHorizon(demand []entity.Demand, req entity.Request) []entity.Demand {
	end := req.HorizonStart.AddDate(0, 0, req.HorizonDays)
	out := make([]entity.Demand, 0, len(demand))
	for _, d := range demand {
		if !d.Date.Before(req.HorizonStart) && d.Date.Before(end) {
			out = append(out, d)
		}
	}
	return out
}
