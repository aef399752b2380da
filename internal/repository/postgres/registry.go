package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/repository"
)

// RunRegistry implements repository.RunRegistry for PostgreSQL. The
// terminal write goes through a single parameterized UPDATE guarded by a
// status predicate, giving a true atomic compare-and-set (spec §4.3, §5) —
// unlike a read-then-write round trip, two concurrent finalizers can never
// both believe they won.
type RunRegistry struct {
	db *sql.DB
}

// NewRunRegistry creates a new PostgreSQL-backed run registry.
func NewRunRegistry(db *sql.DB) *RunRegistry {
	return &RunRegistry{db: db}
}

func (r *RunRegistry) Create(ctx context.Context, req entity.Request) (string, error) {
	id := uuid.NewString()
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, request, logs, created_at) VALUES ($1, $2, $3, '', $4)`,
		id, string(entity.RunStatusQueued), reqJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (r *RunRegistry) MarkRunning(ctx context.Context, runID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = $1 WHERE id = $2 AND status = $3`,
		string(entity.RunStatusRunning), runID, string(entity.RunStatusQueued),
	)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark running rows affected: %w", err)
	}
	if n == 0 {
		// Either already running (idempotent no-op) or the run doesn't
		// exist; disambiguate with a lookup.
		if _, err := r.Get(ctx, runID); err != nil {
			return err
		}
	}
	return nil
}

func (r *RunRegistry) Finalize(
	ctx context.Context,
	runID string,
	status entity.RunStatus,
	objective *float64,
	assignments []entity.RawAssignment,
	logs string,
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs
		 SET status = $1, objective_value = $2, logs = $3, completed_at = $4
		 WHERE id = $5
		   AND status NOT IN ($6, $7, $8, $9)`,
		string(status), objective, logs, time.Now().UTC(), runID,
		string(entity.RunStatusOptimal), string(entity.RunStatusFeasible),
		string(entity.RunStatusInfeasible), string(entity.RunStatusError),
	)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := r.getTx(ctx, tx, runID); getErr != nil {
			return getErr
		}
		return &repository.TerminalConflictError{RunID: runID}
	}

	if status == entity.RunStatusOptimal || status == entity.RunStatusFeasible {
		for _, a := range assignments {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO assignments (run_id, employee_id, date, shift_id, hours, cost) VALUES ($1, $2, $3, $4, $5, $6)`,
				runID, a.EmployeeID, a.Date, a.ShiftID, a.Hours, a.Cost,
			)
			if err != nil {
				return fmt.Errorf("insert assignment: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (r *RunRegistry) Get(ctx context.Context, runID string) (entity.Run, error) {
	return r.getTx(ctx, r.db, runID)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *RunRegistry) getTx(ctx context.Context, q querier, runID string) (entity.Run, error) {
	var run entity.Run
	var reqJSON []byte
	var status string

	// A malformed id can name no run; report it as NotFound rather than
	// letting the UUID column reject it as a query error.
	if _, err := uuid.Parse(runID); err != nil {
		return entity.Run{}, &repository.NotFoundError{Resource: "Run", ID: runID}
	}

	run.ID = runID
	err := q.QueryRowContext(ctx,
		`SELECT status, request, objective_value, logs, created_at, completed_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&status, &reqJSON, &run.ObjectiveValue, &run.Logs, &run.CreatedAt, &run.CompletedAt)
	if err == sql.ErrNoRows {
		return entity.Run{}, &repository.NotFoundError{Resource: "Run", ID: runID}
	}
	if err != nil {
		return entity.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = entity.RunStatus(status)
	if len(reqJSON) > 0 {
		if err := json.Unmarshal(reqJSON, &run.Request); err != nil {
			return entity.Run{}, fmt.Errorf("unmarshal request: %w", err)
		}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT employee_id, date, shift_id, hours, cost FROM assignments WHERE run_id = $1 ORDER BY date, shift_id, employee_id`,
		runID,
	)
	if err != nil {
		return entity.Run{}, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a entity.RawAssignment
		if err := rows.Scan(&a.EmployeeID, &a.Date, &a.ShiftID, &a.Hours, &a.Cost); err != nil {
			return entity.Run{}, fmt.Errorf("scan assignment: %w", err)
		}
		run.Assignments = append(run.Assignments, a)
	}
	return run, rows.Err()
}

func (r *RunRegistry) List(ctx context.Context) ([]entity.Summary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.id, r.status, r.objective_value, r.created_at, r.completed_at,
		        (SELECT COUNT(*) FROM assignments a WHERE a.run_id = r.id)
		 FROM runs r
		 ORDER BY r.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []entity.Summary
	for rows.Next() {
		var s entity.Summary
		var status string
		var count int
		if err := rows.Scan(&s.RunID, &status, &s.ObjectiveValue, &s.CreatedAt, &s.CompletedAt, &count); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		s.Status = entity.RunStatus(status)
		s.AssignmentCount = count
		out = append(out, s)
	}
	return out, rows.Err()
}
