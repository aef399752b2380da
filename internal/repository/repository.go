// Package repository defines the persistence-layer contracts used by the
// scheduling core: the catalog store (C1) and the run registry (C2). Both
// a Postgres-backed and an in-memory implementation satisfy these
// interfaces (see the postgres and memory subpackages).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

// CatalogStore exposes point reads, a demand range scan, a consistent
// snapshot, and the idempotent demo-catalog seed operation (spec §4.2, §6).
type CatalogStore interface {
	EmployeeByID(ctx context.Context, id entity.EmployeeID) (entity.Employee, error)
	ShiftByID(ctx context.Context, id entity.ShiftID) (entity.Shift, error)
	DemandInRange(ctx context.Context, start time.Time, days int) ([]entity.Demand, error)
	Snapshot(ctx context.Context) (entity.Snapshot, error)

	// Seed resets the three catalog tables to a fixed well-formed demo
	// dataset. It is idempotent and has no effect on runs.
	Seed(ctx context.Context) error
}

// RunRegistry owns the Run lifecycle: creation, the QUEUED->RUNNING
// transition, and the single atomic terminal write (spec §4.3).
type RunRegistry interface {
	Create(ctx context.Context, req entity.Request) (string, error)
	MarkRunning(ctx context.Context, runID string) error

	// Finalize performs the single terminal write for a run via a
	// compare-and-set on status. Calling it a second time for the same run
	// returns a *TerminalConflictError.
	Finalize(ctx context.Context, runID string, status entity.RunStatus, objective *float64, assignments []entity.RawAssignment, logs string) error

	Get(ctx context.Context, runID string) (entity.Run, error)
	List(ctx context.Context) ([]entity.Summary, error)
}

// NotFoundError is returned by Get/EmployeeByID/ShiftByID when the keyed
// resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %s", e.Resource, e.ID)
}

// IsNotFound reports whether err is (or wraps) a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TerminalConflictError signals an attempt to finalize a run that has
// already reached a terminal status — a programming error (spec §4.3, §7),
// never surfaced to the end user.
type TerminalConflictError struct {
	RunID string
}

func (e *TerminalConflictError) Error() string {
	return fmt.Sprintf("run %s is already in a terminal status", e.RunID)
}

// IsTerminalConflict reports whether err is a *TerminalConflictError.
func IsTerminalConflict(err error) bool {
	_, ok := err.(*TerminalConflictError)
	return ok
}
