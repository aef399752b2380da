package validation

import (
	"fmt"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

// InvalidRequest is returned synchronously from submit (spec §4.1, §7). It
// carries exactly one offending field and the reason it was rejected; the
// request contract rejects on the first violation rather than accumulating
// a Result, since a malformed request must never create a registry row.
type InvalidRequest struct {
	Field  string
	Reason string
}

func (e *InvalidRequest) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// ValidateRequest checks a Request against the bounds in spec §4.1. It
// returns the first violation found as an *InvalidRequest, or nil if the
// request is well-formed.
func ValidateRequest(req entity.Request) error {
	if req.HorizonDays < 1 || req.HorizonDays > 28 {
		return &InvalidRequest{Field: "horizon_days", Reason: "must be in [1, 28]"}
	}
	if req.SolverTimeLimitSeconds < 1 || req.SolverTimeLimitSeconds > 600 {
		return &InvalidRequest{Field: "solver_time_limit", Reason: "must be in [1, 600] seconds"}
	}
	if req.AllowUncoveredDemand && req.PenaltyUncovered < 0 {
		return &InvalidRequest{Field: "penalty_uncovered", Reason: "must be >= 0 when allow_uncovered_demand is true"}
	}
	if req.MaxConsecutiveDays < 1 || req.MaxConsecutiveDays > req.HorizonDays {
		return &InvalidRequest{Field: "max_consecutive_days", Reason: "must be in [1, horizon_days]"}
	}
	if req.MinRestHours < 0 || req.MinRestHours > 24 {
		return &InvalidRequest{Field: "min_rest_hours", Reason: "must be in [0, 24]"}
	}
	if req.MaxNightShifts < 0 {
		return &InvalidRequest{Field: "max_night_shifts", Reason: "must be >= 0"}
	}
	if req.MinShiftsPerEmployee < 0 {
		return &InvalidRequest{Field: "min_shifts_per_employee", Reason: "must be >= 0"}
	}
	return nil
}
