package api

import (
	"time"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

// dateLayout is the wire format for Request.HorizonStart (spec §3, §6).
const dateLayout = "2006-01-02"

// submitRequestDTO is the JSON shape of the request endpoint's body (spec
// §6), one field per §3 Request attribute.
type submitRequestDTO struct {
	HorizonStart            string   `json:"horizon_start"`
	HorizonDays             int      `json:"horizon_days"`
	SolverTimeLimitSeconds  int      `json:"solver_time_limit"`
	AllowUncoveredDemand    bool     `json:"allow_uncovered_demand"`
	PenaltyUncovered        float64  `json:"penalty_uncovered"`
	WeightPreference        float64  `json:"weight_preference"`
	MaxConsecutiveDays      int      `json:"max_consecutive_days"`
	MinRestHours            float64  `json:"min_rest_hours"`
	MaxNightShifts          int      `json:"max_night_shifts"`
	MinShiftsPerEmployee    int      `json:"min_shifts_per_employee"`
	RequireCompleteWeekends bool     `json:"require_complete_weekends"`
	CriticalShiftIDs        []string `json:"critical_shift_ids,omitempty"`
}

// toRequest parses the DTO into an entity.Request. Parse failures (a
// malformed horizon_start) are reported the same way a semantic validation
// failure is: synchronously, before any registry row is created.
func (d submitRequestDTO) toRequest() (entity.Request, error) {
	start, err := time.Parse(dateLayout, d.HorizonStart)
	if err != nil {
		return entity.Request{}, &fieldError{field: "horizon_start", reason: "must be an RFC3339 date (YYYY-MM-DD)"}
	}

	return entity.Request{
		HorizonStart:            start,
		HorizonDays:              d.HorizonDays,
		SolverTimeLimitSeconds:   d.SolverTimeLimitSeconds,
		AllowUncoveredDemand:     d.AllowUncoveredDemand,
		PenaltyUncovered:         d.PenaltyUncovered,
		WeightPreference:         d.WeightPreference,
		MaxConsecutiveDays:       d.MaxConsecutiveDays,
		MinRestHours:             d.MinRestHours,
		MaxNightShifts:           d.MaxNightShifts,
		MinShiftsPerEmployee:     d.MinShiftsPerEmployee,
		RequireCompleteWeekends:  d.RequireCompleteWeekends,
		CriticalShiftIDs:         d.CriticalShiftIDs,
	}, nil
}

// fieldError mirrors validation.InvalidRequest's shape for DTO-level
// parse failures that never reach the request/result contract (C7).
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return "invalid request: " + e.field + ": " + e.reason
}

// runResponse is the JSON shape of the status endpoint (spec §6): the Run
// record plus, on success, the enriched roster and coverage accounting.
type runResponse struct {
	RunID          string                       `json:"run_id"`
	Status         entity.RunStatus             `json:"status"`
	ObjectiveValue *float64                     `json:"objective_value,omitempty"`
	CreatedAt      time.Time                    `json:"created_at"`
	CompletedAt    *time.Time                   `json:"completed_at,omitempty"`
	Logs           string                       `json:"logs,omitempty"`
	Assignments    []entity.EnrichedAssignment  `json:"assignments,omitempty"`
	Coverage       []coverageDetailDTO          `json:"coverage,omitempty"`
}

type coverageDetailDTO struct {
	Date      string  `json:"date"`
	ShiftID   string  `json:"shift_id"`
	Skill     string  `json:"skill"`
	Required  int     `json:"required"`
	Assigned  int     `json:"assigned"`
	Shortfall int     `json:"shortfall"`
	Status    string  `json:"status"`
}
