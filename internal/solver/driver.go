// Package solver drives the HiGHS backend against a built model, interprets
// its termination status, extracts a raw assignment list, validates it
// against the hard constraints it was solved against, and — on a
// proven-infeasible outcome — classifies the conflict by deletion-filtering
// over constraint families.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nextmv-io/go-highs"
	"github.com/nextmv-io/go-mip"

	"github.com/hospitalops/shiftsolver/internal/builder"
	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/validation"
)

// roundingThreshold is the float-noise tolerance applied when rounding a
// backend's binary variable values back to {0,1} (spec §4.5).
const roundingThreshold = 0.5

// backendRetries / backendRetryBase govern the exponential backoff applied
// to backend connectivity failures before they surface as BackendError
// (spec §7).
const (
	backendRetries   = 3
	backendRetryBase = 200 * time.Millisecond
)

// Outcome is the result of one solve attempt, ready to be written into a
// Run via registry.Finalize.
type Outcome struct {
	Status          entity.RunStatus
	ObjectiveValue  *float64
	Assignments     []entity.RawAssignment
	Conflicts       []entity.Conflict
	Message         string
	IISDurationSecs float64
}

// Solve builds the model from snap/req, drives the backend within the
// request's time limit, and returns a terminal Outcome. It never returns an
// error for a solve-time failure; every failure mode is folded into the
// Outcome's Status and Message so a caller can finalize the run directly
// (spec §7: "the orchestrator never crashes a worker on a single failed
// solve").
func Solve(ctx context.Context, snap entity.Snapshot, req entity.Request) Outcome {
	b, err := builder.Build(snap, req, nil)
	if err != nil {
		return errorOutcome(validation.CodeBackendError, "build", err.Error())
	}

	solution, err := solveWithRetry(ctx, b.Model, req)
	if err != nil {
		return errorOutcome(validation.CodeBackendError, "solve", err.Error())
	}

	if !solution.HasValues() {
		iisStart := time.Now()
		conflicts := classifyInfeasibility(ctx, snap, req)
		return Outcome{
			Status:          entity.RunStatusInfeasible,
			Conflicts:       conflicts,
			Message:         logConflicts(conflicts),
			IISDurationSecs: time.Since(iisStart).Seconds(),
		}
	}

	assignments, err := extract(b, snap, req, solution)
	if err != nil {
		var mismatch *roundingMismatchError
		if errors.As(err, &mismatch) {
			return errorOutcome(validation.CodeRoundingMismatch, "extract", err.Error())
		}
		return errorOutcome(validation.CodeBackendError, "extract", err.Error())
	}

	status := entity.RunStatusFeasible
	if solution.IsOptimal() {
		status = entity.RunStatusOptimal
	}
	obj := solution.ObjectiveValue()
	msg := ""
	if len(b.Warnings) > 0 {
		r := validation.NewResult()
		for _, w := range b.Warnings {
			r.AddWarning(validation.CodeMinShiftsDownshifted, w)
		}
		msg = validation.LogResult(r)
	}
	return Outcome{Status: status, ObjectiveValue: &obj, Assignments: assignments, Message: msg}
}

// errorOutcome builds an ERROR Outcome whose Message is a structured,
// single-message validation.Result naming the failing stage (spec §7:
// "BackendError ... with the backend's raw message and the failing stage
// {build, solve, extract}").
func errorOutcome(code, stage, text string) Outcome {
	return Outcome{
		Status:  entity.RunStatusError,
		Message: validation.Log(validation.SeverityError, code, text, map[string]interface{}{"stage": stage}),
	}
}

func solveOptions(req entity.Request) mip.SolveOptions {
	opts := mip.SolveOptions{}
	opts.Duration = time.Duration(req.SolverTimeLimitSeconds) * time.Second
	opts.MIP.Gap.Relative = 0.0
	opts.Verbosity = mip.Off
	return opts
}

// solveWithRetry retries backend connectivity failures (an error returned
// from the backend itself, as opposed to a proven-infeasible termination,
// which comes back as a solution with no values and no error) up to three
// times with exponential backoff.
func solveWithRetry(ctx context.Context, m mip.Model, req entity.Request) (mip.Solution, error) {
	var lastErr error
	for attempt := 0; attempt <= backendRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backendRetryBase << uint(attempt-1)):
			}
		}
		s := highs.NewSolver(m)
		solution, err := s.Solve(solveOptions(req))
		if err == nil {
			return solution, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// roundingMismatchError is returned by extract when the rounded {0,1}
// solution fails re-validation against the hard constraints it was solved
// against — float noise from the backend rounded away a term that the
// solver's own (unrounded) solution actually relied on.
type roundingMismatchError struct {
	violations []string
}

func (e *roundingMismatchError) Error() string {
	return "rounded solution violates hard constraints: " + strings.Join(e.violations, "; ")
}

// extract rounds each x[e,t,s] to {0,1} at roundingThreshold, builds the raw
// assignment list, and then validates the rounded solution against the hard
// constraint families validateRoundedSolution re-checks (weekly_hours and
// min_shifts are not among them). A mismatch returns a
// *roundingMismatchError rather than shipping an unsound roster.
func extract(b *builder.Result, snap entity.Snapshot, req entity.Request, solution mip.Solution) ([]entity.RawAssignment, error) {
	rounded := make(map[builder.XKey]bool, len(b.X))
	var out []entity.RawAssignment
	for key, v := range b.X {
		if solution.Value(v) < roundingThreshold {
			continue
		}
		rounded[key] = true

		e, ok := snap.EmployeeByID(key.Employee)
		if !ok {
			return nil, fmt.Errorf("extract: assigned employee %s not in snapshot", key.Employee)
		}
		s, ok := snap.ShiftByID(key.Shift)
		if !ok {
			return nil, fmt.Errorf("extract: assigned shift %s not in snapshot", key.Shift)
		}
		out = append(out, entity.RawAssignment{
			EmployeeID: key.Employee,
			Date:       req.HorizonStart.AddDate(0, 0, key.Day),
			ShiftID:    key.Shift,
			Hours:      s.LengthHrs,
			Cost:       e.HourlyCost * s.LengthHrs,
		})
	}

	if violations := validateRoundedSolution(snap, req, rounded); len(violations) > 0 {
		return nil, &roundingMismatchError{violations: violations}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].ShiftID != out[j].ShiftID {
			return out[i].ShiftID < out[j].ShiftID
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

// validateRoundedSolution re-checks these hard constraint families directly
// against the rounded x[e,t,s] assignment: one_per_day, forbidden_pair,
// consec_days, skill_ratio, night_cap, weekend_link when enabled, and skill
// compatibility per spec §8 item 3. cover is not re-checked, since it is the
// elastic, penalised family; weekly_hours and min_shifts are not re-checked
// either. It mirrors the builder's
// own loops rather than introspecting the solved mip.Model, since
// mip.Constraint exposes no generic way to recover a constraint's terms
// after the fact. Returns one human-readable violation string per mismatch,
// or nil if the rounded solution is sound.
func validateRoundedSolution(snap entity.Snapshot, req entity.Request, x map[builder.XKey]bool) []string {
	var violations []string
	days := req.HorizonDays

	for _, e := range snap.Employees {
		for t := 0; t < days; t++ {
			count := 0
			for _, s := range snap.Shifts {
				if x[builder.XKey{Employee: e.ID, Day: t, Shift: s.ID}] {
					count++
				}
			}
			if count > 1 {
				violations = append(violations, fmt.Sprintf("one_per_day[%s,%d]: %d shifts assigned in one day", e.ID, t, count))
			}
		}
	}

	for _, e := range snap.Employees {
		for t := 0; t < days-1; t++ {
			for _, s1 := range snap.Shifts {
				if !x[builder.XKey{Employee: e.ID, Day: t, Shift: s1.ID}] {
					continue
				}
				for _, s2 := range snap.Shifts {
					if s1.RestGapHours(s2) >= req.MinRestHours {
						continue
					}
					if x[builder.XKey{Employee: e.ID, Day: t + 1, Shift: s2.ID}] {
						violations = append(violations, fmt.Sprintf(
							"forbidden_pair[%s,%d,%s,%s]: rest gap below minimum", e.ID, t, s1.ID, s2.ID))
					}
				}
			}
		}
	}

	if window := req.MaxConsecutiveDays; window > 0 {
		for _, e := range snap.Employees {
			for t := 0; t+window < days; t++ {
				count := 0
				for j := t; j <= t+window; j++ {
					for _, s := range snap.Shifts {
						if x[builder.XKey{Employee: e.ID, Day: j, Shift: s.ID}] {
							count++
						}
					}
				}
				if count > window {
					violations = append(violations, fmt.Sprintf("consec_days[%s,%d]: %d worked days in window of %d", e.ID, t, count, window))
				}
			}
		}
	}

	if len(req.CriticalShiftIDs) > 0 {
		critical := map[entity.ShiftID]bool{}
		for _, id := range req.CriticalShiftIDs {
			critical[id] = true
		}
		for _, s := range snap.Shifts {
			if !critical[s.ID] {
				continue
			}
			for t := 0; t < days; t++ {
				senior, junior := 0, 0
				for _, e := range snap.Employees {
					if !x[builder.XKey{Employee: e.ID, Day: t, Shift: s.ID}] {
						continue
					}
					switch {
					case e.HasSkill("Senior"):
						senior++
					case e.HasSkill("Junior"):
						junior++
					}
				}
				if senior < junior {
					violations = append(violations, fmt.Sprintf("skill_ratio[%d,%s]: %d senior < %d junior", t, s.ID, senior, junior))
				}
			}
		}
	}

	for _, e := range snap.Employees {
		nights := 0
		for t := 0; t < days; t++ {
			for _, s := range snap.Shifts {
				if s.IsNight() && x[builder.XKey{Employee: e.ID, Day: t, Shift: s.ID}] {
					nights++
				}
			}
		}
		if nights > req.MaxNightShifts {
			violations = append(violations, fmt.Sprintf("night_cap[%s]: %d night shifts exceeds cap %d", e.ID, nights, req.MaxNightShifts))
		}
	}

	if req.RequireCompleteWeekends {
		for _, e := range snap.Employees {
			for t := 0; t < days-1; t++ {
				if req.HorizonStart.AddDate(0, 0, t).Weekday() != time.Saturday {
					continue
				}
				satWorked, sunWorked := false, false
				for _, s := range snap.Shifts {
					if x[builder.XKey{Employee: e.ID, Day: t, Shift: s.ID}] {
						satWorked = true
					}
					if x[builder.XKey{Employee: e.ID, Day: t + 1, Shift: s.ID}] {
						sunWorked = true
					}
				}
				if satWorked != sunWorked {
					violations = append(violations, fmt.Sprintf(
						"weekend_link[%s,%d]: saturday=%v sunday=%v", e.ID, t, satWorked, sunWorked))
				}
			}
		}
	}

	violations = append(violations, validateSkillCompatibility(snap, req, x)...)

	return violations
}

// validateSkillCompatibility checks spec §8 item 3's last clause: every
// assigned employee must hold at least one skill demanded on the (day,
// shift) slot they were assigned to, for slots that carry any demand at
// all.
func validateSkillCompatibility(snap entity.Snapshot, req entity.Request, x map[builder.XKey]bool) []string {
	type slot struct {
		day   int
		shift entity.ShiftID
	}
	skillsBySlot := map[slot][]entity.SkillToken{}
	for _, d := range snap.Demand {
		day := int(d.Date.Sub(req.HorizonStart).Hours() / 24)
		if day < 0 || day >= req.HorizonDays {
			continue
		}
		skillsBySlot[slot{day, d.ShiftID}] = append(skillsBySlot[slot{day, d.ShiftID}], d.Skill)
	}

	var violations []string
	for key, assigned := range x {
		if !assigned {
			continue
		}
		required, ok := skillsBySlot[slot{key.Day, key.Shift}]
		if !ok {
			continue
		}
		e, ok := snap.EmployeeByID(key.Employee)
		if !ok {
			continue
		}
		compatible := false
		for _, tok := range required {
			if e.HasSkill(tok) {
				compatible = true
				break
			}
		}
		if !compatible {
			violations = append(violations, fmt.Sprintf(
				"skill_compat[%s,%d,%s]: employee holds none of the demanded skills %v", key.Employee, key.Day, key.Shift, required))
		}
	}
	return violations
}

// classifyInfeasibility runs the deletion-filtering IIS search of spec §4.5:
// each constraint family is tentatively excluded in turn; a family whose
// removal still leaves the model infeasible is dropped for good, one whose
// removal restores feasibility is restored and recorded as irreducible.
func classifyInfeasibility(ctx context.Context, snap entity.Snapshot, req entity.Request) []entity.Conflict {
	families := []entity.ConstraintFamily{
		entity.FamilyCover,
		entity.FamilyOnePerDay,
		entity.FamilyWeeklyHours,
		entity.FamilyForbiddenPair,
		entity.FamilyConsecDays,
		entity.FamilySkillRatio,
		entity.FamilyNightCap,
		entity.FamilyMinShifts,
		entity.FamilyWeekendLink,
	}

	subBudget := req.SolverTimeLimitSeconds / len(families)
	if subBudget < 1 {
		subBudget = 1
	}
	subReq := req
	subReq.SolverTimeLimitSeconds = subBudget

	full, err := builder.Build(snap, subReq, nil)
	fullTags := map[entity.ConstraintFamily][]string{}
	if err == nil {
		fullTags = full.TagsByFamily
	}

	irreducible := map[entity.ConstraintFamily]bool{}
	excluded := map[entity.ConstraintFamily]bool{}

	for _, f := range families {
		if ctx.Err() != nil {
			break
		}
		trial := map[entity.ConstraintFamily]bool{f: true}
		for k := range excluded {
			trial[k] = true
		}
		b, err := builder.Build(snap, subReq, trial)
		if err != nil {
			continue
		}

		s := highs.NewSolver(b.Model)
		solution, err := s.Solve(solveOptions(subReq))
		if err != nil {
			continue
		}
		if solution.HasValues() {
			// Removing f restored feasibility: f is part of the conflict.
			irreducible[f] = true
		} else {
			// Still infeasible without f: f was never load-bearing for
			// this conflict, drop it permanently for subsequent trials.
			excluded[f] = true
		}
	}

	// If nothing was identified as irreducible (e.g. the full deletion
	// pass never isolated a restoring family), fall back to the full
	// family list so the conflict report is never empty.
	if len(irreducible) == 0 {
		for _, f := range families {
			irreducible[f] = true
		}
	}

	var conflicts []entity.Conflict
	for _, f := range families {
		if !irreducible[f] {
			continue
		}
		conflicts = append(conflicts, entity.Conflict{
			Family:      f,
			Description: describeFamily(f),
			Tags:        fullTags[f],
		})
	}
	return conflicts
}

func describeFamily(f entity.ConstraintFamily) string {
	switch f {
	case entity.FamilyCover:
		return "insufficient staffing capacity to meet demand"
	case entity.FamilyForbiddenPair, entity.FamilyWeeklyHours:
		return "rest/hours conflict"
	case entity.FamilySkillRatio:
		return "seniority imbalance"
	default:
		return "infeasible constraint"
	}
}

// codeForFamily maps a classified conflict's family to the validation.Code
// the run's structured log uses for it.
func codeForFamily(f entity.ConstraintFamily) string {
	switch f {
	case entity.FamilyCover:
		return validation.CodeInsufficientStaffing
	case entity.FamilyForbiddenPair, entity.FamilyWeeklyHours:
		return validation.CodeRestHoursConflict
	case entity.FamilySkillRatio:
		return validation.CodeSeniorityImbalance
	default:
		return validation.CodeInfeasibleGeneric
	}
}

// logConflicts serializes a classified conflict list into a run's Logs
// field as a structured validation.Result, one ERROR message per family
// (spec §7: "a structured conflict list — one entry per IIS constraint
// family with parameters decoded from its tag").
func logConflicts(conflicts []entity.Conflict) string {
	r := validation.NewResult()
	for _, c := range conflicts {
		r.AddErrorWithContext(codeForFamily(c.Family), c.Description, map[string]interface{}{
			"family": string(c.Family),
			"tags":   c.Tags,
		})
	}
	return validation.LogResult(r)
}
