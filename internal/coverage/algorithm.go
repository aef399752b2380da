// Package coverage provides a pure functional algorithm for resolving how
// well a completed run's assignments satisfy the demand rows it was solved
// against — the read-side counterpart to the cover[t,s,k] constraint family
// (spec §4.4 item 1) and the accounting property spec §8 item 4 requires:
// the reported shortfall must equal max(0, required - assigned) summed
// across every (date, shift, skill) demand row.
package coverage

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

// Status classifies one demand row's staffing outcome.
type Status string

const (
	StatusFull      Status = "FULL"
	StatusPartial   Status = "PARTIAL"
	StatusUncovered Status = "UNCOVERED"
)

// Key identifies one demand row: a date, a shift, and a required skill.
type Key struct {
	Date    time.Time
	ShiftID entity.ShiftID
	Skill   entity.SkillToken
}

// Detail is the staffing outcome for a single demand row.
type Detail struct {
	Key        Key     `json:"key"`
	Required   int     `json:"required"`
	Assigned   int     `json:"assigned"`
	Shortfall  int     `json:"shortfall"`
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
}

// Summary aggregates every demand row's Detail for one run.
type Summary struct {
	Details           []Detail `json:"details"`
	TotalShortfall    int      `json:"total_shortfall"`
	OverallPercentage float64  `json:"overall_percentage"`
	Summary           string   `json:"summary"`
}

// Resolve is a pure function: given the demand rows a run was solved
// against and the raw assignments it produced, compute per-row and
// aggregate coverage. assigned(t,s,k) counts distinct employees assigned to
// (date, shift) who carry skill k, mirroring the cover constraint's left
// side exactly so Σ shortfall here reconciles with the model's Σ y[t,s,k]
// (spec §8 item 4).
func Resolve(demand []entity.Demand, assignments []entity.RawAssignment, snap entity.Snapshot) Summary {
	if len(demand) == 0 {
		return Summary{Summary: "No demand defined"}
	}

	employees := make(map[entity.EmployeeID]entity.Employee, len(snap.Employees))
	for _, e := range snap.Employees {
		employees[e.ID] = e
	}

	type slotKey struct {
		date    time.Time
		shiftID entity.ShiftID
	}
	assignedBySlot := make(map[slotKey][]entity.EmployeeID)
	for _, a := range assignments {
		k := slotKey{date: a.Date, shiftID: a.ShiftID}
		assignedBySlot[k] = append(assignedBySlot[k], a.EmployeeID)
	}

	details := make([]Detail, 0, len(demand))
	totalAssigned, totalRequired := 0, 0

	for _, d := range demand {
		assigned := 0
		for _, empID := range assignedBySlot[slotKey{date: d.Date, shiftID: d.ShiftID}] {
			if emp, ok := employees[empID]; ok && emp.HasSkill(d.Skill) {
				assigned++
			}
		}

		pct := percentage(assigned, d.Required)
		shortfall := d.Required - assigned
		if shortfall < 0 {
			shortfall = 0
		}

		details = append(details, Detail{
			Key:        Key{Date: d.Date, ShiftID: d.ShiftID, Skill: d.Skill},
			Required:   d.Required,
			Assigned:   assigned,
			Shortfall:  shortfall,
			Percentage: pct,
			Status:     status(assigned, d.Required),
		})

		totalAssigned += assigned
		totalRequired += d.Required
	}

	sort.Slice(details, func(i, j int) bool {
		if !details[i].Key.Date.Equal(details[j].Key.Date) {
			return details[i].Key.Date.Before(details[j].Key.Date)
		}
		if details[i].Key.ShiftID != details[j].Key.ShiftID {
			return details[i].Key.ShiftID < details[j].Key.ShiftID
		}
		return details[i].Key.Skill < details[j].Key.Skill
	})

	totalShortfall := 0
	for _, d := range details {
		totalShortfall += d.Shortfall
	}

	return Summary{
		Details:           details,
		TotalShortfall:    totalShortfall,
		OverallPercentage: percentage(totalAssigned, totalRequired),
		Summary:           buildSummary(details, totalShortfall),
	}
}

// percentage computes (assigned/required)*100 capped at 100, with the
// zero-requirement edge case reporting 0 rather than dividing by zero.
func percentage(assigned, required int) float64 {
	if required == 0 {
		return 0
	}
	pct := (float64(assigned) / float64(required)) * 100
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*100) / 100
}

func status(assigned, required int) Status {
	switch {
	case assigned >= required:
		return StatusFull
	case assigned > 0:
		return StatusPartial
	default:
		return StatusUncovered
	}
}

func buildSummary(details []Detail, totalShortfall int) string {
	uncovered, partial := 0, 0
	for _, d := range details {
		switch d.Status {
		case StatusUncovered:
			uncovered++
		case StatusPartial:
			partial++
		}
	}
	if totalShortfall == 0 {
		return fmt.Sprintf("Full coverage across %d demand rows", len(details))
	}
	return fmt.Sprintf("%d/%d rows fully covered, %d partial, %d uncovered (shortfall %d)",
		len(details)-partial-uncovered, len(details), partial, uncovered, totalShortfall)
}
