// Package enricher joins a run's raw assignments against a catalog
// snapshot to produce the display-ready roster the status endpoint
// returns.
package enricher

import (
	"sort"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

// unknownRole is substituted when an assignment's employee has since been
// removed from the catalog (spec §4.7), so a roster stays displayable
// after staff turnover instead of failing the whole enrichment.
const unknownRole entity.Role = "Unknown"

// Enrich joins raw against snap in a single batch pass — building lookup
// maps once rather than scanning the catalog per assignment avoids the N+1
// pattern the teacher's repository layer explicitly guards against for its
// own batch reads. Output is ordered by (date, shift start-time, employee
// role, employee display name), a stable primary key independent of
// extraction order.
func Enrich(raw []entity.RawAssignment, snap entity.Snapshot) []entity.EnrichedAssignment {
	employees := make(map[entity.EmployeeID]entity.Employee, len(snap.Employees))
	for _, e := range snap.Employees {
		employees[e.ID] = e
	}
	shifts := make(map[entity.ShiftID]entity.Shift, len(snap.Shifts))
	for _, s := range snap.Shifts {
		shifts[s.ID] = s
	}

	out := make([]entity.EnrichedAssignment, 0, len(raw))
	for _, a := range raw {
		ea := entity.EnrichedAssignment{RawAssignment: a}

		if e, ok := employees[a.EmployeeID]; ok {
			ea.EmployeeName = e.Name
			ea.EmployeeRole = e.Role
		} else {
			ea.EmployeeName = a.EmployeeID
			ea.EmployeeRole = unknownRole
		}

		if s, ok := shifts[a.ShiftID]; ok {
			ea.ShiftName = s.Name
		} else {
			ea.ShiftName = a.ShiftID
		}

		out = append(out, ea)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		si, iok := shifts[out[i].ShiftID]
		sj, jok := shifts[out[j].ShiftID]
		if iok && jok && si.StartMin != sj.StartMin {
			return si.StartMin < sj.StartMin
		}
		if out[i].EmployeeRole != out[j].EmployeeRole {
			return out[i].EmployeeRole < out[j].EmployeeRole
		}
		return out[i].EmployeeName < out[j].EmployeeName
	})
	return out
}
