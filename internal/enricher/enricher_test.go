package enricher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

func snap() entity.Snapshot {
	return entity.Snapshot{
		Employees: []entity.Employee{
			{ID: "E1", Name: "Doctor One", Role: entity.RoleDoctor},
			{ID: "E2", Name: "Nurse Senior", Role: entity.RoleNurse},
		},
		Shifts: []entity.Shift{
			{ID: "S1", Name: "Morning", StartMin: 7 * 60},
			{ID: "S2", Name: "Afternoon", StartMin: 15 * 60},
		},
	}
}

func TestEnrichResolvesNameRoleAndShiftName(t *testing.T) {
	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	raw := []entity.RawAssignment{{EmployeeID: "E1", ShiftID: "S1", Date: day, Hours: 8, Cost: 1200}}

	out := Enrich(raw, snap())

	require.Len(t, out, 1)
	assert.Equal(t, "Doctor One", out[0].EmployeeName)
	assert.Equal(t, entity.RoleDoctor, out[0].EmployeeRole)
	assert.Equal(t, "Morning", out[0].ShiftName)
}

func TestEnrichFallsBackWhenEmployeeRemoved(t *testing.T) {
	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	raw := []entity.RawAssignment{{EmployeeID: "gone", ShiftID: "S1", Date: day, Hours: 8, Cost: 400}}

	out := Enrich(raw, snap())

	require.Len(t, out, 1)
	assert.Equal(t, "gone", out[0].EmployeeName)
	assert.Equal(t, unknownRole, out[0].EmployeeRole)
	assert.Equal(t, 400.0, out[0].Cost)
}

func TestEnrichFallsBackWhenShiftRemoved(t *testing.T) {
	day := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	raw := []entity.RawAssignment{{EmployeeID: "E1", ShiftID: "gone", Date: day}}

	out := Enrich(raw, snap())

	require.Len(t, out, 1)
	assert.Equal(t, "gone", out[0].ShiftName)
}

func TestEnrichOrdersByDateThenShiftStartThenRoleThenName(t *testing.T) {
	day1 := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC)
	raw := []entity.RawAssignment{
		{EmployeeID: "E2", ShiftID: "S2", Date: day1},
		{EmployeeID: "E1", ShiftID: "S1", Date: day1},
		{EmployeeID: "E1", ShiftID: "S1", Date: day2},
	}

	out := Enrich(raw, snap())

	require.Len(t, out, 3)
	assert.True(t, out[0].Date.Equal(day1))
	assert.Equal(t, "S1", out[0].ShiftID)
	assert.Equal(t, "S2", out[1].ShiftID)
	assert.True(t, out[2].Date.Equal(day2))
}
