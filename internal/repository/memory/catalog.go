// Package memory provides in-memory implementations of the catalog store
// and run registry, used for unit tests and local development without a
// Postgres dependency.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/repository"
)

// CatalogStore is an in-memory repository.CatalogStore.
type CatalogStore struct {
	mu         sync.RWMutex
	employees  map[entity.EmployeeID]entity.Employee
	shifts     map[entity.ShiftID]entity.Shift
	demand     []entity.Demand
	nextID     int64
	queryCount int
}

// NewCatalogStore creates an empty in-memory catalog store.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		employees: make(map[entity.EmployeeID]entity.Employee),
		shifts:    make(map[entity.ShiftID]entity.Shift),
	}
}

// PutEmployee inserts or replaces an employee (catalog mutation; out-of-band
// per spec §3).
func (c *CatalogStore) PutEmployee(e entity.Employee) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.employees[e.ID] = e
}

// PutShift inserts or replaces a shift.
func (c *CatalogStore) PutShift(s entity.Shift) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shifts[s.ID] = s
}

// PutDemand appends a demand row, assigning a surrogate id if unset.
func (c *CatalogStore) PutDemand(d entity.Demand) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.ID == 0 {
		c.nextID++
		d.ID = c.nextID
	}
	c.demand = append(c.demand, d)
}

// DeleteEmployee drops an employee, simulating staff turnover mid-horizon
// (exercised by the enricher's fallback path, spec §4.7).
func (c *CatalogStore) DeleteEmployee(id entity.EmployeeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.employees, id)
}

func (c *CatalogStore) EmployeeByID(_ context.Context, id entity.EmployeeID) (entity.Employee, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.queryCount++

	e, ok := c.employees[id]
	if !ok {
		return entity.Employee{}, &repository.NotFoundError{Resource: "Employee", ID: id}
	}
	return e, nil
}

func (c *CatalogStore) ShiftByID(_ context.Context, id entity.ShiftID) (entity.Shift, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.queryCount++

	s, ok := c.shifts[id]
	if !ok {
		return entity.Shift{}, &repository.NotFoundError{Resource: "Shift", ID: id}
	}
	return s, nil
}

func (c *CatalogStore) DemandInRange(_ context.Context, start time.Time, days int) ([]entity.Demand, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.queryCount++

	end := start.AddDate(0, 0, days)
	var out []entity.Demand
	for _, d := range c.demand {
		if !d.Date.Before(start) && d.Date.Before(end) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Snapshot returns a consistent triple (employees, shifts, demand). Since
// all three collections are read under one lock, the result is internally
// consistent even under concurrent catalog mutation.
func (c *CatalogStore) Snapshot(_ context.Context) (entity.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.queryCount++

	snap := entity.Snapshot{TakenAt: time.Now().UTC()}
	for _, e := range c.employees {
		snap.Employees = append(snap.Employees, e)
	}
	for _, s := range c.shifts {
		snap.Shifts = append(snap.Shifts, s)
	}
	snap.Demand = append(snap.Demand, c.demand...)

	sort.Slice(snap.Employees, func(i, j int) bool { return snap.Employees[i].ID < snap.Employees[j].ID })
	sort.Slice(snap.Shifts, func(i, j int) bool { return snap.Shifts[i].ID < snap.Shifts[j].ID })
	sort.Slice(snap.Demand, func(i, j int) bool { return snap.Demand[i].ID < snap.Demand[j].ID })
	return snap, nil
}

// Seed resets the catalog to the fixed demo dataset used throughout spec §8
// (three employees, three shifts), idempotent and without effect on runs.
func (c *CatalogStore) Seed(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.employees = map[entity.EmployeeID]entity.Employee{
		"E1": {ID: "E1", Name: "Doctor One", Role: entity.RoleDoctor, Skills: []entity.SkillToken{"MD"}, HourlyCost: 150, MaxWeeklyHours: 40},
		"E2": {ID: "E2", Name: "Nurse Senior", Role: entity.RoleNurse, Skills: []entity.SkillToken{"RN", "ICU", "Senior"}, HourlyCost: 55, MaxWeeklyHours: 48},
		"E3": {ID: "E3", Name: "Nurse Junior", Role: entity.RoleNurse, Skills: []entity.SkillToken{"RN", "Junior"}, HourlyCost: 50, MaxWeeklyHours: 40},
	}
	c.shifts = map[entity.ShiftID]entity.Shift{
		"S1": {ID: "S1", Name: "Morning", StartMin: 7 * 60, EndMin: 15 * 60, LengthHrs: 8},
		"S2": {ID: "S2", Name: "Afternoon", StartMin: 15 * 60, EndMin: 23 * 60, LengthHrs: 8},
		"S3": {ID: "S3", Name: "Night", StartMin: 23 * 60, EndMin: 7 * 60, LengthHrs: 8},
	}
	c.demand = nil
	c.nextID = 0
	return nil
}
