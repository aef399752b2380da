package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hospitalops/shiftsolver/internal/entity"
	"github.com/hospitalops/shiftsolver/internal/repository"
)

// CatalogStore implements repository.CatalogStore for PostgreSQL.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore creates a new PostgreSQL-backed catalog store.
func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (c *CatalogStore) EmployeeByID(ctx context.Context, id entity.EmployeeID) (entity.Employee, error) {
	var e entity.Employee
	var skills pq.StringArray

	query := `SELECT employee_id, name, role, skills, hourly_cost, max_weekly_hours FROM employees WHERE employee_id = $1`
	err := c.db.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Name, &e.Role, &skills, &e.HourlyCost, &e.MaxWeeklyHours)
	if err == sql.ErrNoRows {
		return entity.Employee{}, &repository.NotFoundError{Resource: "Employee", ID: id}
	}
	if err != nil {
		return entity.Employee{}, fmt.Errorf("get employee: %w", err)
	}
	e.Skills = append(e.Skills, []entity.SkillToken(skills)...)
	return e, nil
}

func (c *CatalogStore) ShiftByID(ctx context.Context, id entity.ShiftID) (entity.Shift, error) {
	var s entity.Shift
	query := `SELECT shift_id, name, start_min, end_min, length_hrs FROM shifts WHERE shift_id = $1`
	err := c.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.StartMin, &s.EndMin, &s.LengthHrs)
	if err == sql.ErrNoRows {
		return entity.Shift{}, &repository.NotFoundError{Resource: "Shift", ID: id}
	}
	if err != nil {
		return entity.Shift{}, fmt.Errorf("get shift: %w", err)
	}
	return s, nil
}

func (c *CatalogStore) DemandInRange(ctx context.Context, start time.Time, days int) ([]entity.Demand, error) {
	end := start.AddDate(0, 0, days)
	query := `
		SELECT id, date, shift_id, skill, required
		FROM demands
		WHERE date >= $1 AND date < $2
		ORDER BY id
	`
	rows, err := c.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query demand in range: %w", err)
	}
	defer rows.Close()

	var out []entity.Demand
	for rows.Next() {
		var d entity.Demand
		if err := rows.Scan(&d.ID, &d.Date, &d.ShiftID, &d.Skill, &d.Required); err != nil {
			return nil, fmt.Errorf("scan demand: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Snapshot reads employees, shifts, and demand as one consistent view. The
// three reads execute inside a single read-only transaction so a concurrent
// catalog write cannot be observed as a torn snapshot (spec §4.2).
func (c *CatalogStore) Snapshot(ctx context.Context) (entity.Snapshot, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	snap := entity.Snapshot{TakenAt: time.Now().UTC()}

	empRows, err := tx.QueryContext(ctx, `SELECT employee_id, name, role, skills, hourly_cost, max_weekly_hours FROM employees ORDER BY employee_id`)
	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("query employees: %w", err)
	}
	for empRows.Next() {
		var e entity.Employee
		var skills pq.StringArray
		if err := empRows.Scan(&e.ID, &e.Name, &e.Role, &skills, &e.HourlyCost, &e.MaxWeeklyHours); err != nil {
			empRows.Close()
			return entity.Snapshot{}, fmt.Errorf("scan employee: %w", err)
		}
		e.Skills = append(e.Skills, []entity.SkillToken(skills)...)
		snap.Employees = append(snap.Employees, e)
	}
	if err := empRows.Err(); err != nil {
		empRows.Close()
		return entity.Snapshot{}, err
	}
	empRows.Close()

	shiftRows, err := tx.QueryContext(ctx, `SELECT shift_id, name, start_min, end_min, length_hrs FROM shifts ORDER BY shift_id`)
	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("query shifts: %w", err)
	}
	for shiftRows.Next() {
		var s entity.Shift
		if err := shiftRows.Scan(&s.ID, &s.Name, &s.StartMin, &s.EndMin, &s.LengthHrs); err != nil {
			shiftRows.Close()
			return entity.Snapshot{}, fmt.Errorf("scan shift: %w", err)
		}
		snap.Shifts = append(snap.Shifts, s)
	}
	if err := shiftRows.Err(); err != nil {
		shiftRows.Close()
		return entity.Snapshot{}, err
	}
	shiftRows.Close()

	demandRows, err := tx.QueryContext(ctx, `SELECT id, date, shift_id, skill, required FROM demands ORDER BY id`)
	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("query demand: %w", err)
	}
	for demandRows.Next() {
		var d entity.Demand
		if err := demandRows.Scan(&d.ID, &d.Date, &d.ShiftID, &d.Skill, &d.Required); err != nil {
			demandRows.Close()
			return entity.Snapshot{}, fmt.Errorf("scan demand: %w", err)
		}
		snap.Demand = append(snap.Demand, d)
	}
	if err := demandRows.Err(); err != nil {
		demandRows.Close()
		return entity.Snapshot{}, err
	}
	demandRows.Close()

	if err := tx.Commit(); err != nil {
		return entity.Snapshot{}, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return snap, nil
}

// Seed resets the three catalog tables to the fixed demo dataset of spec §8.
// Idempotent: re-running it produces the same rows and never touches runs.
func (c *CatalogStore) Seed(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE demands, employees, shifts CASCADE`); err != nil {
		return fmt.Errorf("truncate catalog tables: %w", err)
	}

	employees := []entity.Employee{
		{ID: "E1", Name: "Doctor One", Role: entity.RoleDoctor, Skills: []entity.SkillToken{"MD"}, HourlyCost: 150, MaxWeeklyHours: 40},
		{ID: "E2", Name: "Nurse Senior", Role: entity.RoleNurse, Skills: []entity.SkillToken{"RN", "ICU", "Senior"}, HourlyCost: 55, MaxWeeklyHours: 48},
		{ID: "E3", Name: "Nurse Junior", Role: entity.RoleNurse, Skills: []entity.SkillToken{"RN", "Junior"}, HourlyCost: 50, MaxWeeklyHours: 40},
	}
	for _, e := range employees {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO employees (employee_id, name, role, skills, hourly_cost, max_weekly_hours) VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, e.Name, string(e.Role), pq.Array(e.Skills), e.HourlyCost, e.MaxWeeklyHours,
		)
		if err != nil {
			return fmt.Errorf("seed employee %s: %w", e.ID, err)
		}
	}

	shifts := []entity.Shift{
		{ID: "S1", Name: "Morning", StartMin: 7 * 60, EndMin: 15 * 60, LengthHrs: 8},
		{ID: "S2", Name: "Afternoon", StartMin: 15 * 60, EndMin: 23 * 60, LengthHrs: 8},
		{ID: "S3", Name: "Night", StartMin: 23 * 60, EndMin: 7 * 60, LengthHrs: 8},
	}
	for _, s := range shifts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO shifts (shift_id, name, start_min, end_min, length_hrs) VALUES ($1, $2, $3, $4, $5)`,
			s.ID, s.Name, s.StartMin, s.EndMin, s.LengthHrs,
		)
		if err != nil {
			return fmt.Errorf("seed shift %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}
