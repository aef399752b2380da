// Package builder assembles a MILP model from a catalog snapshot and a
// validated request. Every constraint it emits carries a stable tag of the
// form "family[params]" so the solver driver can later attribute an
// infeasibility to a family without inspecting the model itself.
package builder

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nextmv-io/go-mip"

	"github.com/hospitalops/shiftsolver/internal/entity"
)

// XKey identifies one employee/day/shift assignment variable.
type XKey struct {
	Employee entity.EmployeeID
	Day      int
	Shift    entity.ShiftID
}

// YKey identifies one day/shift/skill coverage-shortfall variable.
type YKey struct {
	Day   int
	Shift entity.ShiftID
	Skill entity.SkillToken
}

// Result is the assembled model plus the lookup tables needed to extract a
// solution and to attribute an infeasibility back to a constraint family.
type Result struct {
	Model mip.Model
	X     map[XKey]mip.Bool
	Y     map[YKey]mip.Float

	// TagsByFamily records every constraint tag actually emitted for each
	// family, so a classified conflict can list the specific (t,s,k)-style
	// parameters involved rather than just the family name.
	TagsByFamily map[entity.ConstraintFamily][]string

	// Warnings accumulates non-fatal notices, e.g. a min_shifts downshift.
	Warnings []string
}

func (b *Result) tag(family entity.ConstraintFamily, params ...any) string {
	t := entity.Tag(family, params...)
	b.TagsByFamily[family] = append(b.TagsByFamily[family], t)
	return t
}

// seniorToken / juniorToken name the skill tokens the skill_ratio family
// keys its senior/junior split off of.
const (
	seniorToken entity.SkillToken = "Senior"
	juniorToken entity.SkillToken = "Junior"
)

// Build assembles the MILP for one solve attempt. exclude names constraint
// families to omit entirely, used by the solver driver's deletion-filtering
// IIS search (spec §4.5); pass nil for a full model.
func Build(snap entity.Snapshot, req entity.Request, exclude map[entity.ConstraintFamily]bool) (*Result, error) {
	if req.HorizonDays < 1 {
		return nil, fmt.Errorf("build: horizon_days must be >= 1, got %d", req.HorizonDays)
	}
	if exclude == nil {
		exclude = map[entity.ConstraintFamily]bool{}
	}

	b := &Result{
		Model:        mip.NewModel(),
		X:            map[XKey]mip.Bool{},
		Y:            map[YKey]mip.Float{},
		TagsByFamily: map[entity.ConstraintFamily][]string{},
	}
	b.Model.Objective().SetMinimize()

	days := req.HorizonDays

	// x[e,t,s] for every employee/day/shift triple.
	for _, e := range snap.Employees {
		for t := 0; t < days; t++ {
			for _, s := range snap.Shifts {
				b.X[XKey{e.ID, t, s.ID}] = b.Model.NewBool()
			}
		}
	}

	// Objective term W_cost * cost(e) * length(s) * x[e,t,s].
	for key, v := range b.X {
		e, ok := snap.EmployeeByID(key.Employee)
		if !ok {
			continue
		}
		s, ok := snap.ShiftByID(key.Shift)
		if !ok {
			continue
		}
		b.Model.Objective().NewTerm(e.HourlyCost*s.LengthHrs, v)
	}

	// Objective term W_pref * x[e,t,s] for every (employee,day,shift) the
	// catalog flags as a preference to avoid. Empty by default (spec §4.4).
	if req.WeightPreference != 0 {
		for _, a := range snap.Avoid {
			if v, ok := b.X[XKey{a.EmployeeID, a.Day, a.ShiftID}]; ok {
				b.Model.Objective().NewTerm(req.WeightPreference, v)
			}
		}
	}

	demandByDaySkill := indexDemand(snap.Demand, req.HorizonStart, days)

	if !exclude[entity.FamilyCover] {
		b.buildCover(snap, req, demandByDaySkill)
	}
	if !exclude[entity.FamilyOnePerDay] {
		b.buildOnePerDay(snap, days)
	}
	if !exclude[entity.FamilyWeeklyHours] {
		b.buildWeeklyHours(snap, req, days)
	}
	if !exclude[entity.FamilyForbiddenPair] {
		b.buildForbiddenPair(snap, req, days)
	}
	if !exclude[entity.FamilyConsecDays] {
		b.buildConsecDays(snap, req, days)
	}
	if !exclude[entity.FamilySkillRatio] {
		b.buildSkillRatio(snap, req, days)
	}
	if !exclude[entity.FamilyNightCap] {
		b.buildNightCap(snap, req, days)
	}
	if !exclude[entity.FamilyMinShifts] {
		b.buildMinShifts(snap, req, days)
	}
	if !exclude[entity.FamilyWeekendLink] {
		b.buildWeekendLink(snap, req, days)
	}

	return b, nil
}

// demandKey groups demand rows by the (day, shift, skill) triple the cover
// family constrains.
type demandKey struct {
	Day   int
	Shift entity.ShiftID
	Skill entity.SkillToken
}

func indexDemand(demand []entity.Demand, horizonStart time.Time, days int) map[demandKey]int {
	out := map[demandKey]int{}
	for _, d := range demand {
		day := int(d.Date.Sub(horizonStart).Hours() / 24)
		if day < 0 || day >= days {
			continue
		}
		out[demandKey{day, d.ShiftID, d.Skill}] += d.Required
	}
	return out
}

func (b *Result) buildCover(snap entity.Snapshot, req entity.Request, demand map[demandKey]int) {
	keys := make([]demandKey, 0, len(demand))
	for k := range demand {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		if keys[i].Shift != keys[j].Shift {
			return keys[i].Shift < keys[j].Shift
		}
		return keys[i].Skill < keys[j].Skill
	})

	for _, k := range keys {
		required := demand[k]
		if required <= 0 {
			continue
		}
		c := b.Model.NewConstraint(mip.GreaterThanOrEqual, float64(required))
		for _, e := range snap.Employees {
			if !e.HasSkill(k.Skill) {
				continue
			}
			if v, ok := b.X[XKey{e.ID, k.Day, k.Shift}]; ok {
				c.NewTerm(1.0, v)
			}
		}
		if req.AllowUncoveredDemand {
			y := b.Model.NewFloat(0, float64(required))
			b.Y[YKey(k)] = y
			c.NewTerm(1.0, y)
			b.Model.Objective().NewTerm(req.PenaltyUncovered, y)
		}
		b.tag(entity.FamilyCover, k.Day, k.Shift, k.Skill)
	}
}

func (b *Result) buildOnePerDay(snap entity.Snapshot, days int) {
	for _, e := range snap.Employees {
		for t := 0; t < days; t++ {
			c := b.Model.NewConstraint(mip.LessThanOrEqual, 1.0)
			for _, s := range snap.Shifts {
				c.NewTerm(1.0, b.X[XKey{e.ID, t, s.ID}])
			}
			b.tag(entity.FamilyOnePerDay, e.ID, t)
		}
	}
}

// buildWeeklyHours caps hours per calendar week (Monday to Sunday); the first
// and last weeks are partial when the horizon does not start on a Monday or
// end on a Sunday.
func (b *Result) buildWeeklyHours(snap entity.Snapshot, req entity.Request, days int) {
	// offset is the number of days from the first week's Monday to the
	// horizon start.
	offset := (int(req.HorizonStart.Weekday()) + 6) % 7
	for _, e := range snap.Employees {
		for w := 0; w*7-offset < days; w++ {
			start := w*7 - offset
			if start < 0 {
				start = 0
			}
			end := (w+1)*7 - offset
			if end > days {
				end = days
			}
			c := b.Model.NewConstraint(mip.LessThanOrEqual, e.MaxWeeklyHours)
			for t := start; t < end; t++ {
				for _, s := range snap.Shifts {
					c.NewTerm(s.LengthHrs, b.X[XKey{e.ID, t, s.ID}])
				}
			}
			b.tag(entity.FamilyWeeklyHours, e.ID, w)
		}
	}
}

// buildForbiddenPair implements both the minimum-rest and forward-rotation
// policies: any (s1 on day t, s2 on day t+1) pair whose rest gap is under
// min_rest_hours may not both be worked.
func (b *Result) buildForbiddenPair(snap entity.Snapshot, req entity.Request, days int) {
	for _, e := range snap.Employees {
		for t := 0; t < days-1; t++ {
			for _, s1 := range snap.Shifts {
				for _, s2 := range snap.Shifts {
					if s1.RestGapHours(s2) >= req.MinRestHours {
						continue
					}
					c := b.Model.NewConstraint(mip.LessThanOrEqual, 1.0)
					c.NewTerm(1.0, b.X[XKey{e.ID, t, s1.ID}])
					c.NewTerm(1.0, b.X[XKey{e.ID, t + 1, s2.ID}])
					b.tag(entity.FamilyForbiddenPair, e.ID, t, s1.ID, s2.ID)
				}
			}
		}
	}
}

func (b *Result) buildConsecDays(snap entity.Snapshot, req entity.Request, days int) {
	window := req.MaxConsecutiveDays
	if window <= 0 {
		return
	}
	for _, e := range snap.Employees {
		for t := 0; t+window < days; t++ {
			c := b.Model.NewConstraint(mip.LessThanOrEqual, float64(window))
			for j := t; j <= t+window; j++ {
				for _, s := range snap.Shifts {
					c.NewTerm(1.0, b.X[XKey{e.ID, j, s.ID}])
				}
			}
			b.tag(entity.FamilyConsecDays, e.ID, t)
		}
	}
}

func (b *Result) buildSkillRatio(snap entity.Snapshot, req entity.Request, days int) {
	if len(req.CriticalShiftIDs) == 0 {
		return
	}
	critical := map[entity.ShiftID]bool{}
	for _, id := range req.CriticalShiftIDs {
		critical[id] = true
	}

	for _, s := range snap.Shifts {
		if !critical[s.ID] {
			continue
		}
		for t := 0; t < days; t++ {
			c := b.Model.NewConstraint(mip.GreaterThanOrEqual, 0.0)
			for _, e := range snap.Employees {
				v := b.X[XKey{e.ID, t, s.ID}]
				switch {
				case e.HasSkill(seniorToken):
					c.NewTerm(1.0, v)
				case e.HasSkill(juniorToken):
					c.NewTerm(-1.0, v)
				}
			}
			b.tag(entity.FamilySkillRatio, t, s.ID)
		}
	}
}

func (b *Result) buildNightCap(snap entity.Snapshot, req entity.Request, days int) {
	for _, e := range snap.Employees {
		c := b.Model.NewConstraint(mip.LessThanOrEqual, float64(req.MaxNightShifts))
		for t := 0; t < days; t++ {
			for _, s := range snap.Shifts {
				if !s.IsNight() {
					continue
				}
				c.NewTerm(1.0, b.X[XKey{e.ID, t, s.ID}])
			}
		}
		b.tag(entity.FamilyNightCap, e.ID)
	}
}

// buildMinShifts enforces a per-employee floor on shifts worked. When an
// employee's weekly hour cap cannot accommodate the requested floor at the
// longest available shift length, the floor is downshifted to what the cap
// can actually sustain and a warning is recorded rather than building a
// model that is infeasible by construction.
func (b *Result) buildMinShifts(snap entity.Snapshot, req entity.Request, days int) {
	if req.MinShiftsPerEmployee <= 0 {
		return
	}
	maxShiftLen := 0.0
	for _, s := range snap.Shifts {
		if s.LengthHrs > maxShiftLen {
			maxShiftLen = s.LengthHrs
		}
	}
	if maxShiftLen <= 0 {
		return
	}

	for _, e := range snap.Employees {
		bound := req.MinShiftsPerEmployee
		cap := int(math.Floor(e.MaxWeeklyHours / maxShiftLen))
		if bound > cap {
			b.Warnings = append(b.Warnings, fmt.Sprintf(
				"min_shifts_per_employee %d downshifted to %d for employee %s (max_weekly_hours %.1f cannot sustain it)",
				bound, cap, e.ID, e.MaxWeeklyHours))
			bound = cap
		}
		if bound <= 0 {
			continue
		}
		c := b.Model.NewConstraint(mip.GreaterThanOrEqual, float64(bound))
		for t := 0; t < days; t++ {
			for _, s := range snap.Shifts {
				c.NewTerm(1.0, b.X[XKey{e.ID, t, s.ID}])
			}
		}
		b.tag(entity.FamilyMinShifts, e.ID)
	}
}

func (b *Result) buildWeekendLink(snap entity.Snapshot, req entity.Request, days int) {
	if !req.RequireCompleteWeekends {
		return
	}
	for _, e := range snap.Employees {
		w := 0
		for t := 0; t < days-1; t++ {
			date := req.HorizonStart.AddDate(0, 0, t)
			if date.Weekday() != time.Saturday {
				continue
			}
			sat, sun := t, t+1
			c := b.Model.NewConstraint(mip.Equal, 0.0)
			for _, s := range snap.Shifts {
				c.NewTerm(1.0, b.X[XKey{e.ID, sat, s.ID}])
				c.NewTerm(-1.0, b.X[XKey{e.ID, sun, s.ID}])
			}
			b.tag(entity.FamilyWeekendLink, e.ID, w)
			w++
		}
	}
}
