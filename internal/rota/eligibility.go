// Package rota implements the assignment engine: eligibility checks, weekly
// generation, conflict detection, the reassignment protocol and the document
// lifecycle. Everything operates on immutable snapshots passed in by the
// caller; nothing here touches storage.
package rota

import (
	"fmt"
	"time"

	"pharmarota/internal/models"
)

// Duty describes one fillable work item to the eligibility check. Both
// requirements and clinic slots reduce to this shape.
type Duty struct {
	Location         string
	StartTime        string
	EndTime          string
	RequiredTraining string
	RequiresWarfarin bool
	DoNotSplit       bool
}

// Commitment is an assignment a staff member already holds on the date under
// consideration.
type Commitment struct {
	Location   string
	StartTime  string
	EndTime    string
	DoNotSplit bool
}

// EligibilityOptions carries the per-generation overrides an operator may set.
type EligibilityOptions struct {
	// WorkingDayOverrides replaces a staff member's working-day set for this
	// rota only. Keyed by staff id.
	WorkingDayOverrides map[int64][]time.Weekday

	// IgnoredUnavailability lists unavailability rule indexes (per staff id)
	// the operator chose to override for this rota.
	IgnoredUnavailability map[int64][]int
}

// Eligibility is the outcome of an eligibility check. Reason is set only
// when Eligible is false.
type Eligibility struct {
	Eligible bool
	Reason   string
}

func eligible() Eligibility                { return Eligibility{Eligible: true} }
func ineligible(reason string) Eligibility { return Eligibility{Reason: reason} }

// CheckEligibility decides whether staff may be placed on duty at date.
// Checks run in order and short-circuit on the first failure: working day,
// unavailability overlap, training, do-not-split exclusivity. Pure function
// of its inputs.
func CheckEligibility(staff *models.StaffMember, duty Duty, date time.Time, commitments []Commitment, opts EligibilityOptions) Eligibility {
	weekday := date.Weekday()

	if days, ok := opts.WorkingDayOverrides[staff.ID]; ok {
		if !containsWeekday(days, weekday) {
			return ineligible(fmt.Sprintf("%s does not work on %s (override)", staff.Name, weekday))
		}
	} else if !staff.WorksOn(weekday) {
		return ineligible(fmt.Sprintf("%s does not work on %s", staff.Name, weekday))
	}

	ignored := opts.IgnoredUnavailability[staff.ID]
	for i, rule := range staff.Unavailability {
		if rule.Weekday != weekday {
			continue
		}
		if containsInt(ignored, i) {
			continue
		}
		if models.WindowsOverlap(rule.StartTime, rule.EndTime, duty.StartTime, duty.EndTime) {
			return ineligible(fmt.Sprintf("%s is unavailable %s-%s", staff.Name, rule.StartTime, rule.EndTime))
		}
	}

	if duty.RequiredTraining != "" && !staff.HasTraining(duty.RequiredTraining) {
		return ineligible(fmt.Sprintf("%s lacks %s training", staff.Name, duty.RequiredTraining))
	}
	if duty.RequiresWarfarin && !staff.WarfarinTrained {
		return ineligible(fmt.Sprintf("%s is not warfarin trained", staff.Name))
	}

	// Exclusivity cuts both ways: an existing do-not-split commitment blocks
	// everything else, and a do-not-split duty refuses anyone already placed
	// elsewhere that day.
	for _, c := range commitments {
		if c.DoNotSplit {
			return ineligible(fmt.Sprintf("%s is committed to %s for the whole day", staff.Name, c.Location))
		}
		if duty.DoNotSplit {
			return ineligible(fmt.Sprintf("%s already holds %s that day", staff.Name, c.Location))
		}
	}

	return eligible()
}

func containsWeekday(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
