package rota

import (
	"fmt"
	"sort"

	"pharmarota/internal/models"
)

// Conflict types emitted by Detect.
const (
	ConflictUnderstaffed     = "understaffed"
	ConflictBelowIdeal       = "below_ideal"
	ConflictDoubleBooking    = "double_booking"
	ConflictTrainingMismatch = "training_mismatch"
)

// Detect audits one rota document against the requirement catalog and staff
// roster. Pure and idempotent: call it after generation and again after every
// mutation. Hard constraint failures are rejected upstream by the eligibility
// check; the training audit here is a soft net for manually edited schedules.
func Detect(doc *models.RotaDocument, reqs []models.DutyRequirement, staff []models.StaffMember) []models.Conflict {
	if len(doc.Assignments) == 0 {
		return nil
	}

	var conflicts []models.Conflict
	dateStr := doc.Date.Format("2006-01-02")

	audited := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if !r.IsActive || !r.AllowsWeekday(doc.Date.Weekday()) {
			continue
		}
		audited[r.Name] = true
		filled := 0
		for i := range doc.Assignments {
			a := &doc.Assignments[i]
			if a.Location == r.Name && a.Filled() {
				filled++
			}
		}
		switch {
		case filled < r.MinStaff:
			conflicts = append(conflicts, models.Conflict{
				Type:        ConflictUnderstaffed,
				Description: fmt.Sprintf("%s on %s has %d of %d minimum staff", r.Name, dateStr, filled, r.MinStaff),
				Severity:    models.SeverityError,
			})
		case filled < r.IdealStaff:
			conflicts = append(conflicts, models.Conflict{
				Type:        ConflictBelowIdeal,
				Description: fmt.Sprintf("%s on %s has %d of %d ideal staff", r.Name, dateStr, filled, r.IdealStaff),
				Severity:    models.SeverityWarning,
			})
		}
	}

	// Clinic slots and ad hoc roles are staffed like requirements but live
	// outside the catalog; their gap rows still mean understaffing.
	gaps := make(map[string]int)
	var gapOrder []string
	for i := range doc.Assignments {
		a := &doc.Assignments[i]
		if a.Filled() || audited[a.Location] {
			continue
		}
		if _, seen := gaps[a.Location]; !seen {
			gapOrder = append(gapOrder, a.Location)
		}
		gaps[a.Location]++
	}
	for _, loc := range gapOrder {
		conflicts = append(conflicts, models.Conflict{
			Type:        ConflictUnderstaffed,
			Description: fmt.Sprintf("%s on %s has %d unfilled slot(s)", loc, dateStr, gaps[loc]),
			Severity:    models.SeverityError,
		})
	}

	conflicts = append(conflicts, detectDoubleBookings(doc, dateStr)...)
	conflicts = append(conflicts, detectTrainingMismatches(doc, staff)...)
	return conflicts
}

func detectDoubleBookings(doc *models.RotaDocument, dateStr string) []models.Conflict {
	var conflicts []models.Conflict
	byStaff := make(map[int64][]*models.Assignment)
	for i := range doc.Assignments {
		a := &doc.Assignments[i]
		if a.Filled() {
			byStaff[*a.StaffID] = append(byStaff[*a.StaffID], a)
		}
	}
	ids := make([]int64, 0, len(byStaff))
	for id := range byStaff {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		assignments := byStaff[id]
		for i := 0; i < len(assignments); i++ {
			for j := i + 1; j < len(assignments); j++ {
				a, b := assignments[i], assignments[j]
				if a.Shareable && b.Shareable {
					continue
				}
				if a.Overlaps(b) {
					conflicts = append(conflicts, models.Conflict{
						Type:        ConflictDoubleBooking,
						Description: fmt.Sprintf("%s is double booked on %s: %s %s-%s and %s %s-%s", a.StaffName, dateStr, a.Location, a.StartTime, a.EndTime, b.Location, b.StartTime, b.EndTime),
						Severity:    models.SeverityError,
					})
				}
			}
		}
	}
	return conflicts
}

func detectTrainingMismatches(doc *models.RotaDocument, staff []models.StaffMember) []models.Conflict {
	var conflicts []models.Conflict
	for i := range doc.Assignments {
		a := &doc.Assignments[i]
		if !a.Filled() {
			continue
		}
		if a.Type != models.TypeWard && a.Type != models.TypeDispensary {
			continue
		}
		member := findStaff(staff, *a.StaffID)
		if member == nil || len(member.TrainedLocations) == 0 {
			continue
		}
		if !member.TrainedFor(a.Location) {
			conflicts = append(conflicts, models.Conflict{
				Type:        ConflictTrainingMismatch,
				Description: fmt.Sprintf("%s is not trained for %s", member.Name, a.Location),
				Severity:    models.SeverityWarning,
			})
		}
	}
	return conflicts
}
