package rota

import (
	"fmt"
	"time"

	"pharmarota/internal/models"
)

// Scope is the breadth of a reassignment.
type Scope string

const (
	ScopeSlot Scope = "slot"
	ScopeDay  Scope = "day"
	ScopeWeek Scope = "week"
)

// ValidScope reports whether s is a known reassignment scope.
func ValidScope(s Scope) bool {
	return s == ScopeSlot || s == ScopeDay || s == ScopeWeek
}

// ReassignRequest describes one single-directional replacement.
// OriginalStaffID zero targets unfilled gap rows; NewStaffID nil vacates the
// matched rows instead of filling them.
type ReassignRequest struct {
	Location          string // required for slot scope, optional filter otherwise
	Date              time.Time
	StartTime         string // required for slot scope, optional window filter otherwise
	EndTime           string
	OriginalStaffID   int64
	NewStaffID        *int64
	NewStaffName      string
	Scope             Scope
	RespectContinuity bool

	// ContinuityLocations names the continuity-sensitive locations, taken
	// from the requirement catalog by the caller.
	ContinuityLocations map[string]bool
}

// DateOutcome is the per-date result of a multi-date reassignment. A week
// scope is applied date by date; failures are reported here, never rolled
// back across dates.
type DateOutcome struct {
	Date    time.Time `json:"date"`
	Updated int       `json:"updated"`
	Err     error     `json:"-"`
}

// ReassignResult carries the per-date outcomes and the authoritative
// post-mutation copies of every changed assignment.
type ReassignResult struct {
	Outcomes []DateOutcome
	Updated  []models.Assignment
}

// Applied reports whether at least one assignment changed.
func (r *ReassignResult) Applied() bool { return len(r.Updated) > 0 }

// NormalizeGranularity reconciles a coarser stored row with a finer edit
// request. When the stored assignment fully covers the requested window but
// does not equal it, the row is split into two half rows at the requested
// boundary, both keeping the original occupant; the caller then edits the
// half matching the requested start. Otherwise the assignment is returned
// unchanged.
func NormalizeGranularity(a models.Assignment, start, end string) []models.Assignment {
	if a.StartTime == start && a.EndTime == end {
		return []models.Assignment{a}
	}
	if !models.WindowCovers(a.StartTime, a.EndTime, start, end) {
		return []models.Assignment{a}
	}
	first, second := a, a
	first.ID, second.ID = 0, 0
	if a.StartTime == start {
		first.EndTime = end
		second.StartTime = end
	} else {
		first.EndTime = start
		second.StartTime = start
	}
	return []models.Assignment{first, second}
}

// ApplyReassignment mutates the given week of documents in memory according
// to the request and returns what changed. Archived documents are never
// touched; published documents may only change through this path. The caller
// is responsible for re-running conflict detection and persisting.
func ApplyReassignment(docs []*models.RotaDocument, req ReassignRequest) (ReassignResult, error) {
	if !ValidScope(req.Scope) {
		return ReassignResult{}, fmt.Errorf("%w: unknown scope %q", ErrPrecondition, req.Scope)
	}

	var result ReassignResult
	switch req.Scope {
	case ScopeSlot, ScopeDay:
		doc := findDoc(docs, req.Date)
		if doc == nil {
			return ReassignResult{}, fmt.Errorf("%w: no rota document for %s", ErrNotFound, req.Date.Format("2006-01-02"))
		}
		outcome := reassignInDoc(doc, req, &result)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Err != nil {
			return result, outcome.Err
		}
	case ScopeWeek:
		for _, doc := range docs {
			outcome := reassignInDoc(doc, req, &result)
			result.Outcomes = append(result.Outcomes, outcome)
		}
	}
	return result, nil
}

func reassignInDoc(doc *models.RotaDocument, req ReassignRequest, result *ReassignResult) DateOutcome {
	outcome := DateOutcome{Date: doc.Date}
	if doc.Status == models.StatusArchived {
		outcome.Err = fmt.Errorf("%w: rota for %s is archived", ErrImmutable, doc.Date.Format("2006-01-02"))
		return outcome
	}

	if req.Scope == ScopeSlot {
		return reassignSlot(doc, req, result)
	}

	for i := 0; i < len(doc.Assignments); i++ {
		a := &doc.Assignments[i]
		if !matchesStaff(a, req.OriginalStaffID) {
			continue
		}
		if req.Location != "" && a.Location != req.Location {
			continue
		}
		if req.StartTime != "" && req.EndTime != "" && !windowTouches(a, req) {
			continue
		}
		replaceOccupant(a, req)
		result.Updated = append(result.Updated, *a)
		outcome.Updated++
	}
	return outcome
}

// reassignSlot replaces the single assignment matching the requested window,
// splitting a coarser stored row first when necessary.
func reassignSlot(doc *models.RotaDocument, req ReassignRequest, result *ReassignResult) DateOutcome {
	outcome := DateOutcome{Date: doc.Date}
	for i := 0; i < len(doc.Assignments); i++ {
		a := doc.Assignments[i]
		if a.Location != req.Location || !matchesStaff(&a, req.OriginalStaffID) {
			continue
		}
		if a.StartTime == req.StartTime && (req.EndTime == "" || a.EndTime == req.EndTime) {
			replaceOccupant(&doc.Assignments[i], req)
			result.Updated = append(result.Updated, doc.Assignments[i])
			outcome.Updated++
			return outcome
		}
		end := req.EndTime
		if end == "" {
			end = a.EndTime
		}
		parts := NormalizeGranularity(a, req.StartTime, end)
		if len(parts) != 2 {
			continue
		}
		// The stored row was coarser than the request: split it, replace
		// only the half matching the requested start.
		for j := range parts {
			if parts[j].StartTime == req.StartTime {
				replaceOccupant(&parts[j], req)
				result.Updated = append(result.Updated, parts[j])
			}
		}
		doc.Assignments = append(doc.Assignments[:i], append(parts, doc.Assignments[i+1:]...)...)
		outcome.Updated++
		return outcome
	}
	outcome.Err = fmt.Errorf("%w: no assignment for staff %d at %s %s on %s",
		ErrNotFound, req.OriginalStaffID, req.Location, req.StartTime, doc.Date.Format("2006-01-02"))
	return outcome
}

// windowTouches applies the optional time filter of day/week scopes. A
// continuity-sensitive location ignores the filter when asked to: the whole
// contiguous block at that location moves as a unit instead of being split
// mid-day.
func windowTouches(a *models.Assignment, req ReassignRequest) bool {
	if req.RespectContinuity && req.ContinuityLocations[a.Location] {
		return true
	}
	return models.WindowsOverlap(a.StartTime, a.EndTime, req.StartTime, req.EndTime)
}

func matchesStaff(a *models.Assignment, originalID int64) bool {
	if originalID == 0 {
		return !a.Filled()
	}
	return a.Filled() && *a.StaffID == originalID
}

func replaceOccupant(a *models.Assignment, req ReassignRequest) {
	if req.NewStaffID == nil {
		a.StaffID = nil
		a.StaffName = ""
		return
	}
	id := *req.NewStaffID
	a.StaffID = &id
	a.StaffName = req.NewStaffName
}

func findDoc(docs []*models.RotaDocument, date time.Time) *models.RotaDocument {
	for _, d := range docs {
		if models.SameDate(d.Date, date) {
			return d
		}
	}
	return nil
}
