package service

import (
	"context"
	"fmt"
	"time"

	"pharmarota/internal/events"
	"pharmarota/internal/metrics"
	"pharmarota/internal/models"
	"pharmarota/internal/rota"
)

// ReassignRequest is the operator-facing reassignment call.
type ReassignRequest struct {
	WeekStart         time.Time
	Location          string
	Date              time.Time
	StartTime         string
	EndTime           string
	OriginalStaffID   int64
	NewStaffID        *int64
	Scope             rota.Scope
	RespectContinuity bool
	Actor             string
}

// DateOutcome is the JSON-facing per-date result.
type DateOutcome struct {
	Date    string `json:"date"`
	Updated int    `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// ReassignResult reports per-date outcomes plus the authoritative
// post-mutation assignments; clients reconcile their optimistic copies from
// it, last writer wins.
type ReassignResult struct {
	Outcomes []DateOutcome       `json:"outcomes"`
	Updated  []models.Assignment `json:"updated_assignments"`
}

// Reassign replaces one staff member with another at the requested scope and
// re-validates conflicts on every affected document. A week scope is applied
// date by date; a failing date never rolls back the dates already written.
func (s *RotaService) Reassign(ctx context.Context, req ReassignRequest) (*ReassignResult, error) {
	docs, err := s.GetWeek(ctx, req.WeekStart)
	if err != nil {
		return nil, err
	}

	newName := ""
	if req.NewStaffID != nil {
		staff, err := s.staffByID(ctx, *req.NewStaffID)
		if err != nil {
			return nil, err
		}
		newName = staff.Name
	}

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	engineReq := rota.ReassignRequest{
		Location:            req.Location,
		Date:                req.Date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		OriginalStaffID:     req.OriginalStaffID,
		NewStaffID:          req.NewStaffID,
		NewStaffName:        newName,
		Scope:               req.Scope,
		RespectContinuity:   req.RespectContinuity,
		ContinuityLocations: continuityLocations(catalog.Requirements),
	}

	engineResult, err := rota.ApplyReassignment(docs, engineReq)
	if err != nil {
		return toResult(engineResult), err
	}

	roster, err := s.store.GetActiveStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("load staff roster: %w", err)
	}

	result := s.persistOutcomes(ctx, docs, engineResult, catalog.Requirements, roster)
	metrics.IncReassignment(string(req.Scope))
	s.audit(ctx, req.Actor, "reassign",
		fmt.Sprintf("scope %s staff %d week %s", req.Scope, req.OriginalStaffID, models.WeekStartOf(req.WeekStart).Format("2006-01-02")))
	s.publishEvent(events.TypeRotaReassigned, result)
	return result, nil
}

// persistOutcomes re-runs the conflict detector over every changed document
// and saves it. A save failure is recorded on that date's outcome; other
// dates keep their results.
func (s *RotaService) persistOutcomes(ctx context.Context, docs []*models.RotaDocument, engineResult rota.ReassignResult, reqs []models.DutyRequirement, roster []models.StaffMember) *ReassignResult {
	result := toResult(engineResult)
	for i, outcome := range engineResult.Outcomes {
		if outcome.Err != nil || outcome.Updated == 0 {
			continue
		}
		doc := findDocByDate(docs, outcome.Date)
		if doc == nil {
			continue
		}
		doc.Conflicts = rota.Detect(doc, reqs, roster)
		for _, c := range doc.Conflicts {
			metrics.IncConflictsDetected(c.Severity)
		}
		if err := s.store.SaveRotaDocument(ctx, doc); err != nil {
			s.logger.Error().Err(err).
				Str("date", outcome.Date.Format("2006-01-02")).
				Msg("save after reassignment failed")
			result.Outcomes[i].Error = err.Error()
		}
	}
	return result
}

func (s *RotaService) staffByID(ctx context.Context, id int64) (*models.StaffMember, error) {
	staff, err := s.store.GetStaffByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: staff %d", rota.ErrNotFound, id)
	}
	return staff, nil
}

func continuityLocations(reqs []models.DutyRequirement) map[string]bool {
	out := make(map[string]bool)
	for _, r := range reqs {
		if r.ContinuitySensitive {
			out[r.Name] = true
		}
	}
	return out
}

func toResult(engineResult rota.ReassignResult) *ReassignResult {
	result := &ReassignResult{Updated: engineResult.Updated}
	for _, o := range engineResult.Outcomes {
		outcome := DateOutcome{Date: o.Date.Format("2006-01-02"), Updated: o.Updated}
		if o.Err != nil {
			outcome.Error = o.Err.Error()
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result
}

func findDocByDate(docs []*models.RotaDocument, date time.Time) *models.RotaDocument {
	for _, d := range docs {
		if models.SameDate(d.Date, date) {
			return d
		}
	}
	return nil
}
