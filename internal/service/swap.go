package service

import (
	"context"
	"fmt"
	"time"

	"pharmarota/internal/models"
	"pharmarota/internal/rota"
)

// SlotRef identifies one scheduled cell.
type SlotRef struct {
	Location  string    `json:"location"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time,omitempty"`
}

// SwapRequest exchanges the occupants of two slots.
type SwapRequest struct {
	WeekStart time.Time
	Source    SlotRef
	Target    SlotRef
	Actor     string
}

// Swap is two sequential single-directional reassignments, each validated on
// its own: the source occupant moves into the target slot, then whoever held
// the target moves into the source. When the target slot is empty the source
// slot is vacated, not kept: the policy is vacate source, occupy target. A
// target cell with no stored row at all gets a new assignment row rather
// than silently dropping the transfer.
func (s *RotaService) Swap(ctx context.Context, req SwapRequest) (*ReassignResult, error) {
	docs, err := s.GetWeek(ctx, req.WeekStart)
	if err != nil {
		return nil, err
	}

	source := findSlot(docs, req.Source)
	if source == nil || !source.Filled() {
		return nil, fmt.Errorf("%w: no occupied assignment at %s %s on %s",
			rota.ErrNotFound, req.Source.Location, req.Source.StartTime, req.Source.Date.Format("2006-01-02"))
	}
	sourceStaffID := *source.StaffID
	sourceStaffName := source.StaffName

	target := findSlot(docs, req.Target)
	var targetStaffID *int64
	var targetStaffName string
	if target != nil && target.Filled() {
		id := *target.StaffID
		targetStaffID = &id
		targetStaffName = target.StaffName
	}

	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	roster, err := s.store.GetActiveStaff(ctx)
	if err != nil {
		return nil, fmt.Errorf("load staff roster: %w", err)
	}

	combined := &ReassignResult{}

	// First leg: occupy the target with the source occupant.
	if target == nil {
		doc := findDocByDate(docs, req.Target.Date)
		if doc == nil {
			return nil, fmt.Errorf("%w: no rota document for %s", rota.ErrNotFound, req.Target.Date.Format("2006-01-02"))
		}
		if doc.Status == models.StatusArchived {
			return nil, fmt.Errorf("%w: rota for %s is archived", rota.ErrImmutable, doc.Date.Format("2006-01-02"))
		}
		created := models.Assignment{
			StaffID:   &sourceStaffID,
			StaffName: sourceStaffName,
			Type:      source.Type,
			Location:  req.Target.Location,
			Date:      models.DateOnly(req.Target.Date),
			StartTime: req.Target.StartTime,
			EndTime:   targetEnd(req.Target, source),
			Category:  source.Category,
		}
		doc.Assignments = append(doc.Assignments, created)
		combined.Updated = append(combined.Updated, created)
		combined.Outcomes = append(combined.Outcomes, DateOutcome{Date: doc.Date.Format("2006-01-02"), Updated: 1})
		s.saveAfterSwap(ctx, doc, catalog.Requirements, roster, combined)
	} else {
		firstLeg := rota.ReassignRequest{
			Location:        req.Target.Location,
			Date:            req.Target.Date,
			StartTime:       req.Target.StartTime,
			EndTime:         req.Target.EndTime,
			OriginalStaffID: slotOccupant(targetStaffID),
			NewStaffID:      &sourceStaffID,
			NewStaffName:    sourceStaffName,
			Scope:           rota.ScopeSlot,
		}
		res, err := rota.ApplyReassignment(docs, firstLeg)
		if err != nil {
			return mergeResults(combined, res), err
		}
		mergeResults(combined, res)
		s.saveAfterSwap(ctx, findDocByDate(docs, req.Target.Date), catalog.Requirements, roster, combined)
	}

	// Second leg: backfill the source with the former target occupant, or
	// vacate it when the target was empty.
	secondLeg := rota.ReassignRequest{
		Location:        req.Source.Location,
		Date:            req.Source.Date,
		StartTime:       req.Source.StartTime,
		EndTime:         req.Source.EndTime,
		OriginalStaffID: sourceStaffID,
		NewStaffID:      targetStaffID,
		NewStaffName:    targetStaffName,
		Scope:           rota.ScopeSlot,
	}
	res, err := rota.ApplyReassignment(docs, secondLeg)
	mergeResults(combined, res)
	if err != nil {
		return combined, err
	}
	s.saveAfterSwap(ctx, findDocByDate(docs, req.Source.Date), catalog.Requirements, roster, combined)

	s.audit(ctx, req.Actor, "swap",
		fmt.Sprintf("%s %s <-> %s %s", req.Source.Location, req.Source.Date.Format("2006-01-02"),
			req.Target.Location, req.Target.Date.Format("2006-01-02")))
	return combined, nil
}

func (s *RotaService) saveAfterSwap(ctx context.Context, doc *models.RotaDocument, reqs []models.DutyRequirement, roster []models.StaffMember, result *ReassignResult) {
	if doc == nil {
		return
	}
	doc.Conflicts = rota.Detect(doc, reqs, roster)
	if err := s.store.SaveRotaDocument(ctx, doc); err != nil {
		s.logger.Error().Err(err).
			Str("date", doc.Date.Format("2006-01-02")).
			Msg("save after swap failed")
		result.Outcomes = append(result.Outcomes, DateOutcome{
			Date:  doc.Date.Format("2006-01-02"),
			Error: err.Error(),
		})
	}
}

func findSlot(docs []*models.RotaDocument, ref SlotRef) *models.Assignment {
	doc := findDocByDate(docs, ref.Date)
	if doc == nil {
		return nil
	}
	for i := range doc.Assignments {
		a := &doc.Assignments[i]
		if a.Location != ref.Location || a.StartTime != ref.StartTime {
			continue
		}
		if ref.EndTime != "" && a.EndTime != ref.EndTime {
			continue
		}
		return a
	}
	return nil
}

func slotOccupant(id *int64) int64 {
	if id == nil {
		return 0 // matches the gap row
	}
	return *id
}

func targetEnd(ref SlotRef, source *models.Assignment) string {
	if ref.EndTime != "" {
		return ref.EndTime
	}
	return source.EndTime
}

func mergeResults(into *ReassignResult, from rota.ReassignResult) *ReassignResult {
	partial := toResult(from)
	into.Outcomes = append(into.Outcomes, partial.Outcomes...)
	into.Updated = append(into.Updated, partial.Updated...)
	return into
}
