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

// PublishWeek promotes the week's documents to published, stamping a shared
// set id across them.
func (s *RotaService) PublishWeek(ctx context.Context, weekStart time.Time, publishedBy string) (string, error) {
	docs, err := s.GetWeek(ctx, weekStart)
	if err != nil {
		return "", err
	}
	setID, err := rota.PublishWeek(docs, publishedBy, s.now())
	if err != nil {
		return "", err
	}
	for _, doc := range docs {
		if err := s.store.UpdateDocumentStatus(ctx, doc); err != nil {
			return "", fmt.Errorf("publish rota for %s: %w", doc.Date.Format("2006-01-02"), err)
		}
	}
	s.audit(ctx, publishedBy, "publish",
		fmt.Sprintf("week %s set %s", models.WeekStartOf(weekStart).Format("2006-01-02"), setID))
	s.publishEvent(events.TypeRotaPublished, struct {
		WeekStart string                 `json:"week_start"`
		SetID     string                 `json:"published_set_id"`
		Documents []*models.RotaDocument `json:"documents"`
	}{models.WeekStartOf(weekStart).Format("2006-01-02"), setID, docs})
	s.logger.Info().
		Str("week_start", models.WeekStartOf(weekStart).Format("2006-01-02")).
		Str("set_id", setID).
		Msg("rota published")
	return setID, nil
}

// ArchiveDocument moves one document to its terminal state. The rest of the
// week is untouched.
func (s *RotaService) ArchiveDocument(ctx context.Context, rotaID int64, actor string) error {
	doc, err := s.GetDocument(ctx, rotaID)
	if err != nil {
		return err
	}
	if err := rota.Archive(doc); err != nil {
		return err
	}
	if err := s.store.UpdateDocumentStatus(ctx, doc); err != nil {
		return fmt.Errorf("archive rota %d: %w", rotaID, err)
	}
	s.audit(ctx, actor, "archive", fmt.Sprintf("rota %d (%s)", rotaID, doc.Date.Format("2006-01-02")))
	return nil
}

// ArchiveWeek archives every document of the week.
func (s *RotaService) ArchiveWeek(ctx context.Context, weekStart time.Time, actor string) error {
	docs, err := s.GetWeek(ctx, weekStart)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := rota.Archive(doc); err != nil {
			return err
		}
		if err := s.store.UpdateDocumentStatus(ctx, doc); err != nil {
			return fmt.Errorf("archive rota for %s: %w", doc.Date.Format("2006-01-02"), err)
		}
	}
	s.audit(ctx, actor, "archive", fmt.Sprintf("week %s", models.WeekStartOf(weekStart).Format("2006-01-02")))
	return nil
}

// SweepStaleDrafts removes draft documents older than the cutoff. Zero
// cutoff means the standard two-month retention window. The sweep is
// unconditional and irreversible; published and archived documents are never
// touched.
func (s *RotaService) SweepStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		cutoff = rota.StaleDraftCutoff(s.now())
	}
	removed, err := s.store.DeleteStaleDrafts(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.AddDraftsSwept(removed)
		s.audit(ctx, "", "sweep",
			fmt.Sprintf("%d stale drafts before %s", removed, cutoff.Format("2006-01-02")))
		s.publishEvent(events.TypeRotaSwept, struct {
			Cutoff  string `json:"cutoff"`
			Removed int64  `json:"removed"`
		}{cutoff.Format("2006-01-02"), removed})
		s.logger.Info().Int64("removed", removed).Msg("stale drafts swept")
	}
	return removed, nil
}
