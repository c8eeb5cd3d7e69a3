// Package service orchestrates the rota engine against the document store.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"pharmarota/internal/events"
	"pharmarota/internal/metrics"
	"pharmarota/internal/models"
	"pharmarota/internal/rota"
)

// Store is what the service needs from the document store.
type Store interface {
	GetActiveStaff(ctx context.Context) ([]models.StaffMember, error)
	GetStaffByIDs(ctx context.Context, ids []int64) ([]models.StaffMember, error)
	GetStaffByID(ctx context.Context, id int64) (*models.StaffMember, error)
	GetActiveRequirements(ctx context.Context) ([]models.DutyRequirement, error)
	GetActiveClinics(ctx context.Context) ([]models.ClinicSlot, error)

	SaveRotaDocument(ctx context.Context, doc *models.RotaDocument) error
	GetRotaDocument(ctx context.Context, id int64) (*models.RotaDocument, error)
	GetWeekDocuments(ctx context.Context, weekStart time.Time) ([]*models.RotaDocument, error)
	ClearDraftsForWeek(ctx context.Context, weekStart time.Time) (int64, error)
	DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error)
	UpdateDocumentStatus(ctx context.Context, doc *models.RotaDocument) error
	SetCellOverride(ctx context.Context, rotaID int64, cellKey, note string) error

	SaveRotaConfiguration(ctx context.Context, cfg *models.RotaConfiguration) error
	GetCurrentConfiguration(ctx context.Context, weekStart time.Time) (*models.RotaConfiguration, error)

	RecordAudit(ctx context.Context, actor, action, detail string) error
	GetAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// RotaService runs generation, reassignment and lifecycle operations.
type RotaService struct {
	store  Store
	cache  *CatalogCache
	bus    *events.Bus
	logger *zerolog.Logger
	now    func() time.Time
}

// NewRotaService wires the service. cache may be nil when redis is not
// configured; bus may be nil when nothing subscribes.
func NewRotaService(store Store, cache *CatalogCache, bus *events.Bus, logger *zerolog.Logger) *RotaService {
	return &RotaService{
		store:  store,
		cache:  cache,
		bus:    bus,
		logger: logger,
		now:    time.Now,
	}
}

// GenerateRequest is the operator's generation input for one week.
type GenerateRequest struct {
	WeekStart             time.Time
	StaffIDs              []int64
	ClinicIDs             []int64
	Weekdays              []time.Weekday
	WorkingDayOverrides   map[int64][]time.Weekday
	IgnoredUnavailability map[int64][]int
	ExtraRoles            []models.RoleRequest
	GeneratedBy           string
}

// GenerateResult carries the persisted documents of one generation run.
type GenerateResult struct {
	WeekStart time.Time
	Documents []*models.RotaDocument
}

// GenerateWeek clears the week's drafts and writes a fresh best-effort
// schedule. Dates already published or archived are left alone. The
// generation input is persisted as a resumable configuration before any
// document is written.
func (s *RotaService) GenerateWeek(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	weekStart := models.WeekStartOf(req.WeekStart)
	if !models.SameDate(weekStart, req.WeekStart) {
		return nil, fmt.Errorf("%w: week start %s is not a Monday", rota.ErrPrecondition, req.WeekStart.Format("2006-01-02"))
	}

	staff, err := s.store.GetStaffByIDs(ctx, req.StaffIDs)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	catalog, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	clinics := selectClinics(catalog.Clinics, req.ClinicIDs)

	cfg := &models.RotaConfiguration{
		WeekStart:             weekStart,
		StaffIDs:              req.StaffIDs,
		ClinicIDs:             req.ClinicIDs,
		Weekdays:              req.Weekdays,
		WorkingDayOverrides:   req.WorkingDayOverrides,
		IgnoredUnavailability: req.IgnoredUnavailability,
	}
	if err := s.store.SaveRotaConfiguration(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save configuration: %w", err)
	}

	docs, err := rota.Generate(rota.GenerateInput{
		WeekStart:    weekStart,
		Staff:        staff,
		Requirements: catalog.Requirements,
		Clinics:      clinics,
		Weekdays:     req.Weekdays,
		ExtraRoles:   req.ExtraRoles,
		Options: rota.EligibilityOptions{
			WorkingDayOverrides:   req.WorkingDayOverrides,
			IgnoredUnavailability: req.IgnoredUnavailability,
		},
		GeneratedBy: req.GeneratedBy,
		Now:         s.now(),
	})
	if err != nil {
		metrics.IncRotaGenerated("rejected")
		return nil, err
	}

	existing, err := s.store.GetWeekDocuments(ctx, weekStart)
	if err != nil {
		return nil, fmt.Errorf("load existing week: %w", err)
	}
	frozen := make(map[string]bool)
	for _, doc := range existing {
		if doc.Status != models.StatusDraft {
			frozen[doc.Date.Format("2006-01-02")] = true
		}
	}

	// Regeneration replaces drafts wholesale; a crash between clear and
	// write leaves a week without drafts, recovered by re-running.
	if _, err := s.store.ClearDraftsForWeek(ctx, weekStart); err != nil {
		return nil, err
	}

	result := &GenerateResult{WeekStart: weekStart}
	for i := range docs {
		doc := &docs[i]
		if frozen[doc.Date.Format("2006-01-02")] {
			continue
		}
		doc.Conflicts = rota.Detect(doc, catalog.Requirements, staff)
		for _, c := range doc.Conflicts {
			metrics.IncConflictsDetected(c.Severity)
		}
		if err := s.store.SaveRotaDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("save rota for %s: %w", doc.Date.Format("2006-01-02"), err)
		}
		result.Documents = append(result.Documents, doc)
	}

	metrics.IncRotaGenerated("ok")
	s.audit(ctx, req.GeneratedBy, "generate",
		fmt.Sprintf("week %s: %d documents", weekStart.Format("2006-01-02"), len(result.Documents)))
	s.publishEvent(events.TypeRotaGenerated, result)
	s.logger.Info().
		Str("week_start", weekStart.Format("2006-01-02")).
		Int("documents", len(result.Documents)).
		Msg("rota generated")
	return result, nil
}

// GetDocument loads one rota document with assignments, conflicts and
// overrides.
func (s *RotaService) GetDocument(ctx context.Context, rotaID int64) (*models.RotaDocument, error) {
	doc, err := s.store.GetRotaDocument(ctx, rotaID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rota %d", rota.ErrNotFound, rotaID)
	}
	if err != nil {
		return nil, fmt.Errorf("load rota %d: %w", rotaID, err)
	}
	return doc, nil
}

// GetWeek loads a week's documents ordered by date.
func (s *RotaService) GetWeek(ctx context.Context, weekStart time.Time) ([]*models.RotaDocument, error) {
	docs, err := s.store.GetWeekDocuments(ctx, models.WeekStartOf(weekStart))
	if err != nil {
		return nil, fmt.Errorf("load week: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no rota for week %s", rota.ErrNotFound, models.WeekStartOf(weekStart).Format("2006-01-02"))
	}
	return docs, nil
}

// SetCellOverride stores one free-text note keyed by its composite cell key.
// Archived documents reject overrides.
func (s *RotaService) SetCellOverride(ctx context.Context, rotaID int64, cellKey, note string) error {
	doc, err := s.GetDocument(ctx, rotaID)
	if err != nil {
		return err
	}
	if doc.Status == models.StatusArchived {
		return fmt.Errorf("%w: rota for %s is archived", rota.ErrImmutable, doc.Date.Format("2006-01-02"))
	}
	return s.store.SetCellOverride(ctx, rotaID, cellKey, note)
}

// GetConfiguration returns the current (non-superseded) generation input for
// a week.
func (s *RotaService) GetConfiguration(ctx context.Context, weekStart time.Time) (*models.RotaConfiguration, error) {
	cfg, err := s.store.GetCurrentConfiguration(ctx, models.WeekStartOf(weekStart))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no configuration for week %s", rota.ErrNotFound, models.WeekStartOf(weekStart).Format("2006-01-02"))
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// AuditTrail returns recent operator actions, newest first.
func (s *RotaService) AuditTrail(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return s.store.GetAuditEntries(ctx, limit)
}

func (s *RotaService) audit(ctx context.Context, actor, action, detail string) {
	if actor == "" {
		actor = "system"
	}
	if err := s.store.RecordAudit(ctx, actor, action, detail); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

func (s *RotaService) publishEvent(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func selectClinics(clinics []models.ClinicSlot, ids []int64) []models.ClinicSlot {
	if len(ids) == 0 {
		return nil
	}
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.ClinicSlot
	for _, c := range clinics {
		if wanted[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
