package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"pharmarota/internal/metrics"
	"pharmarota/internal/models"
	"pharmarota/internal/rota"
	"pharmarota/internal/service"
)

// GenerateRequest is the body for POST /api/rota/generate. Weekdays follow
// time.Weekday numbering (0 = Sunday).
type GenerateRequest struct {
	WeekStart             string          `json:"week_start"` // YYYY-MM-DD, a Monday
	StaffIDs              []int64         `json:"staff_ids"`
	ClinicIDs             []int64         `json:"clinic_ids,omitempty"`
	Weekdays              []int           `json:"weekdays"`
	WorkingDayOverrides   map[int64][]int `json:"working_day_overrides,omitempty"`
	IgnoredUnavailability map[int64][]int `json:"ignored_unavailability,omitempty"`
	ExtraRoles            []ExtraRole     `json:"extra_roles,omitempty"`
	GeneratedBy           string          `json:"generated_by,omitempty"`
}

// ExtraRole is an ad hoc duty added to one generation run.
type ExtraRole struct {
	Name      string `json:"name"`
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	StaffID   *int64 `json:"staff_id,omitempty"`
}

// GenerateResponse returns per-date document ids and the flattened
// assignment list.
type GenerateResponse struct {
	WeekStart   string              `json:"week_start"`
	RotaIDs     map[string]int64    `json:"rota_ids"` // date -> document id
	Assignments []models.Assignment `json:"assignments"`
	Conflicts   []DateConflict      `json:"conflicts,omitempty"`
}

// DateConflict pairs a conflict with its date for the flattened response.
type DateConflict struct {
	Date string `json:"date"`
	models.Conflict
}

// handleGenerate builds a week's draft rota.
// POST /api/rota/generate
func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("generate")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req GenerateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WeekStart == "" {
		writeError(w, http.StatusBadRequest, "week_start is required")
		return
	}
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	extraRoles := make([]models.RoleRequest, 0, len(req.ExtraRoles))
	for _, role := range req.ExtraRoles {
		extraRoles = append(extraRoles, models.RoleRequest{
			Name:      role.Name,
			Weekday:   time.Weekday(role.Weekday),
			StartTime: role.StartTime,
			EndTime:   role.EndTime,
			StaffID:   role.StaffID,
		})
	}

	result, err := s.service.GenerateWeek(r.Context(), service.GenerateRequest{
		WeekStart:             weekStart,
		StaffIDs:              req.StaffIDs,
		ClinicIDs:             req.ClinicIDs,
		Weekdays:              toWeekdays(req.Weekdays),
		WorkingDayOverrides:   toWeekdayOverrides(req.WorkingDayOverrides),
		IgnoredUnavailability: req.IgnoredUnavailability,
		ExtraRoles:            extraRoles,
		GeneratedBy:           req.GeneratedBy,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := GenerateResponse{
		WeekStart: result.WeekStart.Format("2006-01-02"),
		RotaIDs:   make(map[string]int64),
	}
	for _, doc := range result.Documents {
		dateStr := doc.Date.Format("2006-01-02")
		resp.RotaIDs[dateStr] = doc.ID
		resp.Assignments = append(resp.Assignments, doc.Assignments...)
		for _, c := range doc.Conflicts {
			resp.Conflicts = append(resp.Conflicts, DateConflict{Date: dateStr, Conflict: c})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAssignments returns one document by rota_id, or a whole week by
// week_start.
// GET /api/rota/assignments?rota_id=N | ?week_start=YYYY-MM-DD
func (s *HTTPServer) handleAssignments(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("assignments")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if idStr := r.URL.Query().Get("rota_id"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid rota_id")
			return
		}
		doc, err := s.service.GetDocument(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	weekStr := r.URL.Query().Get("week_start")
	if weekStr == "" {
		writeError(w, http.StatusBadRequest, "rota_id or week_start is required")
		return
	}
	weekStart, err := parseDate(weekStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := s.service.GetWeek(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleConfiguration returns the week's current generation input.
// GET /api/rota/configuration?week_start=YYYY-MM-DD
func (s *HTTPServer) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("configuration")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	weekStart, err := parseDate(r.URL.Query().Get("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := s.service.GetConfiguration(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// ReassignRequest is the body for POST /api/rota/reassign.
type ReassignRequest struct {
	WeekStart         string `json:"week_start"`
	Location          string `json:"location,omitempty"`
	Date              string `json:"date,omitempty"`
	StartTime         string `json:"start_time,omitempty"`
	EndTime           string `json:"end_time,omitempty"`
	OriginalStaffID   int64  `json:"original_staff_id"`
	NewStaffID        *int64 `json:"new_staff_id"`
	Scope             string `json:"scope"`
	RespectContinuity bool   `json:"respect_continuity,omitempty"`
	Actor             string `json:"actor,omitempty"`
}

// handleReassign replaces one staff member with another at slot, day or
// week scope.
// POST /api/rota/reassign
func (s *HTTPServer) handleReassign(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reassign")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req ReassignRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WeekStart == "" {
		writeError(w, http.StatusBadRequest, "week_start is required")
		return
	}
	if !rota.ValidScope(rota.Scope(req.Scope)) {
		writeError(w, http.StatusBadRequest, "scope must be slot, day or week")
		return
	}
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		if date, err = parseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if req.Scope != string(rota.ScopeWeek) {
		writeError(w, http.StatusBadRequest, "date is required for slot and day scopes")
		return
	}

	result, err := s.service.Reassign(r.Context(), service.ReassignRequest{
		WeekStart:         weekStart,
		Location:          req.Location,
		Date:              date,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		OriginalStaffID:   req.OriginalStaffID,
		NewStaffID:        req.NewStaffID,
		Scope:             rota.Scope(req.Scope),
		RespectContinuity: req.RespectContinuity,
		Actor:             req.Actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SwapRequest is the body for POST /api/rota/swap.
type SwapRequest struct {
	WeekStart string  `json:"week_start"`
	Source    SlotRef `json:"source"`
	Target    SlotRef `json:"target"`
	Actor     string  `json:"actor,omitempty"`
}

// SlotRef identifies one scheduled cell in a request body.
type SlotRef struct {
	Location  string `json:"location"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time,omitempty"`
}

// handleSwap exchanges the occupants of two slots.
// POST /api/rota/swap
func (s *HTTPServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("swap")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SwapRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WeekStart == "" || req.Source.Location == "" || req.Target.Location == "" {
		writeError(w, http.StatusBadRequest, "week_start, source and target are required")
		return
	}
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	source, err := toSlotRef(req.Source)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := toSlotRef(req.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.Swap(r.Context(), service.SwapRequest{
		WeekStart: weekStart,
		Source:    source,
		Target:    target,
		Actor:     req.Actor,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PublishRequest is the body for POST /api/rota/publish.
type PublishRequest struct {
	WeekStart   string `json:"week_start"`
	PublishedBy string `json:"published_by"`
}

// handlePublish promotes a week's documents and stamps the shared set id.
// POST /api/rota/publish
func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("publish")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	weekStart, err := parseDate(req.WeekStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	setID, err := s.service.PublishWeek(r.Context(), weekStart, req.PublishedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"published_set_id": setID})
}

// ArchiveRequest is the body for POST /api/rota/archive: either one
// document or a whole week.
type ArchiveRequest struct {
	RotaID    int64  `json:"rota_id,omitempty"`
	WeekStart string `json:"week_start,omitempty"`
	Actor     string `json:"actor,omitempty"`
}

// handleArchive moves documents to their terminal state.
// POST /api/rota/archive
func (s *HTTPServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("archive")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req ArchiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch {
	case req.RotaID != 0:
		if err := s.service.ArchiveDocument(r.Context(), req.RotaID, req.Actor); err != nil {
			writeServiceError(w, err)
			return
		}
	case req.WeekStart != "":
		weekStart, err := parseDate(req.WeekStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.service.ArchiveWeek(r.Context(), weekStart, req.Actor); err != nil {
			writeServiceError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "rota_id or week_start is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"archived": true})
}

// SweepRequest is the body for POST /api/rota/sweep. Cutoff is optional;
// absent means the standard retention window.
type SweepRequest struct {
	Cutoff string `json:"cutoff,omitempty"`
}

// handleSweep removes stale drafts.
// POST /api/rota/sweep
func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sweep")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SweepRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	var cutoff time.Time
	if req.Cutoff != "" {
		var err error
		if cutoff, err = parseDate(req.Cutoff); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	removed, err := s.service.SweepStaleDrafts(r.Context(), cutoff)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// OverrideRequest is the body for PUT /api/rota/overrides.
type OverrideRequest struct {
	RotaID  int64  `json:"rota_id"`
	CellKey string `json:"cell_key"`
	Note    string `json:"note"`
}

// handleOverrides stores one free-text cell note keyed by its composite
// cell key; the key round-trips verbatim.
// PUT /api/rota/overrides
func (s *HTTPServer) handleOverrides(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("overrides")
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use PUT")
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.RotaID == 0 || req.CellKey == "" {
		writeError(w, http.StatusBadRequest, "rota_id and cell_key are required")
		return
	}
	if err := s.service.SetCellOverride(r.Context(), req.RotaID, req.CellKey, req.Note); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stored": true})
}

func toSlotRef(ref SlotRef) (service.SlotRef, error) {
	date, err := parseDate(ref.Date)
	if err != nil {
		return service.SlotRef{}, err
	}
	return service.SlotRef{
		Location:  ref.Location,
		Date:      date,
		StartTime: ref.StartTime,
		EndTime:   ref.EndTime,
	}, nil
}
