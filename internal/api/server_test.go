package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmarota/internal/models"
	"pharmarota/internal/rota"
	"pharmarota/internal/service"
)

// stubService implements RotaOperations with canned responses.
type stubService struct {
	err       error
	week      []*models.RotaDocument
	doc       *models.RotaDocument
	setID     string
	swept     int64
	lastWeek  time.Time
	lastScope rota.Scope
}

func (s *stubService) GenerateWeek(_ context.Context, req service.GenerateRequest) (*service.GenerateResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastWeek = req.WeekStart
	return &service.GenerateResult{WeekStart: req.WeekStart, Documents: s.week}, nil
}

func (s *stubService) GetDocument(context.Context, int64) (*models.RotaDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

func (s *stubService) GetWeek(context.Context, time.Time) ([]*models.RotaDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.week, nil
}

func (s *stubService) GetConfiguration(context.Context, time.Time) (*models.RotaConfiguration, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.RotaConfiguration{}, nil
}

func (s *stubService) Reassign(_ context.Context, req service.ReassignRequest) (*service.ReassignResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.lastScope = req.Scope
	return &service.ReassignResult{}, nil
}

func (s *stubService) Swap(context.Context, service.SwapRequest) (*service.ReassignResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &service.ReassignResult{}, nil
}

func (s *stubService) PublishWeek(context.Context, time.Time, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.setID, nil
}

func (s *stubService) ArchiveDocument(context.Context, int64, string) error { return s.err }

func (s *stubService) ArchiveWeek(context.Context, time.Time, string) error { return s.err }

func (s *stubService) SweepStaleDrafts(context.Context, time.Time) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.swept, nil
}

func (s *stubService) SetCellOverride(context.Context, int64, string, string) error { return s.err }

func (s *stubService) AuditTrail(context.Context, int) ([]models.AuditEntry, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func newTestServer(svc RotaOperations, apiKey string) *HTTPServer {
	logger := zerolog.New(io.Discard)
	return NewHTTPServer(svc, 0, apiKey, 1000, 1000, &logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	server := newTestServer(&stubService{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/rota/assignments?rota_id=1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(&stubService{doc: &models.RotaDocument{}}, 0, "", 1, 1, &logger)

	req := httptest.NewRequest(http.MethodGet, "/api/rota/assignments?rota_id=1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleGenerate(t *testing.T) {
	docs := []*models.RotaDocument{
		{
			ID:        1,
			Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			WeekStart: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Status:    models.StatusDraft,
			Conflicts: []models.Conflict{
				{Type: "understaffed", Severity: models.SeverityError, Description: "Ward 7"},
			},
		},
	}

	tests := []struct {
		name           string
		method         string
		body           interface{}
		svcErr         error
		expectedStatus int
	}{
		{
			name:   "ok",
			method: http.MethodPost,
			body: GenerateRequest{
				WeekStart: "2026-03-02",
				StaffIDs:  []int64{1, 2},
				Weekdays:  []int{1, 2},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "missing week start",
			method:         http.MethodPost,
			body:           GenerateRequest{StaffIDs: []int64{1}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad date",
			method:         http.MethodPost,
			body:           GenerateRequest{WeekStart: "02/03/2026"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field rejected",
			method:         http.MethodPost,
			body:           map[string]interface{}{"week_start": "2026-03-02", "bogus": true},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "precondition maps to 400",
			method: http.MethodPost,
			body: GenerateRequest{
				WeekStart: "2026-03-03",
				StaffIDs:  []int64{1},
				Weekdays:  []int{1},
			},
			svcErr:         rota.ErrPrecondition,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&stubService{week: docs, err: tt.svcErr}, "")
			rec := doJSON(t, server.Handler(), tt.method, "/api/rota/generate", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)

			if tt.expectedStatus == http.StatusOK {
				var resp GenerateResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
				assert.Equal(t, "2026-03-02", resp.WeekStart)
				assert.Equal(t, int64(1), resp.RotaIDs["2026-03-02"])
				require.Len(t, resp.Conflicts, 1)
				assert.Equal(t, "2026-03-02", resp.Conflicts[0].Date)
			}
		})
	}
}

func TestHandleAssignments(t *testing.T) {
	doc := &models.RotaDocument{ID: 7, Status: models.StatusPublished}

	t.Run("by rota id", func(t *testing.T) {
		server := newTestServer(&stubService{doc: doc}, "")
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/rota/assignments?rota_id=7", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got models.RotaDocument
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, int64(7), got.ID)
	})

	t.Run("by week start", func(t *testing.T) {
		server := newTestServer(&stubService{week: []*models.RotaDocument{doc}}, "")
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/rota/assignments?week_start=2026-03-02", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("neither parameter", func(t *testing.T) {
		server := newTestServer(&stubService{}, "")
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/rota/assignments", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid rota id", func(t *testing.T) {
		server := newTestServer(&stubService{}, "")
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/rota/assignments?rota_id=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		server := newTestServer(&stubService{err: rota.ErrNotFound}, "")
		rec := doJSON(t, server.Handler(), http.MethodGet, "/api/rota/assignments?rota_id=99", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleReassign(t *testing.T) {
	newID := int64(2)

	tests := []struct {
		name           string
		body           ReassignRequest
		svcErr         error
		expectedStatus int
	}{
		{
			name: "slot ok",
			body: ReassignRequest{
				WeekStart:       "2026-03-02",
				Location:        "Ward 7",
				Date:            "2026-03-02",
				StartTime:       "09:00",
				EndTime:         "13:00",
				OriginalStaffID: 1,
				NewStaffID:      &newID,
				Scope:           "slot",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "week scope needs no date",
			body: ReassignRequest{
				WeekStart:       "2026-03-02",
				OriginalStaffID: 1,
				NewStaffID:      &newID,
				Scope:           "week",
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "bad scope",
			body: ReassignRequest{
				WeekStart: "2026-03-02",
				Scope:     "month",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "day scope without date",
			body: ReassignRequest{
				WeekStart: "2026-03-02",
				Scope:     "day",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "archived maps to 409",
			body: ReassignRequest{
				WeekStart: "2026-03-02",
				Date:      "2026-03-02",
				Scope:     "day",
			},
			svcErr:         rota.ErrImmutable,
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&stubService{err: tt.svcErr}, "")
			rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/reassign", tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)
		})
	}
}

func TestHandleSwap(t *testing.T) {
	body := SwapRequest{
		WeekStart: "2026-03-02",
		Source:    SlotRef{Location: "Ward 7", Date: "2026-03-02", StartTime: "09:00"},
		Target:    SlotRef{Location: "Dispensary", Date: "2026-03-03", StartTime: "09:00"},
	}

	server := newTestServer(&stubService{}, "")
	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/swap", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	t.Run("missing target", func(t *testing.T) {
		incomplete := body
		incomplete.Target = SlotRef{}
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/swap", incomplete)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown slot maps to 404", func(t *testing.T) {
		server := newTestServer(&stubService{err: rota.ErrNotFound}, "")
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/swap", body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandlePublish(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		server := newTestServer(&stubService{setID: "set-123"}, "")
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/publish",
			PublishRequest{WeekStart: "2026-03-02", PublishedBy: "chief"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "set-123", resp["published_set_id"])
	})

	t.Run("bad transition maps to 409", func(t *testing.T) {
		server := newTestServer(&stubService{err: rota.ErrBadTransition}, "")
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/publish",
			PublishRequest{WeekStart: "2026-03-02"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleArchive(t *testing.T) {
	server := newTestServer(&stubService{}, "")

	t.Run("by rota id", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/archive", ArchiveRequest{RotaID: 5})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("by week", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/archive", ArchiveRequest{WeekStart: "2026-03-02"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("neither", func(t *testing.T) {
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/archive", ArchiveRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSweep(t *testing.T) {
	server := newTestServer(&stubService{swept: 4}, "")
	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/sweep", SweepRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(4), resp["removed"])
}

func TestHandleOverrides(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		server := newTestServer(&stubService{}, "")
		rec := doJSON(t, server.Handler(), http.MethodPut, "/api/rota/overrides",
			OverrideRequest{RotaID: 1, CellKey: "ward-Ward 7-2026-03-02-09:00-13:00", Note: "covering"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		server := newTestServer(&stubService{}, "")
		rec := doJSON(t, server.Handler(), http.MethodPost, "/api/rota/overrides", OverrideRequest{RotaID: 1, CellKey: "k"})
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		server := newTestServer(&stubService{}, "")
		rec := doJSON(t, server.Handler(), http.MethodPut, "/api/rota/overrides", OverrideRequest{RotaID: 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("archived maps to 409", func(t *testing.T) {
		server := newTestServer(&stubService{err: rota.ErrImmutable}, "")
		rec := doJSON(t, server.Handler(), http.MethodPut, "/api/rota/overrides",
			OverrideRequest{RotaID: 1, CellKey: "k", Note: "n"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleExport(t *testing.T) {
	week := []*models.RotaDocument{
		{
			ID:     1,
			Date:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Status: models.StatusPublished,
			Assignments: []models.Assignment{
				{Type: models.TypeWard, Location: "Ward 7", StartTime: "09:00", EndTime: "17:30"},
			},
		},
	}
	server := newTestServer(&stubService{week: week}, "")

	rec := doJSON(t, server.Handler(), http.MethodGet, "/api/rota/export?week_start=2026-03-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rota_2026-03-02.xlsx")
	assert.NotZero(t, rec.Body.Len())
}
