// Package api exposes the rota engine over a JSON HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pharmarota/internal/models"
	"pharmarota/internal/rota"
	"pharmarota/internal/service"
)

// RotaOperations is what the API needs from the service layer.
type RotaOperations interface {
	GenerateWeek(ctx context.Context, req service.GenerateRequest) (*service.GenerateResult, error)
	GetDocument(ctx context.Context, rotaID int64) (*models.RotaDocument, error)
	GetWeek(ctx context.Context, weekStart time.Time) ([]*models.RotaDocument, error)
	GetConfiguration(ctx context.Context, weekStart time.Time) (*models.RotaConfiguration, error)
	Reassign(ctx context.Context, req service.ReassignRequest) (*service.ReassignResult, error)
	Swap(ctx context.Context, req service.SwapRequest) (*service.ReassignResult, error)
	PublishWeek(ctx context.Context, weekStart time.Time, publishedBy string) (string, error)
	ArchiveDocument(ctx context.Context, rotaID int64, actor string) error
	ArchiveWeek(ctx context.Context, weekStart time.Time, actor string) error
	SweepStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error)
	SetCellOverride(ctx context.Context, rotaID int64, cellKey, note string) error
	AuditTrail(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

// HTTPServer serves the rota API.
type HTTPServer struct {
	service RotaOperations
	apiKey  string
	logger  *zerolog.Logger
	server  *http.Server

	limit      rate.Limit
	burst      int
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// NewHTTPServer wires routes and middleware.
func NewHTTPServer(svc RotaOperations, port int, apiKey string, limit float64, burst int, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		service:  svc,
		apiKey:   apiKey,
		logger:   logger,
		limit:    rate.Limit(limit),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/rota/generate", s.handleGenerate)
	mux.HandleFunc("/api/rota/assignments", s.handleAssignments)
	mux.HandleFunc("/api/rota/configuration", s.handleConfiguration)
	mux.HandleFunc("/api/rota/reassign", s.handleReassign)
	mux.HandleFunc("/api/rota/swap", s.handleSwap)
	mux.HandleFunc("/api/rota/publish", s.handlePublish)
	mux.HandleFunc("/api/rota/archive", s.handleArchive)
	mux.HandleFunc("/api/rota/sweep", s.handleSweep)
	mux.HandleFunc("/api/rota/overrides", s.handleOverrides)
	mux.HandleFunc("/api/rota/export", s.handleExport)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.withAuth(s.withRateLimit(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the wrapped mux for tests.
func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()
	s.logger.Info().Str("addr", s.server.Addr).Msg("rota API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.clientLimiter(r).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) clientLimiter(r *http.Request) *rate.Limiter {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[host] = limiter
	}
	return limiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the engine's failure taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rota.ErrPrecondition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rota.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rota.ErrImmutable), errors.Is(err, rota.ErrBadTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", value)
	}
	return t, nil
}

func toWeekdays(days []int) []time.Weekday {
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		out = append(out, time.Weekday(d))
	}
	return out
}

func toWeekdayOverrides(overrides map[int64][]int) map[int64][]time.Weekday {
	if len(overrides) == 0 {
		return nil
	}
	out := make(map[int64][]time.Weekday, len(overrides))
	for id, days := range overrides {
		out[id] = toWeekdays(days)
	}
	return out
}
