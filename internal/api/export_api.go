package api

import (
	"fmt"
	"net/http"

	"pharmarota/internal/export"
	"pharmarota/internal/metrics"
)

// handleExport streams the week's rota as an Excel workbook, one sheet per
// date plus conflict and audit sheets.
// GET /api/rota/export?week_start=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	weekStart, err := parseDate(r.URL.Query().Get("week_start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := s.service.GetWeek(r.Context(), weekStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	audit, err := s.service.AuditTrail(r.Context(), 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writer := export.NewExcelizeWriter()
	defer writer.Close()
	if err := export.WriteWeekWorkbook(writer, docs, audit); err != nil {
		s.logger.Error().Err(err).Msg("export: workbook build failed")
		writeError(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}

	filename := fmt.Sprintf("rota_%s.xlsx", weekStart.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := writer.Save(w); err != nil {
		s.logger.Error().Err(err).Msg("export: workbook write failed")
	}
}
