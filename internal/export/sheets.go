package export

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"pharmarota/internal/models"
)

const sheetsTabName = "Rota"

// SheetsService mirrors published rota weeks into a Google spreadsheet so
// ward teams without system access can read the schedule.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	logger        *zerolog.Logger

	mu       sync.Mutex
	rowCache map[int64]int // rota document id -> first sheet row
	nextRow  int
}

// NewSheetsService builds a client from service-account credentials.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string, logger *zerolog.Logger) (*SheetsService, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	cfg, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		logger:        logger,
		rowCache:      make(map[int64]int),
		nextRow:       2, // row 1 holds the header
	}, nil
}

// MirrorWeek writes the week's published documents into the spreadsheet. A
// document already mirrored is rewritten in place via the row cache instead
// of appended again.
func (s *SheetsService) MirrorWeek(ctx context.Context, docs []*models.RotaDocument) error {
	for _, doc := range s.filterPublished(docs) {
		rows := make([][]interface{}, 0, len(doc.Assignments))
		for i := range doc.Assignments {
			rows = append(rows, assignmentSheetValues(doc, &doc.Assignments[i]))
		}
		if len(rows) == 0 {
			continue
		}
		if err := s.writeRows(ctx, doc.ID, rows); err != nil {
			return fmt.Errorf("mirror rota %d: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *SheetsService) writeRows(ctx context.Context, rotaID int64, rows [][]interface{}) error {
	s.mu.Lock()
	row, ok := s.rowCache[rotaID]
	if !ok {
		row = s.nextRow
		s.rowCache[rotaID] = row
		s.nextRow += len(rows)
	}
	s.mu.Unlock()

	rng := fmt.Sprintf("%s!A%d", sheetsTabName, row)
	_, err := s.srv.Spreadsheets.Values.
		Update(s.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	s.logger.Debug().Int64("rota_id", rotaID).Int("rows", len(rows)).Msg("sheet rows written")
	return nil
}

// filterPublished keeps only documents that reached the published state;
// drafts and archived weeks never leave the system.
func (s *SheetsService) filterPublished(docs []*models.RotaDocument) []*models.RotaDocument {
	var out []*models.RotaDocument
	for _, doc := range docs {
		if doc.Status == models.StatusPublished {
			out = append(out, doc)
		}
	}
	return out
}

func assignmentSheetValues(doc *models.RotaDocument, a *models.Assignment) []interface{} {
	staff := a.StaffName
	if !a.Filled() {
		staff = "UNFILLED"
	}
	return []interface{}{
		doc.ID,
		doc.Date.Format("2006-01-02"),
		a.Location,
		a.Type,
		staff,
		a.StartTime,
		a.EndTime,
		doc.PublishedSetID,
	}
}
