package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pharmarota/internal/models"
)

// SaveRotaDocument writes one date's document with its assignments and
// conflicts in a single transaction. An existing document for the date is
// replaced in place, keeping its id and bumping its version; this is the
// atomic unit of the store, one date per transaction.
func (db *DB) SaveRotaDocument(ctx context.Context, doc *models.RotaDocument) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existingID, version int64
	err = tx.QueryRowContext(ctx,
		"SELECT id, version FROM rota_documents WHERE date = ?", models.DateOnly(doc.Date)).
		Scan(&existingID, &version)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO rota_documents (date, week_start, status, generated_by, generated_at,
			       published_by, published_at, published_set_id, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			models.DateOnly(doc.Date), models.DateOnly(doc.WeekStart), doc.Status,
			doc.GeneratedBy, doc.GeneratedAt, doc.PublishedBy, doc.PublishedAt, doc.PublishedSetID)
		if err != nil {
			return fmt.Errorf("insert rota document: %w", err)
		}
		doc.ID, _ = res.LastInsertId()
		doc.Version = 1
	case err != nil:
		return fmt.Errorf("lookup rota document: %w", err)
	default:
		doc.ID = existingID
		doc.Version = version + 1
		_, err = tx.ExecContext(ctx, `
			UPDATE rota_documents SET week_start = ?, status = ?, generated_by = ?, generated_at = ?,
			       published_by = ?, published_at = ?, published_set_id = ?, version = ?
			WHERE id = ?`,
			models.DateOnly(doc.WeekStart), doc.Status, doc.GeneratedBy, doc.GeneratedAt,
			doc.PublishedBy, doc.PublishedAt, doc.PublishedSetID, doc.Version, doc.ID)
		if err != nil {
			return fmt.Errorf("update rota document %d: %w", doc.ID, err)
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM assignments WHERE rota_id = ?", doc.ID); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM conflicts WHERE rota_id = ?", doc.ID); err != nil {
			return fmt.Errorf("clear conflicts: %w", err)
		}
	}

	for i := range doc.Assignments {
		a := &doc.Assignments[i]
		a.RotaID = doc.ID
		res, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (rota_id, staff_id, staff_name, type, location, date,
			       start_time, end_time, category, shareable, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, a.StaffID, a.StaffName, a.Type, a.Location, models.DateOnly(a.Date),
			a.StartTime, a.EndTime, a.Category, a.Shareable, i)
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
		a.ID, _ = res.LastInsertId()
	}

	for _, c := range doc.Conflicts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conflicts (rota_id, type, description, severity) VALUES (?, ?, ?, ?)`,
			doc.ID, c.Type, c.Description, c.Severity); err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}

	return tx.Commit()
}

// GetRotaDocument loads one document with assignments, conflicts and cell
// overrides. Returns sql.ErrNoRows when absent.
func (db *DB) GetRotaDocument(ctx context.Context, id int64) (*models.RotaDocument, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, date, week_start, status, generated_by, generated_at,
		       published_by, published_at, published_set_id, version
		FROM rota_documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}
	if err := db.loadDocumentChildren(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetWeekDocuments loads the week's documents ordered by date.
func (db *DB) GetWeekDocuments(ctx context.Context, weekStart time.Time) ([]*models.RotaDocument, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, date, week_start, status, generated_by, generated_at,
		       published_by, published_at, published_set_id, version
		FROM rota_documents WHERE week_start = ? ORDER BY date`, models.DateOnly(weekStart))
	if err != nil {
		return nil, fmt.Errorf("query week documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.RotaDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if err := db.loadDocumentChildren(ctx, doc); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// ClearDraftsForWeek removes draft documents for the week so regeneration
// never accumulates stale drafts. Published and archived documents stay.
func (db *DB) ClearDraftsForWeek(ctx context.Context, weekStart time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM rota_documents WHERE week_start = ? AND status = ?",
		models.DateOnly(weekStart), models.StatusDraft)
	if err != nil {
		return 0, fmt.Errorf("clear drafts: %w", err)
	}
	return res.RowsAffected()
}

// DeleteStaleDrafts removes draft documents dated strictly before cutoff.
func (db *DB) DeleteStaleDrafts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		"DELETE FROM rota_documents WHERE status = ? AND date < ?",
		models.StatusDraft, models.DateOnly(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete stale drafts: %w", err)
	}
	return res.RowsAffected()
}

// UpdateDocumentStatus persists a lifecycle move with its provenance stamps.
func (db *DB) UpdateDocumentStatus(ctx context.Context, doc *models.RotaDocument) error {
	_, err := db.ExecContext(ctx, `
		UPDATE rota_documents SET status = ?, published_by = ?, published_at = ?, published_set_id = ?
		WHERE id = ?`,
		doc.Status, doc.PublishedBy, doc.PublishedAt, doc.PublishedSetID, doc.ID)
	if err != nil {
		return fmt.Errorf("update status for document %d: %w", doc.ID, err)
	}
	return nil
}

// SetCellOverride stores or replaces one free-text cell note.
func (db *DB) SetCellOverride(ctx context.Context, rotaID int64, cellKey, note string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cell_overrides (rota_id, cell_key, note) VALUES (?, ?, ?)
		ON CONFLICT(rota_id, cell_key) DO UPDATE SET note = excluded.note`,
		rotaID, cellKey, note)
	if err != nil {
		return fmt.Errorf("set cell override: %w", err)
	}
	return nil
}

func (db *DB) loadDocumentChildren(ctx context.Context, doc *models.RotaDocument) error {
	rows, err := db.QueryContext(ctx, `
		SELECT id, rota_id, staff_id, staff_name, type, location, date,
		       start_time, end_time, category, shareable
		FROM assignments WHERE rota_id = ? ORDER BY position`, doc.ID)
	if err != nil {
		return fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.Assignment
		var staffID sql.NullInt64
		var staffName, category sql.NullString
		if err := rows.Scan(&a.ID, &a.RotaID, &staffID, &staffName, &a.Type, &a.Location,
			&a.Date, &a.StartTime, &a.EndTime, &category, &a.Shareable); err != nil {
			return fmt.Errorf("scan assignment: %w", err)
		}
		if staffID.Valid {
			id := staffID.Int64
			a.StaffID = &id
		}
		a.StaffName = staffName.String
		a.Category = category.String
		doc.Assignments = append(doc.Assignments, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := db.QueryContext(ctx,
		"SELECT type, description, severity FROM conflicts WHERE rota_id = ? ORDER BY id", doc.ID)
	if err != nil {
		return fmt.Errorf("query conflicts: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c models.Conflict
		if err := crows.Scan(&c.Type, &c.Description, &c.Severity); err != nil {
			return fmt.Errorf("scan conflict: %w", err)
		}
		doc.Conflicts = append(doc.Conflicts, c)
	}
	if err := crows.Err(); err != nil {
		return err
	}

	orows, err := db.QueryContext(ctx,
		"SELECT cell_key, note FROM cell_overrides WHERE rota_id = ?", doc.ID)
	if err != nil {
		return fmt.Errorf("query cell overrides: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var key, note string
		if err := orows.Scan(&key, &note); err != nil {
			return fmt.Errorf("scan cell override: %w", err)
		}
		if doc.CellOverrides == nil {
			doc.CellOverrides = make(map[string]string)
		}
		doc.CellOverrides[key] = note
	}
	return orows.Err()
}

func scanDocument(row rowScanner) (*models.RotaDocument, error) {
	var doc models.RotaDocument
	var generatedBy, publishedBy, setID sql.NullString
	var generatedAt, publishedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.Date, &doc.WeekStart, &doc.Status, &generatedBy,
		&generatedAt, &publishedBy, &publishedAt, &setID, &doc.Version)
	if err != nil {
		return nil, err
	}
	doc.GeneratedBy = generatedBy.String
	doc.PublishedBy = publishedBy.String
	doc.PublishedSetID = setID.String
	if generatedAt.Valid {
		doc.GeneratedAt = generatedAt.Time
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		doc.PublishedAt = &t
	}
	return &doc, nil
}
