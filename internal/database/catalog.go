package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pharmarota/internal/models"
)

// GetActiveRequirements returns the active duty requirement catalog ordered
// by name for stable generation input.
func (db *DB) GetActiveRequirements(ctx context.Context) ([]models.DutyRequirement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, category, min_staff, ideal_staff, difficulty, required_training,
		       do_not_split, continuity_sensitive, shareable, weekdays, start_time, end_time, is_active
		FROM requirements
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query requirements: %w", err)
	}
	defer rows.Close()

	var out []models.DutyRequirement
	for rows.Next() {
		var r models.DutyRequirement
		var training, start, end sql.NullString
		var weekdays string
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.MinStaff, &r.IdealStaff,
			&r.Difficulty, &training, &r.DoNotSplit, &r.ContinuitySensitive, &r.Shareable,
			&weekdays, &start, &end, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		r.RequiredTraining = training.String
		r.StartTime = start.String
		r.EndTime = end.String
		unmarshalJSON(weekdays, &r.Weekdays)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateRequirement inserts a duty requirement record.
func (db *DB) CreateRequirement(ctx context.Context, r *models.DutyRequirement) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO requirements (name, category, min_staff, ideal_staff, difficulty,
		       required_training, do_not_split, continuity_sensitive, shareable,
		       weekdays, start_time, end_time, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Category, r.MinStaff, r.IdealStaff, r.Difficulty,
		nullable(r.RequiredTraining), r.DoNotSplit, r.ContinuitySensitive, r.Shareable,
		marshalJSON(r.Weekdays), nullable(r.StartTime), nullable(r.EndTime), r.IsActive)
	if err != nil {
		return fmt.Errorf("insert requirement %s: %w", r.Name, err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// GetClinicsByIDs returns clinics for the given ids ordered by name.
// Empty ids means "no clinics selected" and returns nothing.
func (db *DB) GetClinicsByIDs(ctx context.Context, ids []int64) ([]models.ClinicSlot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, name, weekday, start_time, end_time, requires_warfarin, preferred_staff, is_active
		FROM clinics WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY name`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()
	return scanClinics(rows)
}

// GetActiveClinics returns every active clinic slot ordered by name.
func (db *DB) GetActiveClinics(ctx context.Context) ([]models.ClinicSlot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, weekday, start_time, end_time, requires_warfarin, preferred_staff, is_active
		FROM clinics WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()
	return scanClinics(rows)
}

// CreateClinic inserts a clinic slot record.
func (db *DB) CreateClinic(ctx context.Context, c *models.ClinicSlot) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO clinics (name, weekday, start_time, end_time, requires_warfarin, preferred_staff, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, int(c.Weekday), c.StartTime, c.EndTime, c.RequiresWarfarin,
		marshalJSON(c.PreferredStaff), c.IsActive)
	if err != nil {
		return fmt.Errorf("insert clinic %s: %w", c.Name, err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func scanClinics(rows *sql.Rows) ([]models.ClinicSlot, error) {
	var out []models.ClinicSlot
	for rows.Next() {
		var c models.ClinicSlot
		var weekday int
		var preferred string
		if err := rows.Scan(&c.ID, &c.Name, &weekday, &c.StartTime, &c.EndTime,
			&c.RequiresWarfarin, &preferred, &c.IsActive); err != nil {
			return nil, fmt.Errorf("scan clinic: %w", err)
		}
		c.Weekday = time.Weekday(weekday)
		unmarshalJSON(preferred, &c.PreferredStaff)
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
