package database

import (
	"context"
	"database/sql"
	"fmt"

	"pharmarota/internal/models"
)

// GetActiveStaff returns all active staff members, ordered by name then id
// for stable generation input.
func (db *DB) GetActiveStaff(ctx context.Context) ([]models.StaffMember, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, role, trained_locations, training_tags, warfarin_trained,
		       working_days, unavailability, default_roster, is_active
		FROM staff
		WHERE is_active = 1
		ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query staff: %w", err)
	}
	defer rows.Close()
	return scanStaffRows(rows)
}

// GetStaffByIDs returns the staff records for the given ids, ordered by name
// then id. Missing ids are simply absent from the result.
func (db *DB) GetStaffByIDs(ctx context.Context, ids []int64) ([]models.StaffMember, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, name, role, trained_locations, training_tags, warfarin_trained,
		       working_days, unavailability, default_roster, is_active
		FROM staff WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY name, id`
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query staff by ids: %w", err)
	}
	defer rows.Close()
	return scanStaffRows(rows)
}

// GetStaffByID returns one staff member or sql.ErrNoRows.
func (db *DB) GetStaffByID(ctx context.Context, id int64) (*models.StaffMember, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, role, trained_locations, training_tags, warfarin_trained,
		       working_days, unavailability, default_roster, is_active
		FROM staff WHERE id = ?`, id)
	s, err := scanStaff(row)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertStaff writes a staff record; used by the reference-data loader and
// by tests.
func (db *DB) UpsertStaff(ctx context.Context, s *models.StaffMember) error {
	if s.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO staff (name, role, trained_locations, training_tags, warfarin_trained,
			                   working_days, unavailability, default_roster, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Name, s.Role, marshalJSON(s.TrainedLocations), marshalJSON(s.TrainingTags),
			s.WarfarinTrained, marshalJSON(s.WorkingDays), marshalJSON(s.Unavailability),
			s.DefaultRoster, s.IsActive)
		if err != nil {
			return fmt.Errorf("insert staff: %w", err)
		}
		s.ID, _ = res.LastInsertId()
		return nil
	}
	_, err := db.ExecContext(ctx, `
		UPDATE staff SET name = ?, role = ?, trained_locations = ?, training_tags = ?,
		       warfarin_trained = ?, working_days = ?, unavailability = ?,
		       default_roster = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		s.Name, s.Role, marshalJSON(s.TrainedLocations), marshalJSON(s.TrainingTags),
		s.WarfarinTrained, marshalJSON(s.WorkingDays), marshalJSON(s.Unavailability),
		s.DefaultRoster, s.IsActive, s.ID)
	if err != nil {
		return fmt.Errorf("update staff %d: %w", s.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStaff(row rowScanner) (*models.StaffMember, error) {
	var s models.StaffMember
	var trained, tags, days, unavail string
	var role sql.NullString
	err := row.Scan(&s.ID, &s.Name, &role, &trained, &tags, &s.WarfarinTrained,
		&days, &unavail, &s.DefaultRoster, &s.IsActive)
	if err != nil {
		return nil, err
	}
	s.Role = role.String
	unmarshalJSON(trained, &s.TrainedLocations)
	unmarshalJSON(tags, &s.TrainingTags)
	unmarshalJSON(days, &s.WorkingDays)
	unmarshalJSON(unavail, &s.Unavailability)
	return &s, nil
}

func scanStaffRows(rows *sql.Rows) ([]models.StaffMember, error) {
	var out []models.StaffMember
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ",?"
	}
	return out
}
