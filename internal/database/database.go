// Package database is the sqlite document store behind the rota engine.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for the rota service.
type DB struct {
	*sql.DB
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Staff roster (reference data, maintained elsewhere)
		`CREATE TABLE IF NOT EXISTS staff (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'pharmacist',
			trained_locations TEXT NOT NULL DEFAULT '[]',
			training_tags TEXT NOT NULL DEFAULT '[]',
			warfarin_trained BOOLEAN NOT NULL DEFAULT 0,
			working_days TEXT NOT NULL DEFAULT '[]',
			unavailability TEXT NOT NULL DEFAULT '[]',
			default_roster BOOLEAN NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Duty requirement catalog
		`CREATE TABLE IF NOT EXISTS requirements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			category TEXT NOT NULL,
			min_staff INTEGER NOT NULL DEFAULT 1,
			ideal_staff INTEGER NOT NULL DEFAULT 1,
			difficulty INTEGER NOT NULL DEFAULT 5,
			required_training TEXT,
			do_not_split BOOLEAN NOT NULL DEFAULT 0,
			continuity_sensitive BOOLEAN NOT NULL DEFAULT 0,
			shareable BOOLEAN NOT NULL DEFAULT 0,
			weekdays TEXT NOT NULL DEFAULT '[]',
			start_time TEXT,
			end_time TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Clinic catalog
		`CREATE TABLE IF NOT EXISTS clinics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			weekday INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			requires_warfarin BOOLEAN NOT NULL DEFAULT 0,
			preferred_staff TEXT NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// One rota document per calendar date
		`CREATE TABLE IF NOT EXISTS rota_documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date DATETIME UNIQUE NOT NULL,
			week_start DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			generated_by TEXT,
			generated_at DATETIME,
			published_by TEXT,
			published_at DATETIME,
			published_set_id TEXT,
			version INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rota_id INTEGER NOT NULL,
			staff_id INTEGER,
			staff_name TEXT,
			type TEXT NOT NULL,
			location TEXT NOT NULL,
			date DATETIME NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			category TEXT,
			shareable BOOLEAN NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (rota_id) REFERENCES rota_documents(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS conflicts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rota_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			description TEXT NOT NULL,
			severity TEXT NOT NULL,
			FOREIGN KEY (rota_id) REFERENCES rota_documents(id) ON DELETE CASCADE
		)`,

		// Free-text cell overrides, side table keyed by composite cell key
		`CREATE TABLE IF NOT EXISTS cell_overrides (
			rota_id INTEGER NOT NULL,
			cell_key TEXT NOT NULL,
			note TEXT NOT NULL,
			PRIMARY KEY (rota_id, cell_key),
			FOREIGN KEY (rota_id) REFERENCES rota_documents(id) ON DELETE CASCADE
		)`,

		// Resumable generation inputs; superseded, never deleted
		`CREATE TABLE IF NOT EXISTS rota_configurations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			week_start DATETIME NOT NULL,
			payload TEXT NOT NULL,
			superseded_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_staff_active ON staff(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_requirements_active ON requirements(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_clinics_weekday ON clinics(weekday, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_rota_week ON rota_documents(week_start, status)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_rota ON assignments(rota_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_staff ON assignments(staff_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_configurations_week ON rota_configurations(week_start)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// marshalJSON stores set-like columns as JSON text; empty slices collapse to [].
func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalJSON(data string, v interface{}) {
	if data == "" {
		return
	}
	_ = json.Unmarshal([]byte(data), v)
}
