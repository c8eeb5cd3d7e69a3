package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pharmarota/internal/models"
)

// SaveRotaConfiguration persists a generation input for a week, marking any
// previous configuration for the same week as superseded rather than
// deleting it.
func (db *DB) SaveRotaConfiguration(ctx context.Context, cfg *models.RotaConfiguration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	weekStart := models.DateOnly(cfg.WeekStart)
	if _, err := tx.ExecContext(ctx, `
		UPDATE rota_configurations SET superseded_at = CURRENT_TIMESTAMP
		WHERE week_start = ? AND superseded_at IS NULL`, weekStart); err != nil {
		return fmt.Errorf("supersede configurations: %w", err)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO rota_configurations (week_start, payload) VALUES (?, ?)",
		weekStart, string(payload))
	if err != nil {
		return fmt.Errorf("insert configuration: %w", err)
	}
	cfg.ID, _ = res.LastInsertId()
	return tx.Commit()
}

// GetCurrentConfiguration returns the latest non-superseded configuration
// for the week, or sql.ErrNoRows.
func (db *DB) GetCurrentConfiguration(ctx context.Context, weekStart time.Time) (*models.RotaConfiguration, error) {
	var id int64
	var payload string
	var createdAt time.Time
	err := db.QueryRowContext(ctx, `
		SELECT id, payload, created_at FROM rota_configurations
		WHERE week_start = ? AND superseded_at IS NULL
		ORDER BY id DESC LIMIT 1`, models.DateOnly(weekStart)).
		Scan(&id, &payload, &createdAt)
	if err != nil {
		return nil, err
	}
	var cfg models.RotaConfiguration
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration %d: %w", id, err)
	}
	cfg.ID = id
	cfg.CreatedAt = createdAt
	return &cfg, nil
}
