package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pharmarota/internal/models"
)

// RecordAudit appends one operator action to the audit log.
func (db *DB) RecordAudit(ctx context.Context, actor, action, detail string) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO audit_log (id, actor, action, detail) VALUES (?, ?, ?, ?)",
		uuid.NewString(), actor, action, detail)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// GetAuditEntries returns audit entries newest first, capped at limit.
func (db *DB) GetAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, actor, action, detail, created_at
		FROM audit_log ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.CreatedAt = createdAt
		out = append(out, e)
	}
	return out, rows.Err()
}
