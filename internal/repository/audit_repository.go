package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unclebandit/vendor-outreach/internal/model"
)

// AuditRepository is the append-only activity trail keyed by subject.
type AuditRepository struct {
	DB *sql.DB
}

func (r *AuditRepository) Append(ctx context.Context, subjectID, entryType, description string, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `
        INSERT INTO vendor_activity (subject_id, type, description, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, subjectID, entryType, description, meta, time.Now())
	if err != nil {
		return fmt.Errorf("append audit entry %s for %s: %w", entryType, subjectID, err)
	}
	return nil
}

func (r *AuditRepository) ListBySubject(ctx context.Context, subjectID string) ([]model.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, subject_id, type, description, metadata, created_at
        FROM vendor_activity WHERE subject_id=$1 ORDER BY id ASC
    `, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var (
			e    model.AuditEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.Type, &e.Description, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata %d: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type AuditRepositoryInterface interface {
	Append(ctx context.Context, subjectID, entryType, description string, metadata map[string]any) error
	ListBySubject(ctx context.Context, subjectID string) ([]model.AuditEntry, error)
}

var (
	_ AuditRepositoryInterface = (*AuditRepository)(nil)
	_ AuditRepositoryInterface = (*InMemoryAuditRepository)(nil)
)
