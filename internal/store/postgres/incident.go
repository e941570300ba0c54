package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sentinel/internal/domain"
)

type IncidentRepo struct {
	pool *pgxpool.Pool
}

func NewIncidentRepo(pool *pgxpool.Pool) *IncidentRepo {
	return &IncidentRepo{pool: pool}
}

func (r *IncidentRepo) Create(ctx context.Context, inc *domain.Incident) error {
	details, err := json.Marshal(inc.Details)
	if err != nil {
		return fmt.Errorf("incidentRepo.Create: marshal details: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO incidents (id, alert_type, severity, status, audit_entry_id, details, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inc.ID, inc.Type, inc.Severity, inc.Status,
		inc.AuditEntryID, details, inc.CreatedAt, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("incidentRepo.Create: %w", err)
	}

	return nil
}

func (r *IncidentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.IncidentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE incidents SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("incidentRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incidentRepo.UpdateStatus: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *IncidentRepo) ListOpen(ctx context.Context, limit int) ([]*domain.Incident, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, alert_type, severity, status, audit_entry_id, details, created_at, updated_at
		 FROM incidents
		 WHERE status IN ('open', 'investigating')
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("incidentRepo.ListOpen: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows, "incidentRepo.ListOpen")
}

func scanIncidents(rows pgx.Rows, caller string) ([]*domain.Incident, error) {
	var incidents []*domain.Incident
	for rows.Next() {
		var inc domain.Incident
		var details []byte

		if err := rows.Scan(
			&inc.ID, &inc.Type, &inc.Severity, &inc.Status,
			&inc.AuditEntryID, &details, &inc.CreatedAt, &inc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &inc.Details); err != nil {
				return nil, fmt.Errorf("%s: unmarshal details: %w", caller, err)
			}
		}
		incidents = append(incidents, &inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return incidents, nil
}
