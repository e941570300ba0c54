package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sentinel/internal/domain"
)

type CredentialRepo struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

func (r *CredentialRepo) Get(ctx context.Context, principalID uuid.UUID) (*domain.CredentialRecord, error) {
	var rec domain.CredentialRecord
	var history []byte

	err := r.pool.QueryRow(ctx,
		`SELECT principal_id, password_hash, history, failed_attempts, locked_until, changed_at, never_expires
		 FROM credentials WHERE principal_id = $1`,
		principalID,
	).Scan(
		&rec.PrincipalID, &rec.PasswordHash, &history,
		&rec.FailedAttempts, &rec.LockedUntil, &rec.ChangedAt, &rec.NeverExpires,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credentialRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.Get: %w", err)
	}

	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.History); err != nil {
			return nil, fmt.Errorf("credentialRepo.Get: unmarshal history: %w", err)
		}
	}

	return &rec, nil
}

func (r *CredentialRepo) Save(ctx context.Context, rec *domain.CredentialRecord) error {
	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("credentialRepo.Save: marshal history: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO credentials (principal_id, password_hash, history, failed_attempts, locked_until, changed_at, never_expires)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (principal_id) DO UPDATE
		 SET password_hash = EXCLUDED.password_hash,
		     history = EXCLUDED.history,
		     failed_attempts = EXCLUDED.failed_attempts,
		     locked_until = EXCLUDED.locked_until,
		     changed_at = EXCLUDED.changed_at,
		     never_expires = EXCLUDED.never_expires`,
		rec.PrincipalID, rec.PasswordHash, history,
		rec.FailedAttempts, rec.LockedUntil, rec.ChangedAt, rec.NeverExpires,
	)
	if err != nil {
		return fmt.Errorf("credentialRepo.Save: %w", err)
	}

	return nil
}
