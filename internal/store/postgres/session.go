package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sentinel/internal/domain"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions
		   (id, principal_id, token_id, created_at, last_activity, expires_at,
		    absolute_expires_at, client_ip, user_agent, country, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.PrincipalID, s.TokenID, s.CreatedAt, s.LastActivity,
		s.ExpiresAt, s.AbsoluteExpiresAt,
		s.Client.IP, s.Client.UserAgent, s.Client.Country, s.Active,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Create: %w", err)
	}

	return nil
}

func (r *SessionRepo) GetByTokenID(ctx context.Context, tokenID uuid.UUID) (*domain.Session, error) {
	var s domain.Session
	err := r.pool.QueryRow(ctx,
		sessionSelect+` WHERE token_id = $1`,
		tokenID,
	).Scan(
		&s.ID, &s.PrincipalID, &s.TokenID, &s.CreatedAt, &s.LastActivity,
		&s.ExpiresAt, &s.AbsoluteExpiresAt,
		&s.Client.IP, &s.Client.UserAgent, &s.Client.Country, &s.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sessionRepo.GetByTokenID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetByTokenID: %w", err)
	}

	return &s, nil
}

func (r *SessionRepo) Update(ctx context.Context, s *domain.Session) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET last_activity = $2, expires_at = $3, client_ip = $4, user_agent = $5, country = $6
		 WHERE id = $1 AND active`,
		s.ID, s.LastActivity, s.ExpiresAt,
		s.Client.IP, s.Client.UserAgent, s.Client.Country,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.Update: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *SessionRepo) ListActiveByPrincipal(ctx context.Context, principalID uuid.UUID) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		sessionSelect+` WHERE principal_id = $1 AND active ORDER BY last_activity DESC`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ListActiveByPrincipal: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows, "sessionRepo.ListActiveByPrincipal")
}

func (r *SessionRepo) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE active`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sessionRepo.CountActive: %w", err)
	}

	return count, nil
}

func (r *SessionRepo) Invalidate(ctx context.Context, id uuid.UUID, reason domain.InvalidateReason) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET active = FALSE, ended_reason = $2 WHERE id = $1 AND active`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Invalidate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.Invalidate: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *SessionRepo) ExpireBefore(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE sessions
		 SET active = FALSE,
		     ended_reason = CASE WHEN absolute_expires_at <= $1 THEN 'absolute_expired' ELSE 'idle_expired' END
		 WHERE active AND (expires_at <= $1 OR absolute_expires_at <= $1)
		 RETURNING id, principal_id, token_id, created_at, last_activity, expires_at,
		   absolute_expires_at, client_ip, user_agent, country, active`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.ExpireBefore: %w", err)
	}
	defer rows.Close()

	return scanSessions(rows, "sessionRepo.ExpireBefore")
}

const sessionSelect = `SELECT id, principal_id, token_id, created_at, last_activity, expires_at,
	absolute_expires_at, client_ip, user_agent, country, active
 FROM sessions`

func scanSessions(rows pgx.Rows, caller string) ([]*domain.Session, error) {
	var sessions []*domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID, &s.PrincipalID, &s.TokenID, &s.CreatedAt, &s.LastActivity,
			&s.ExpiresAt, &s.AbsoluteExpiresAt,
			&s.Client.IP, &s.Client.UserAgent, &s.Client.Country, &s.Active,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return sessions, nil
}
