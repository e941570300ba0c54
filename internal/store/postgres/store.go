// Package postgres implements the persistence ports over pgx connection
// pooling. Tables: audit_ledger (append-only), sessions, incidents,
// credentials.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sentinel/internal/domain"
)

type Store struct {
	pool        *pgxpool.Pool
	ledger      *LedgerRepo
	sessions    *SessionRepo
	incidents   *IncidentRepo
	credentials *CredentialRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:        pool,
		ledger:      NewLedgerRepo(pool),
		sessions:    NewSessionRepo(pool),
		incidents:   NewIncidentRepo(pool),
		credentials: NewCredentialRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ledger() domain.LedgerRepository          { return s.ledger }
func (s *Store) Sessions() domain.SessionRepository       { return s.sessions }
func (s *Store) Incidents() domain.IncidentRepository     { return s.incidents }
func (s *Store) Credentials() domain.CredentialRepository { return s.credentials }
