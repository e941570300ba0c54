package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/sentinel/internal/domain"
)

// LedgerRepo persists the hash-linked audit ledger. Ids are assigned by the
// chain, not the database, so fallback replay preserves the original
// linkage; the primary key rejects duplicate replays.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("ledgerRepo.Append: marshal metadata: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_ledger
		   (id, event_type, actor_id, actor_name, action, resource_type, resource_id,
		    classification, result, client_ip, user_agent, method, path, status_code,
		    country, metadata, created_at, integrity_hash, previous_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		entry.ID, entry.EventType, entry.ActorID, entry.ActorName,
		entry.Action, entry.ResourceType, entry.ResourceID,
		nilIfEmpty(string(entry.Classification)), entry.Result,
		entry.Client.IP, entry.Client.UserAgent, entry.Client.Method,
		entry.Client.Path, entry.Client.StatusCode, entry.Client.Country,
		metadata, entry.CreatedAt, entry.IntegrityHash, entry.PreviousHash,
	)
	if err != nil {
		return fmt.Errorf("ledgerRepo.Append: %w", err)
	}

	return nil
}

func (r *LedgerRepo) Last(ctx context.Context) (*domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		ledgerSelect+` ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.Last: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows, "ledgerRepo.Last")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("ledgerRepo.Last: %w", domain.ErrNotFound)
	}
	return entries[0], nil
}

func (r *LedgerRepo) Range(ctx context.Context, fromID, toID int64) ([]*domain.AuditEntry, error) {
	rows, err := r.pool.Query(ctx,
		ledgerSelect+` WHERE id BETWEEN $1 AND $2 ORDER BY id ASC`,
		fromID, toID,
	)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.Range: %w", err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows, "ledgerRepo.Range")
}

func (r *LedgerRepo) CountByType(ctx context.Context, from, to time.Time) (map[domain.EventType]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_type, COUNT(*) FROM audit_ledger
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY event_type`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.CountByType: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int64)
	for rows.Next() {
		var eventType domain.EventType
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("ledgerRepo.CountByType: scan: %w", err)
		}
		counts[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledgerRepo.CountByType: rows: %w", err)
	}

	return counts, nil
}

func (r *LedgerRepo) CountDenied(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_ledger
		 WHERE created_at >= $1 AND created_at < $2 AND result IN ('denied', 'failed')`,
		from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledgerRepo.CountDenied: %w", err)
	}

	return count, nil
}

func (r *LedgerRepo) TopOffenders(ctx context.Context, from, to time.Time, limit int) ([]domain.ActorCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT COALESCE(actor_id::text, client_ip), COUNT(*) AS n FROM audit_ledger
		 WHERE created_at >= $1 AND created_at < $2 AND result IN ('denied', 'failed')
		 GROUP BY 1 ORDER BY n DESC LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.TopOffenders: %w", err)
	}
	defer rows.Close()

	var offenders []domain.ActorCount
	for rows.Next() {
		var ac domain.ActorCount
		if err := rows.Scan(&ac.ActorID, &ac.Count); err != nil {
			return nil, fmt.Errorf("ledgerRepo.TopOffenders: scan: %w", err)
		}
		offenders = append(offenders, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledgerRepo.TopOffenders: rows: %w", err)
	}

	return offenders, nil
}

func (r *LedgerRepo) Bounds(ctx context.Context, from, to time.Time) (int64, int64, error) {
	var minID, maxID *int64
	err := r.pool.QueryRow(ctx,
		`SELECT MIN(id), MAX(id) FROM audit_ledger
		 WHERE created_at >= $1 AND created_at < $2`,
		from, to,
	).Scan(&minID, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("ledgerRepo.Bounds: %w", err)
	}
	if minID == nil || maxID == nil {
		return 0, 0, nil
	}

	return *minID, *maxID, nil
}

const ledgerSelect = `SELECT id, event_type, actor_id, actor_name, action, resource_type, resource_id,
	classification, result, client_ip, user_agent, method, path, status_code,
	country, metadata, created_at, integrity_hash, previous_hash
 FROM audit_ledger`

func scanLedgerEntries(rows pgx.Rows, caller string) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var classification *string
		var metadata []byte

		if err := rows.Scan(
			&e.ID, &e.EventType, &e.ActorID, &e.ActorName, &e.Action,
			&e.ResourceType, &e.ResourceID, &classification, &e.Result,
			&e.Client.IP, &e.Client.UserAgent, &e.Client.Method,
			&e.Client.Path, &e.Client.StatusCode, &e.Client.Country,
			&metadata, &e.CreatedAt, &e.IntegrityHash, &e.PreviousHash,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		e.Classification = domain.Classification(derefStr(classification))
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return entries, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
