package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/gosuda/sentinel/internal/domain"
)

// VerifyRange recomputes each entry's hash from its stored fields and checks
// the previous-hash linkage across [fromID, toID]. Verification reads only;
// it never mutates the ledger. Storage errors are returned, not swallowed.
func (c *Chain) VerifyRange(ctx context.Context, fromID, toID int64) (*domain.IntegrityReport, error) {
	report := &domain.IntegrityReport{
		FromID:    fromID,
		ToID:      toID,
		CheckedAt: time.Now().UTC(),
	}

	entries, err := c.repo.Range(ctx, fromID, toID)
	if err != nil {
		return nil, fmt.Errorf("ledger.Chain.VerifyRange: load entries: %w", err)
	}
	if len(entries) == 0 {
		report.OK = true
		return report, nil
	}

	prevHash, err := c.priorHash(ctx, entries[0].ID)
	if err != nil {
		return nil, fmt.Errorf("ledger.Chain.VerifyRange: %w", err)
	}

	expectedID := entries[0].ID
	for _, e := range entries {
		if e.ID != expectedID {
			report.Violations = append(report.Violations, domain.Violation{
				EntryID: e.ID,
				Kind:    domain.ViolationDiscontinuity,
				Detail:  fmt.Sprintf("expected entry id %d, found %d", expectedID, e.ID),
			})
			expectedID = e.ID
		}

		if e.PreviousHash != prevHash {
			report.Violations = append(report.Violations, domain.Violation{
				EntryID: e.ID,
				Kind:    domain.ViolationDiscontinuity,
				Detail:  fmt.Sprintf("previous_hash %.12s does not match prior entry hash %.12s", e.PreviousHash, prevHash),
			})
		}

		if recomputed := EntryHash(e); recomputed != e.IntegrityHash {
			report.Violations = append(report.Violations, domain.Violation{
				EntryID: e.ID,
				Kind:    domain.ViolationContentMismatch,
				Detail:  fmt.Sprintf("recomputed hash %.12s does not match stored %.12s", recomputed, e.IntegrityHash),
			})
		}

		// Link the next entry against the stored hash, not the recomputed
		// one, so a single tampered entry yields a single violation.
		prevHash = e.IntegrityHash
		expectedID++
	}

	report.OK = len(report.Violations) == 0
	return report, nil
}

// priorHash resolves the hash the first verified entry must link to: the
// genesis constant for entry 1, otherwise the stored hash of the preceding
// entry. When the preceding entry is outside the retained range, the
// entry's own stored previous_hash is taken as the baseline.
func (c *Chain) priorHash(ctx context.Context, firstID int64) (string, error) {
	if firstID <= 1 {
		return Genesis, nil
	}

	prior, err := c.repo.Range(ctx, firstID-1, firstID-1)
	if err != nil {
		return "", fmt.Errorf("load prior entry %d: %w", firstID-1, err)
	}
	if len(prior) == 0 {
		entries, err := c.repo.Range(ctx, firstID, firstID)
		if err != nil || len(entries) == 0 {
			return "", fmt.Errorf("load baseline entry %d: %w", firstID, err)
		}
		return entries[0].PreviousHash, nil
	}

	return prior[0].IntegrityHash, nil
}
