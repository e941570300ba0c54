// Package credential enforces password policy: strength scoring with
// itemized reasons, breach lookup via k-anonymity, history enforcement,
// age-based expiry, and failed-attempt lockout.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"

	"github.com/gosuda/sentinel/internal/domain"
)

// ErrInvalidCredentials is returned when the password does not match.
var ErrInvalidCredentials = errors.New("credential: invalid credentials")

// PolicyError carries every unmet rule so callers can show the full list,
// never a single generic error.
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	return "credential: policy rejected: " + strings.Join(e.Reasons, "; ")
}

func (e *PolicyError) Unwrap() error { return domain.ErrPolicyRejected }

// argon2id parameters following OWASP recommendations.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// AuditRecorder is the ledger port for credential lifecycle entries.
type AuditRecorder interface {
	Append(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error)
}

// Config holds credential policy knobs.
type Config struct {
	MinLength        int
	HistorySize      int
	MaxAge           time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
}

// DefaultConfig returns the credential policy defaults.
func DefaultConfig() Config {
	return Config{
		MinLength:        12,
		HistorySize:      12,
		MaxAge:           365 * 24 * time.Hour,
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the credential policy engine.
type Engine struct {
	creds    domain.CredentialRepository
	breach   BreachClient // nil disables breach checking
	recorder AuditRecorder
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine creates a credential policy engine.
func NewEngine(creds domain.CredentialRepository, breach BreachClient, recorder AuditRecorder, cfg Config, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		creds:    creds,
		breach:   breach,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "credential").Logger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate runs the full acceptance pipeline for a candidate password:
// strength, breach corpus, and history. Returns the strength score on
// success. Breach-service unavailability is a soft failure: the candidate
// is accepted and the gap is recorded on the ledger, not surfaced to the
// end user.
func (e *Engine) Validate(ctx context.Context, principalID uuid.UUID, password string) (int, error) {
	score, reasons := Score(password, e.cfg.MinLength)
	if len(reasons) > 0 {
		return 0, &PolicyError{Reasons: reasons}
	}

	if e.breach != nil {
		compromised, err := CheckPassword(ctx, e.breach, password)
		switch {
		case err != nil:
			e.logger.Warn().Err(err).Msg("breach check unavailable, accepting password")
			e.recordComplianceGap(ctx, principalID, err)
		case compromised:
			return 0, fmt.Errorf("credential.Engine.Validate: %w", domain.ErrPasswordCompromised)
		}
	}

	if err := e.checkHistory(ctx, principalID, password); err != nil {
		return 0, err
	}

	return score, nil
}

// ChangePassword validates the candidate, rotates the stored hash, pushes
// the old hash onto the bounded history, and records the change.
func (e *Engine) ChangePassword(ctx context.Context, principalID uuid.UUID, password string) error {
	if _, err := e.Validate(ctx, principalID, password); err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("credential.Engine.ChangePassword: %w", err)
	}

	now := e.now()

	rec, err := e.creds.Get(ctx, principalID)
	if errors.Is(err, domain.ErrNotFound) {
		rec = &domain.CredentialRecord{PrincipalID: principalID}
	} else if err != nil {
		return fmt.Errorf("credential.Engine.ChangePassword: %w", err)
	}

	if rec.PasswordHash != "" {
		rec.History = append([]string{rec.PasswordHash}, rec.History...)
		if len(rec.History) > e.cfg.HistorySize {
			rec.History = rec.History[:e.cfg.HistorySize]
		}
	}
	rec.PasswordHash = hash
	rec.ChangedAt = now
	rec.FailedAttempts = 0
	rec.LockedUntil = nil

	if err := e.creds.Save(ctx, rec); err != nil {
		return fmt.Errorf("credential.Engine.ChangePassword: %w", err)
	}

	pid := principalID
	if _, err := e.recorder.Append(ctx, &domain.AuditEntry{
		EventType:    domain.EventPasswordChanged,
		ActorID:      &pid,
		Action:       "password_changed",
		ResourceType: "credential",
		ResourceID:   principalID.String(),
		Result:       domain.ResultGranted,
	}); err != nil {
		return fmt.Errorf("credential.Engine.ChangePassword: audit: %w", err)
	}

	return nil
}

// VerifyLogin checks a login attempt against the stored credential:
// lockout, hash match with failed-attempt accounting, and expiry.
func (e *Engine) VerifyLogin(ctx context.Context, principalID uuid.UUID, password string) error {
	rec, err := e.creds.Get(ctx, principalID)
	if err != nil {
		return fmt.Errorf("credential.Engine.VerifyLogin: %w", ErrInvalidCredentials)
	}

	now := e.now()
	if rec.LockedUntil != nil && now.Before(*rec.LockedUntil) {
		return fmt.Errorf("credential.Engine.VerifyLogin: %w", domain.ErrAccountLocked)
	}

	if !VerifyHash(password, rec.PasswordHash) {
		rec.FailedAttempts++
		if rec.FailedAttempts >= e.cfg.LockoutThreshold {
			until := now.Add(e.cfg.LockoutDuration)
			rec.LockedUntil = &until
		}
		if saveErr := e.creds.Save(ctx, rec); saveErr != nil {
			e.logger.Error().Err(saveErr).Str("principal_id", principalID.String()).Msg("record failed attempt")
		}
		return fmt.Errorf("credential.Engine.VerifyLogin: %w", ErrInvalidCredentials)
	}

	if !rec.NeverExpires && !rec.ChangedAt.IsZero() && now.Sub(rec.ChangedAt) > e.cfg.MaxAge {
		return fmt.Errorf("credential.Engine.VerifyLogin: %w", domain.ErrPasswordExpired)
	}

	if rec.FailedAttempts != 0 || rec.LockedUntil != nil {
		rec.FailedAttempts = 0
		rec.LockedUntil = nil
		if saveErr := e.creds.Save(ctx, rec); saveErr != nil {
			e.logger.Error().Err(saveErr).Str("principal_id", principalID.String()).Msg("reset failed attempts")
		}
	}

	return nil
}

// checkHistory rejects a candidate matching the current hash or any of the
// retained previous hashes. One-way comparison only: each history entry is
// an argon2id hash, never plaintext.
func (e *Engine) checkHistory(ctx context.Context, principalID uuid.UUID, password string) error {
	rec, err := e.creds.Get(ctx, principalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("credential.Engine: load history: %w", err)
	}

	candidates := append([]string{rec.PasswordHash}, rec.History...)
	for _, h := range candidates {
		if h != "" && VerifyHash(password, h) {
			return &PolicyError{Reasons: []string{
				fmt.Sprintf("must not match any of the last %d passwords", e.cfg.HistorySize),
			}}
		}
	}
	return nil
}

func (e *Engine) recordComplianceGap(ctx context.Context, principalID uuid.UUID, cause error) {
	pid := principalID
	if _, err := e.recorder.Append(ctx, &domain.AuditEntry{
		EventType:    domain.EventComplianceGap,
		ActorID:      &pid,
		Action:       "breach_check_skipped",
		ResourceType: "credential",
		ResourceID:   principalID.String(),
		Result:       domain.ResultGranted,
		Metadata:     map[string]string{"cause": cause.Error()},
	}); err != nil {
		e.logger.Error().Err(err).Msg("compliance gap audit entry")
	}
}

// HashPassword generates an argon2id hash with a random salt.
// Format: hex(salt) + "$" + hex(hash)
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

// VerifyHash checks a password against an argon2id hash in constant time.
func VerifyHash(password, encoded string) bool {
	saltHex, hashHex, ok := strings.Cut(encoded, "$")
	if !ok || saltHex == "" || hashHex == "" {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	expected, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	if len(computed) != len(expected) {
		return false
	}

	var diff byte
	for i := range computed {
		diff |= computed[i] ^ expected[i]
	}

	return diff == 0
}
