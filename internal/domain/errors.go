package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound            = errors.New("domain: not found")
	ErrConflict            = errors.New("domain: conflict")
	ErrIntegrityViolation  = errors.New("domain: ledger integrity violation")
	ErrSessionExpired      = errors.New("domain: session expired")
	ErrSessionEvicted      = errors.New("domain: session evicted")
	ErrSessionNotFound     = errors.New("domain: session not found")
	ErrPolicyRejected      = errors.New("domain: credential policy rejected")
	ErrPasswordCompromised = errors.New("domain: password found in breach corpus")
	ErrPasswordExpired     = errors.New("domain: password expired")
	ErrAccountLocked       = errors.New("domain: account locked")
	ErrStorageUnavailable  = errors.New("domain: storage unavailable")
)
