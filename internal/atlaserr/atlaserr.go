// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package atlaserr defines the error kinds from spec.md §7. Atlas wraps
// these with fmt.Errorf("...: %w", err) the same way the teacher wraps
// driver errors in internal/database and internal/vectordb; callers use
// errors.As to recover the kind and errors.Is to compare tiers.
package atlaserr

import "fmt"

// Kind is one of the error classifications from spec.md §7.
type Kind string

const (
	KindConfigInvalid        Kind = "config_invalid"
	KindBackendUnavailable   Kind = "backend_unavailable"
	KindBackendTimeout       Kind = "backend_timeout"
	KindFilterTranslation    Kind = "filter_translation"
	KindChunkerIO            Kind = "chunker_io"
	KindEmbedderFailure      Kind = "embedder_failure"
	KindConsistencyViolation Kind = "consistency_violation"
)

// Tier names a storage tier involved in a BackendUnavailable/BackendTimeout error.
type Tier string

const (
	TierVector   Tier = "vector"
	TierMetadata Tier = "metadata"
	TierCache    Tier = "cache"
	TierFulltext Tier = "fulltext"
	TierAnalytics Tier = "analytics"
)

// Error is the concrete type returned for every classified failure.
type Error struct {
	Kind    Kind
	Tier    Tier // empty unless Kind needs one
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Tier != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Tier, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error whose non-empty Kind and Tier both
// equal e's, so errors.Is(err, &atlaserr.Error{Kind: atlaserr.KindBackendUnavailable})
// matches any error of that kind regardless of tier.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Tier != "" && t.Tier != e.Tier {
		return false
	}
	return true
}

// New wraps err under kind with a message, no tier.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewTiered wraps err under kind/tier with a message.
func NewTiered(kind Kind, tier Tier, message string, err error) *Error {
	return &Error{Kind: kind, Tier: tier, Message: message, Err: err}
}

// Unavailable builds a BackendUnavailable error for the given tier.
func Unavailable(tier Tier, err error) *Error {
	return NewTiered(KindBackendUnavailable, tier, fmt.Sprintf("%s tier unavailable", tier), err)
}

// Timeout builds a BackendTimeout error for the given tier.
func Timeout(tier Tier, err error) *Error {
	return NewTiered(KindBackendTimeout, tier, fmt.Sprintf("%s tier timed out", tier), err)
}

// IsUnavailable reports whether err is a BackendUnavailable error, optionally for a specific tier.
func IsUnavailable(err error, tier Tier) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == KindBackendUnavailable && (tier == "" || e.Tier == tier)
}

// IsTimeout reports whether err is a BackendTimeout error.
func IsTimeout(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == KindBackendTimeout
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
