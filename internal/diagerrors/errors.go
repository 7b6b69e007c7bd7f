// Package diagerrors defines the two closed error taxonomies the engine
// uses: probe-operation failures and ingestion failure categories. Both
// are plain sentinel-wrapped errors (errors.New + fmt.Errorf %w), not a
// custom error framework and no panic/recover-based control flow.
package diagerrors

import (
	"errors"
	"fmt"
)

// ProbeErrorKind classifies why a cluster probe operation failed.
type ProbeErrorKind string

const (
	KindUnavailable      ProbeErrorKind = "unavailable"
	KindPermissionDenied ProbeErrorKind = "permission_denied"
	KindSyntax           ProbeErrorKind = "syntax"
	KindAbsent           ProbeErrorKind = "absent"
	KindOther            ProbeErrorKind = "other"
)

// Sentinel errors so callers can use errors.Is against a stable value
// regardless of the wrapped driver message.
var (
	ErrUnavailable      = errors.New("probe: cluster unavailable")
	ErrPermissionDenied = errors.New("probe: permission denied")
	ErrSyntax           = errors.New("probe: statement rejected")
	ErrAbsent           = errors.New("probe: object not found")
	ErrOther            = errors.New("probe: driver error")
)

func sentinelFor(kind ProbeErrorKind) error {
	switch kind {
	case KindUnavailable:
		return ErrUnavailable
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindSyntax:
		return ErrSyntax
	case KindAbsent:
		return ErrAbsent
	default:
		return ErrOther
	}
}

// ProbeError wraps a driver-level failure with the kind the pipeline and
// analyzers reason about. The underlying driver message is preserved
// verbatim for inclusion in Findings.
type ProbeError struct {
	Kind       ProbeErrorKind
	DriverText string
	Cause      error
}

func NewProbeError(kind ProbeErrorKind, driverText string, cause error) *ProbeError {
	return &ProbeError{Kind: kind, DriverText: driverText, Cause: cause}
}

func (e *ProbeError) Error() string {
	if e.DriverText != "" {
		return fmt.Sprintf("%s: %s", sentinelFor(e.Kind), e.DriverText)
	}
	return sentinelFor(e.Kind).Error()
}

func (e *ProbeError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelFor(e.Kind)
}

// IsUnavailable reports whether err (or anything it wraps) is an
// Unavailable probe error - one of the two kinds, alongside Syntax, that
// abort the pipeline when a required descriptor fails with it.
func IsUnavailable(err error) bool { return kindIs(err, KindUnavailable) }

func IsPermissionDenied(err error) bool { return kindIs(err, KindPermissionDenied) }

func IsSyntax(err error) bool { return kindIs(err, KindSyntax) }

func IsAbsent(err error) bool { return kindIs(err, KindAbsent) }

func kindIs(err error, kind ProbeErrorKind) bool {
	var pe *ProbeError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// FailureCategory classifies an ingestion job's terminal error message.
type FailureCategory string

const (
	CategoryTimeout       FailureCategory = "timeout"
	CategoryResource      FailureCategory = "resource"
	CategoryNetwork       FailureCategory = "network"
	CategoryFile          FailureCategory = "file"
	CategoryPermission    FailureCategory = "permission_denied"
	CategoryTransaction   FailureCategory = "transaction"
	CategoryConfiguration FailureCategory = "configuration"
	CategoryDataQuality   FailureCategory = "data_quality"
	CategoryCancelled     FailureCategory = "cancelled"
	CategoryOther         FailureCategory = "other"
)

// AllCategories lists the closed set an LLM-produced category must be a
// member of; an adapter validates its result against this set before
// trusting it.
var AllCategories = []FailureCategory{
	CategoryTimeout, CategoryResource, CategoryNetwork, CategoryFile,
	CategoryPermission, CategoryTransaction, CategoryConfiguration,
	CategoryDataQuality, CategoryCancelled, CategoryOther,
}

// IsValidCategory reports whether c is one of AllCategories.
func IsValidCategory(c FailureCategory) bool {
	for _, known := range AllCategories {
		if known == c {
			return true
		}
	}
	return false
}
