// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"
)

const (
	errJobNotFound        = "job not found"
	errContractorNotFound = "contractor not found"
	errAssignmentNotFound = "assignment not found"
	errAuditNotFound      = "no recommendation audit for job"
	errInvalidRequest     = "invalid request"
	errInvalidInterval    = "invalid interval"
	errConflict           = "assignment conflict"
	errLockTimeout        = "contractor lock wait timed out"
	errWeightsImmutable   = "weights config version is referenced by an audit and immutable"
	errUnknownSkill       = "skill tag not present in catalogue"
)

var (
	ErrJobNotFound        = errors.New(errJobNotFound)
	ErrContractorNotFound = errors.New(errContractorNotFound)
	ErrAssignmentNotFound = errors.New(errAssignmentNotFound)
	ErrAuditNotFound      = errors.New(errAuditNotFound)
	ErrInvalidRequest     = errors.New(errInvalidRequest)
	ErrInvalidInterval    = errors.New(errInvalidInterval)
	ErrConflict           = errors.New(errConflict)
	ErrLockTimeout        = errors.New(errLockTimeout)
	ErrWeightsImmutable   = errors.New(errWeightsImmutable)
	ErrUnknownSkill       = errors.New(errUnknownSkill)
)

// Stable error codes carried across transports. These never change once
// published.
const (
	CodeNotFound       = "NotFound"
	CodeInvalidRequest = "InvalidRequest"
	CodeConflict       = "Conflict"
	CodeDegraded       = "Degraded"
	CodeTransient      = "Transient"
	CodeFatal          = "Fatal"
)

// ErrCode maps an error to its stable taxonomy code. Unrecognized errors are
// Fatal: by the time an error escapes the core every recoverable case has
// already been folded into Degraded.
func ErrCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrContractorNotFound),
		errors.Is(err, ErrAssignmentNotFound),
		errors.Is(err, ErrAuditNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidInterval),
		errors.Is(err, ErrUnknownSkill):
		return CodeInvalidRequest
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrLockTimeout),
		errors.Is(err, ErrWeightsImmutable):
		return CodeConflict
	default:
		return CodeFatal
	}
}

// NewConflictError wraps ErrConflict with a stable human-readable reason
// naming the violated rule.
func NewConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NewInvalidRequestError wraps ErrInvalidRequest with the offending field
// detail.
func NewInvalidRequestError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
