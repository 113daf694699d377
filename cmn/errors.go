// Package cmn provides the ambient stack shared by every package in this
// module: error kinds, read-mostly config, worker pools, and the weak-ref
// helper used to break owner/observer cycles (spec.md §9).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// ErrKind is the closed set of behavioral error categories from spec.md §7.
// It deliberately does not distinguish Go types per error: callers switch
// on Kind(), not on a type assertion, which keeps the set closed the way
// the teacher's tagged-variant convention (spec.md §9) intends.
type ErrKind int

const (
	KindBadRequest ErrKind = iota + 1
	KindNotFound
	KindConflict
	KindCancelled
	KindTimeout
	KindServiceError
)

func (k ErrKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCancelled:
		return "cancelled"
	case KindTimeout:
		return "timeout"
	case KindServiceError:
		return "service_error"
	default:
		return "unknown"
	}
}

// Error is the single error type produced by this module. Kind drives
// retry/propagation policy (spec.md §7): BadRequest/NotFound/Conflict/
// Cancelled surface immediately, Timeout is retriable at the caller,
// ServiceError is subject to bounded retry only in background tasks.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k ErrKind, format string, a ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, a...)}
}

func NewBadRequest(format string, a ...any) *Error   { return newErr(KindBadRequest, format, a...) }
func NewNotFound(format string, a ...any) *Error     { return newErr(KindNotFound, format, a...) }
func NewConflict(format string, a ...any) *Error     { return newErr(KindConflict, format, a...) }
func NewCancelled(format string, a ...any) *Error    { return newErr(KindCancelled, format, a...) }
func NewTimeout(format string, a ...any) *Error      { return newErr(KindTimeout, format, a...) }

func NewServiceError(cause error, format string, a ...any) *Error {
	e := newErr(KindServiceError, format, a...)
	e.Cause = cause
	return e
}

// IsKind reports whether err (or one it wraps) is a *Error of the given kind.
func IsKind(err error, k ErrKind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}

func IsCancelled(err error) bool { return IsKind(err, KindCancelled) }
func IsNotFound(err error) bool  { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool  { return IsKind(err, KindConflict) }

// ErrNoEntryPoint fires when the HNSW entry-points registry has nothing
// to offer (spec.md §4.1, build-time edge case).
var ErrNoEntryPoint = NewServiceError(nil, "no entry point registered")
