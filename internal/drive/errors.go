package drive

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// Kind tags a remote error with how the pipeline must treat it. The kind
// is determined once, where the remote call is made, not re-inspected ad
// hoc at each call site.
type Kind int

const (
	// KindRetryable covers rate limiting, 5xx responses and transient
	// network faults; retried with exponential backoff.
	KindRetryable Kind = iota + 1

	// KindQuotaExceeded pauses the whole job instead of burning the
	// item's retry budget.
	KindQuotaExceeded

	// KindNotFound is a missing remote object.
	KindNotFound

	// KindValidation covers everything the caller got wrong; never
	// retried.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified remote error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("drive %s (%s): %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("drive %s (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error directly. Used by both the Google
// client and test fakes.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func isKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// IsRetryable reports whether err rates another attempt.
func IsRetryable(err error) bool {
	return isKind(err, KindRetryable)
}

// IsQuotaExceeded reports whether err is the destination byte quota.
func IsQuotaExceeded(err error) bool {
	return isKind(err, KindQuotaExceeded)
}

// IsNotFound reports whether the remote object does not exist.
func IsNotFound(err error) bool {
	return isKind(err, KindNotFound)
}

// quotaReasons are the googleapi reasons that mean the account cannot
// accept more bytes today, as opposed to being merely rate limited.
var quotaReasons = map[string]bool{
	"storageQuotaExceeded":       true,
	"quotaExceeded":              true,
	"dailyLimitExceeded":         true,
	"teamDriveFileLimitExceeded": true,
}

var rateReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// classify maps a raw SDK error onto the taxonomy. Unrecognized errors
// pass through wrapped but unclassified, which callers treat as
// non-retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 404:
			return NewError(KindNotFound, op, err)
		case gerr.Code >= 500 && gerr.Code < 600:
			return NewError(KindRetryable, op, err)
		case gerr.Code == 429:
			return NewError(KindRetryable, op, err)
		case gerr.Code == 403:
			for _, item := range gerr.Errors {
				if rateReasons[item.Reason] {
					return NewError(KindRetryable, op, err)
				}
				if quotaReasons[item.Reason] {
					return NewError(KindQuotaExceeded, op, err)
				}
			}
			return NewError(KindValidation, op, err)
		case gerr.Code >= 400 && gerr.Code < 500:
			return NewError(KindValidation, op, err)
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) {
		return NewError(KindRetryable, op, err)
	}

	return fmt.Errorf("drive %s: %w", op, err)
}
