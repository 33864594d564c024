package common

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyProcessed means a nonce was settled by another path. Evidence
	// the work is done, not a failure.
	ErrAlreadyProcessed = errors.New("nonce already processed")

	// ErrDuplicateApproval means a validator voted twice for the same request.
	ErrDuplicateApproval = errors.New("duplicate approval")

	// ErrClaimConflict means an approval carried a claim different from the
	// stored one. The first claim stays authoritative.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrRequestExecuted means the request already passed the execution
	// test-and-set.
	ErrRequestExecuted = errors.New("request already executed")

	// ErrSubmitIndeterminate means a submission was broadcast but its fate is
	// unknown. Callers must re-check status before retrying.
	ErrSubmitIndeterminate = errors.New("submission outcome indeterminate")
)

// RejectionError is a permanent destination-side rejection. Never retried.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("submission rejected: %s", e.Reason)
}

func IsConflictErr(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrDuplicateApproval) ||
		errors.Is(err, ErrClaimConflict) ||
		errors.Is(err, ErrRequestExecuted)
}

// IsTransientError reports whether err should be retried with backoff.
// Conflicts, rejections, indeterminate outcomes and context cancellation
// all have their own handling.
func IsTransientError(err error) bool {
	var rejection *RejectionError

	return err != nil &&
		!errors.As(err, &rejection) &&
		!errors.Is(err, ErrSubmitIndeterminate) &&
		!IsConflictErr(err) &&
		!IsContextDoneErr(err)
}
