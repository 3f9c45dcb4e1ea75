package ledger

import (
	"fmt"
	"strings"
)

// Reason labels a certification or verification outcome.
type Reason string

// Certification failures.
const (
	ReasonInvalidFingerprint Reason = "INVALID_FINGERPRINT"
	ReasonInsufficientFunds  Reason = "INSUFFICIENT_FUNDS"
	ReasonSubmissionFailed   Reason = "SUBMISSION_FAILED"
)

// Verification outcomes other than success.
const (
	ReasonTransactionNotFound  Reason = "TRANSACTION_NOT_FOUND"
	ReasonNoMemoFound          Reason = "NO_MEMO_FOUND"
	ReasonInvalidMemoFormat    Reason = "INVALID_MEMO_FORMAT"
	ReasonVerificationError    Reason = "VERIFICATION_ERROR"
	ReasonHashMismatch         Reason = "HASH_MISMATCH"
	ReasonInvalidTransactionID Reason = "INVALID_TRANSACTION_ID"
)

// Error is a labelled certification failure.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var insufficientFundsMarkers = []string{
	"insufficient funds",
	"insufficient lamports",
	"no record of a prior credit",
}

// classifySubmitError maps a Submit error to a labelled Error.
func classifySubmitError(err error) *Error {
	msg := strings.ToLower(err.Error())
	for _, marker := range insufficientFundsMarkers {
		if strings.Contains(msg, marker) {
			return &Error{Reason: ReasonInsufficientFunds, Err: err}
		}
	}
	return &Error{Reason: ReasonSubmissionFailed, Err: err}
}
