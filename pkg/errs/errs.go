// Package errs defines the coded error type returned by the ledger core.
// Each error carries a machine-readable code and the HTTP status the API
// layer should map it to.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Business error codes surfaced to callers.
const (
	CodeValidation          = "VALIDATION"
	CodeNotFound            = "NOT_FOUND"
	CodeExceedsPending      = "EXCEEDS_PENDING"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeLotAlreadyUsed      = "LOT_ALREADY_USED"
	CodeHasPayments         = "HAS_PAYMENTS"
	CodeAlreadyVoided       = "ALREADY_VOIDED"
	CodeLoanPendingApproval = "LOAN_PENDING_APPROVAL"
)

// Error is a coded business error. Details, when present, is a small map of
// values the caller needs to act on the error (e.g. available vs requested
// stock).
type Error struct {
	Code    string         `json:"code"`
	Status  int            `json:"-"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validation builds a 400 input error.
func Validation(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a 404 error for a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// Conflict builds a business-rule conflict error. Conflicts surface as 400:
// the request was well-formed but the current state forbids it.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// PendingApproval builds the 400 error for operating on an unapproved loan.
func PendingApproval(loanID string) *Error {
	return &Error{
		Code:    CodeLoanPendingApproval,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("loan %s is awaiting funding approval", loanID),
	}
}

// WithDetails attaches a details map and returns the same error.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// As extracts a coded error from err, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
