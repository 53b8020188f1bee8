// Package gatewayerr provides the structured error taxonomy every pipeline
// node uses instead of throwing across node boundaries (SPEC_FULL.md §7).
// It is modeled directly on the teacher's infrastructure/errors package:
// a Code enum grouped by category, a single Error struct carrying an HTTP
// status and optional structured details, and constructor functions per
// category.
package gatewayerr

import "fmt"

// Code enumerates the error kinds named exhaustively by spec §7.
type Code string

const (
	ValidationEmpty         Code = "validation_empty"
	ValidationTooLong       Code = "validation_too_long"
	ValidationSQLRejected   Code = "validation_sql_rejected"
	InjectionBlocked        Code = "injection_blocked"
	SchemaUnavailable       Code = "schema_unavailable"
	LLMUnavailable          Code = "llm_unavailable"
	LLMEmpty                Code = "llm_empty"
	ClarificationNeeded     Code = "clarification_needed"
	InvalidIdentifiers      Code = "invalid_identifiers"
	DialectConversionFailed Code = "dialect_conversion_failed"
	CostBlocked             Code = "cost_blocked"
	QuotaExceeded           Code = "quota_exceeded"
	ApprovalRequired        Code = "approval_required"
	ApprovalDuplicate       Code = "approval_duplicate"
	ApprovalForbidden       Code = "approval_forbidden"
	ExecutionTimeout        Code = "execution_timeout"
	ExecutionError          Code = "execution_error"
	BreakerOpen             Code = "breaker_open"
	Cancelled               Code = "cancelled"
	IterationLimit          Code = "iteration_limit"
	Unauthorized            Code = "unauthorized"
	NotFound                Code = "not_found"
)

// httpStatus maps each code to the HTTP status spec §6 assigns it.
var httpStatus = map[Code]int{
	ValidationEmpty:         400,
	ValidationTooLong:       400,
	ValidationSQLRejected:   400,
	InjectionBlocked:        400,
	SchemaUnavailable:       503,
	LLMUnavailable:          503,
	LLMEmpty:                502,
	ClarificationNeeded:     200,
	InvalidIdentifiers:      400,
	DialectConversionFailed: 400,
	CostBlocked:             400,
	QuotaExceeded:           429,
	ApprovalRequired:        200,
	ApprovalDuplicate:       409,
	ApprovalForbidden:       403,
	ExecutionTimeout:        504,
	ExecutionError:          500,
	BreakerOpen:             503,
	Cancelled:               499,
	IterationLimit:          400,
	Unauthorized:            401,
	NotFound:                404,
}

// Error is the single structured error type every pipeline node returns.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches a structured detail and returns the same error for chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New constructs an Error for the given code, looking up its default HTTP status.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus[code]}
}

// Wrap constructs an Error that chains an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus[code], Err: err}
}

// StatusFor returns the HTTP status code associated with a Code.
func StatusFor(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return 500
}

// As extracts a *Error from a generic error, if it is one.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// GetHTTPStatus returns the HTTP status for any error, defaulting to 500 for
// errors that are not a *Error.
func GetHTTPStatus(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus
	}
	return 500
}
