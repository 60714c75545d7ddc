package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes surfaced to callers.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeInvalidCategory   = "INVALID_CATEGORY"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidState      = "INVALID_STATE"
	CodeInvalidPriority   = "INVALID_PRIORITY"
	CodeNotFound          = "NOT_FOUND"
	CodeNoAgentAvailable  = "NO_AGENT_AVAILABLE"
	CodeConflict          = "CONFLICT"
	CodeStoreUnavailable  = "STORE_UNAVAILABLE"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks; they match any DomainError with the same code.
var (
	ErrValidation        = &DomainError{Code: CodeValidation}
	ErrInvalidCategory   = &DomainError{Code: CodeInvalidCategory}
	ErrInvalidTransition = &DomainError{Code: CodeInvalidTransition}
	ErrInvalidState      = &DomainError{Code: CodeInvalidState}
	ErrInvalidPriority   = &DomainError{Code: CodeInvalidPriority}
	ErrNotFound          = &DomainError{Code: CodeNotFound}
	ErrNoAgentAvailable  = &DomainError{Code: CodeNoAgentAvailable}
	ErrConflict          = &DomainError{Code: CodeConflict}
	ErrStoreUnavailable  = &DomainError{Code: CodeStoreUnavailable}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return strings.ToLower(e.Code)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidCategory lists the accepted categories in both message and details.
func NewInvalidCategory(category string, valid []string) error {
	return NewDomainError(CodeInvalidCategory,
		fmt.Sprintf("invalid category %q. Valid categories: %s", category, strings.Join(valid, ", ")),
		http.StatusBadRequest,
		map[string]any{"category": category, "valid_categories": valid})
}

// NewInvalidTransition lists the states reachable from the current one.
func NewInvalidTransition(from, to string, allowed []string) error {
	if allowed == nil {
		allowed = []string{}
	}
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("invalid transition from %s to %s. Allowed: [%s]", from, to, strings.Join(allowed, ", ")),
		http.StatusBadRequest,
		map[string]any{"from": from, "to": to, "allowed": allowed})
}

func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidState, message, http.StatusBadRequest, details)
}

func NewInvalidPriority(priority string, valid []string) error {
	return NewDomainError(CodeInvalidPriority,
		fmt.Sprintf("invalid priority %q. Valid priorities: %s", priority, strings.Join(valid, ", ")),
		http.StatusBadRequest,
		map[string]any{"priority": priority, "valid_priorities": valid})
}

func NewNoAgentAvailable(message string, details map[string]any) error {
	return NewDomainError(CodeNoAgentAvailable, message, http.StatusNotFound, details)
}

// NewStoreUnavailable wraps a failed primary write or read against the store.
func NewStoreUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.HTTPStatus == 0 {
			clone := *domainErr
			clone.HTTPStatus = http.StatusInternalServerError
			return &clone
		}
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// KeepDomain returns err unchanged when it already carries a domain code and
// otherwise wraps it as a store failure.
func KeepDomain(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return NewStoreUnavailable(err)
}
