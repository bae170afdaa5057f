// Package errors is the application error taxonomy. Every error carries a
// Kind, which fixes the wire code and the HTTP status it renders as.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is implemented by every error in this package
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// Kind pairs a stable error code with its HTTP status
type Kind struct {
	Code   string
	Status int
}

var (
	KindInvalidState = Kind{Code: "INVALID_STATE", Status: http.StatusConflict}
	KindStale        = Kind{Code: "STALE_STATE", Status: http.StatusConflict}
	KindNotFound     = Kind{Code: "NOT_FOUND", Status: http.StatusNotFound}
	KindValidation   = Kind{Code: "VALIDATION_ERROR", Status: http.StatusBadRequest}
	KindPermission   = Kind{Code: "PERMISSION_DENIED", Status: http.StatusForbidden}
	KindUnauthorized = Kind{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized}
	KindConflict     = Kind{Code: "CONFLICT", Status: http.StatusConflict}
	KindInternal     = Kind{Code: "INTERNAL_ERROR", Status: http.StatusInternalServerError}

	kindUnknown = Kind{Code: "UNKNOWN_ERROR", Status: http.StatusInternalServerError}
)

// classified supplies the AppError methods from a Kind.
type classified struct {
	kind Kind
}

func (c classified) HTTPStatus() int { return c.kind.Status }
func (c classified) Code() string    { return c.kind.Code }

// InvalidStateError rejects a transition the current status does not allow.
type InvalidStateError struct {
	classified
	Entity    string
	ID        string
	Current   string
	Requested string
}

func NewInvalidStateError(entity, id, current, requested string) *InvalidStateError {
	return &InvalidStateError{classified{KindInvalidState}, entity, id, current, requested}
}

func (e *InvalidStateError) Error() string {
	subject := e.Entity
	if e.ID != "" {
		subject = fmt.Sprintf("%s '%s'", e.Entity, e.ID)
	}
	return fmt.Sprintf("invalid state: cannot %s %s in status '%s'", e.Requested, subject, e.Current)
}

// StaleStateError goes to the loser of a compare-and-set on lock_version.
type StaleStateError struct {
	classified
	Entity          string
	ID              string
	ExpectedVersion int64
}

func NewStaleStateError(entity, id string, expectedVersion int64) *StaleStateError {
	return &StaleStateError{classified{KindStale}, entity, id, expectedVersion}
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("stale state: %s '%s' was modified concurrently (expected version %d)", e.Entity, e.ID, e.ExpectedVersion)
}

type NotFoundError struct {
	classified
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{classified{KindNotFound}, resource, id}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
}

type ValidationError struct {
	classified
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{classified{KindValidation}, field, message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// PermissionError names the action the caller was refused and, when known, the caller.
type PermissionError struct {
	classified
	Action   string
	Resource string
	UserID   string
}

func NewPermissionError(action, resource string) *PermissionError {
	return NewUserPermissionError("", action, resource)
}

func NewUserPermissionError(userID, action, resource string) *PermissionError {
	return &PermissionError{classified{KindPermission}, action, resource, userID}
}

func (e *PermissionError) Error() string {
	who := ""
	if e.UserID != "" {
		who = fmt.Sprintf("user '%s' ", e.UserID)
	}
	return fmt.Sprintf("permission denied: %scannot %s %s", who, e.Action, e.Resource)
}

type UnauthorizedError struct {
	classified
	Reason string
}

func NewUnauthorizedError(reason string) *UnauthorizedError {
	return &UnauthorizedError{classified{KindUnauthorized}, reason}
}

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

// ConflictError covers duplicate keys and operations blocked by dependent data.
type ConflictError struct {
	classified
	Resource string
	Field    string
	Value    string
	Message  string
}

func NewConflictError(resource, field, value string) *ConflictError {
	return &ConflictError{classified: classified{KindConflict}, Resource: resource, Field: field, Value: value}
}

func NewConflictErrorWithMessage(resource, message string) *ConflictError {
	return &ConflictError{classified: classified{KindConflict}, Resource: resource, Message: message}
}

func (e *ConflictError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
	case e.Field != "" && e.Value != "":
		return fmt.Sprintf("%s already exists with %s='%s'", e.Resource, e.Field, e.Value)
	default:
		return e.Resource + " already exists"
	}
}

// InternalError wraps driver and infrastructure failures.
type InternalError struct {
	classified
	Message string
	Cause   error
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{classified{KindInternal}, message, cause}
}

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return "internal error: " + e.Message
	}
	return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool { return is[*InvalidStateError](err) }
func IsStale(err error) bool        { return is[*StaleStateError](err) }
func IsNotFound(err error) bool     { return is[*NotFoundError](err) }
func IsValidation(err error) bool   { return is[*ValidationError](err) }
func IsPermission(err error) bool   { return is[*PermissionError](err) }
func IsUnauthorized(err error) bool { return is[*UnauthorizedError](err) }
func IsConflict(err error) bool     { return is[*ConflictError](err) }

// KindOf finds the Kind of the first AppError in err's chain. Plain errors
// classify as an unknown 500.
func KindOf(err error) Kind {
	var appErr AppError
	if errors.As(err, &appErr) {
		return Kind{Code: appErr.Code(), Status: appErr.HTTPStatus()}
	}
	return kindUnknown
}

func GetHTTPStatus(err error) int   { return KindOf(err).Status }
func GetErrorCode(err error) string { return KindOf(err).Code }

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func ToResponse(err error) ErrorResponse {
	return ErrorResponse{Code: GetErrorCode(err), Message: err.Error()}
}
