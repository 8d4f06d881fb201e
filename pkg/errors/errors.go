package errors

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrorCode classifies an AppError for programmatic handling.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	CodeConflict       ErrorCode = "CONFLICT"
	CodeUnavailable    ErrorCode = "UNAVAILABLE"
	CodeCorruptState   ErrorCode = "CORRUPT_STATE"
	CodeTimeout        ErrorCode = "TIMEOUT"
)

// AppError is a typed error carrying a Code plus an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

func NewAlreadyExistsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyExists, Message: message}
}

func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

// NewConflictError signals a precondition violation such as a stale plan
// hash or a forge run that is already in flight.
func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

// NewUnavailableError signals a runtime adapter or external dependency is
// temporarily unable to serve a request (circuit open, process spawn
// failure).
func NewUnavailableError(message string, cause error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Err: cause}
}

// NewCorruptStateError signals that on-disk state failed validation
// (plan header, tag map, inflight mirror) and could not be repaired.
func NewCorruptStateError(message string, cause error) *AppError {
	return &AppError{Code: CodeCorruptState, Message: message, Err: cause}
}

func NewTimeoutError(message string) *AppError {
	return &AppError{Code: CodeTimeout, Message: message}
}

// RuntimeError wraps a failure surfaced by a RuntimeAdapter, keeping the
// adapter name and exit code for logging and circuit-breaker accounting.
type RuntimeError struct {
	Adapter  string
	ExitCode int
	Err      error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s exited %d: %v", e.Adapter, e.ExitCode, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// ToolGateError reports an action rejected by the allowlist or policy gate.
type ToolGateError struct {
	ActionType string
	Reason     string
}

func (e *ToolGateError) Error() string {
	return fmt.Sprintf("action %q rejected: %s", e.ActionType, e.Reason)
}

var toolGateErrorRe = regexp.MustCompile(`^action "(.*)" rejected: (.*)$`)

// ParseToolGateError recovers a ToolGateError from its own Error() text.
// Runtime adapters that carry events across a channel boundary (e.g.
// BlockingInvoker's drained EngineEvent stream) lose the concrete Go
// type; this lets a caller that only has the rendered message recover it.
func ParseToolGateError(msg string) (*ToolGateError, bool) {
	m := toolGateErrorRe.FindStringSubmatch(msg)
	if m == nil {
		return nil, false
	}
	return &ToolGateError{ActionType: m[1], Reason: m[2]}, true
}

// ConcurrentForgeError reports a forge request rejected because a run is
// already active for the same target.
type ConcurrentForgeError struct {
	TargetKey string
}

func (e *ConcurrentForgeError) Error() string {
	return fmt.Sprintf("forge already running for %q", e.TargetKey)
}

// StalePlanError reports a plan operation rejected because the plan's
// content hash no longer matches the on-disk file.
type StalePlanError struct {
	PlanID       string
	ExpectedHash string
	ActualHash   string
}

func (e *StalePlanError) Error() string {
	return fmt.Sprintf("plan %s is stale: expected hash %s, found %s", e.PlanID, e.ExpectedHash, e.ActualHash)
}

// RetryBlockedError reports a phase retry rejected because the phase was
// never marked failed with recorded modified_files/failure_hashes.
type RetryBlockedError struct {
	PlanID  string
	PhaseID string
}

func (e *RetryBlockedError) Error() string {
	return fmt.Sprintf("phase %s of plan %s cannot be retried: no failure record", e.PhaseID, e.PlanID)
}

// DiscordError wraps a chat-service API failure, keeping the provider's
// numeric error code for rate-limit and permission handling.
type DiscordError struct {
	Code    int
	Message string
}

func (e *DiscordError) Error() string {
	return fmt.Sprintf("discord error %d: %s", e.Code, e.Message)
}

func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeInvalidInput
	}
	return false
}

func IsConflict(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeConflict
	}
	return false
}

func IsCorruptState(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeCorruptState
	}
	return false
}

func IsUnavailable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeUnavailable
	}
	return false
}
