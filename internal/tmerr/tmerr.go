// Package tmerr provides the unified error type for the fleet manager.
//
// Every error condition the manager can raise is represented by *Error, which
// carries a machine-readable Code plus enough context to translate to either
// an HTTP status or a gRPC status at a request boundary.
package tmerr

import (
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies a category of error.
type Code string

const (
	CodeInstanceNotFound      Code = "INSTANCE_NOT_FOUND"
	CodeInstanceExists        Code = "INSTANCE_EXISTS"
	CodePortConflict          Code = "PORT_CONFLICT"
	CodeMaxInstancesReached   Code = "MAX_INSTANCES_REACHED"
	CodeInvalidInstanceState  Code = "INVALID_INSTANCE_STATE"
	CodeInvalidConfig         Code = "INVALID_CONFIG"
	CodeInvalidPort           Code = "INVALID_PORT"
	CodeInvalidGPUID          Code = "INVALID_GPU_ID"
	CodeInvalidInstanceName   Code = "INVALID_INSTANCE_NAME"
	CodePortAllocationFailed  Code = "PORT_ALLOCATION_FAILED"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
	CodeForbidden             Code = "FORBIDDEN"
	CodeValidationError       Code = "VALIDATION_ERROR"
	CodeMissingField          Code = "MISSING_FIELD"
	CodeBackendUnavailable    Code = "BACKEND_UNAVAILABLE"
	CodeTimeout               Code = "TIMEOUT"
	CodeInternal              Code = "INTERNAL_ERROR"
	CodeIOError               Code = "IO_ERROR"
	CodeUnimplemented         Code = "UNIMPLEMENTED"
)

// Error is the unified error type for manager operations. Each Code maps to
// exactly one HTTP status and one gRPC status via ToHTTPStatus/ToGRPCStatus.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithContext attaches a diagnostic key/value pair, returned for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches the underlying error, returned for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Constructors mirroring the original TeiError variant set.

func InstanceNotFound(name string) *Error {
	return New(CodeInstanceNotFound, fmt.Sprintf("instance %q not found", name)).WithContext("name", name)
}

func InstanceExists(name string) *Error {
	return New(CodeInstanceExists, fmt.Sprintf("instance %q already exists", name)).WithContext("name", name)
}

func PortConflict(port uint16, instance string) *Error {
	return New(CodePortConflict, fmt.Sprintf("port %d already in use by instance %q", port, instance)).
		WithContext("port", port).WithContext("instance", instance)
}

func MaxInstancesReached(max int) *Error {
	return New(CodeMaxInstancesReached, fmt.Sprintf("maximum instance count (%d) reached", max)).
		WithContext("max", max)
}

func InvalidInstanceState(name, current, expected string) *Error {
	return New(CodeInvalidInstanceState, fmt.Sprintf("instance %q is %s, expected %s", name, current, expected)).
		WithContext("name", name).WithContext("current_state", current).WithContext("expected_state", expected)
}

func InvalidConfig(message string) *Error {
	return New(CodeInvalidConfig, fmt.Sprintf("invalid configuration: %s", message))
}

func InvalidPort(port uint16, reason string) *Error {
	return New(CodeInvalidPort, fmt.Sprintf("port %d is invalid: %s", port, reason)).WithContext("port", port)
}

func InvalidGPUID(id uint32, reason string) *Error {
	return New(CodeInvalidGPUID, fmt.Sprintf("invalid gpu id %d: %s", id, reason)).WithContext("gpu_id", id)
}

func InvalidInstanceName(name, reason string) *Error {
	return New(CodeInvalidInstanceName, fmt.Sprintf("invalid instance name %q: %s", name, reason)).WithContext("name", name)
}

func PortAllocationFailed(reason string) *Error {
	return New(CodePortAllocationFailed, fmt.Sprintf("failed to allocate port: %s", reason))
}

func Unauthenticated(reason string) *Error {
	return New(CodeUnauthenticated, fmt.Sprintf("authentication required: %s", reason))
}

func Forbidden(reason string) *Error {
	return New(CodeForbidden, fmt.Sprintf("access denied: %s", reason))
}

func ValidationError(message string) *Error {
	return New(CodeValidationError, fmt.Sprintf("validation error: %s", message))
}

func MissingField(field string) *Error {
	return New(CodeMissingField, fmt.Sprintf("missing required field: %s", field)).WithContext("field", field)
}

func BackendUnavailable(message string) *Error {
	return New(CodeBackendUnavailable, fmt.Sprintf("backend unavailable: %s", message))
}

func Timeout(message string) *Error {
	return New(CodeTimeout, fmt.Sprintf("request timeout: %s", message))
}

func Internal(message string) *Error {
	return New(CodeInternal, fmt.Sprintf("internal error: %s", message))
}

func IOError(message string) *Error {
	return New(CodeIOError, fmt.Sprintf("i/o error: %s", message))
}

func Unimplemented(message string) *Error {
	return New(CodeUnimplemented, message)
}

// ToHTTPStatus maps an Error's Code to an HTTP status code.
func ToHTTPStatus(err *Error) int {
	switch err.Code {
	case CodeInstanceNotFound:
		return http.StatusNotFound
	case CodeInstanceExists, CodePortConflict:
		return http.StatusConflict
	case CodeInvalidConfig, CodeInvalidPort, CodeInvalidGPUID, CodeInvalidInstanceName,
		CodeValidationError, CodeMissingField, CodeInvalidInstanceState:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMaxInstancesReached, CodePortAllocationFailed:
		return http.StatusUnprocessableEntity
	case CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ToGRPCStatus maps an Error to a gRPC status, preserving the message.
func ToGRPCStatus(err *Error) *status.Status {
	var c codes.Code
	switch err.Code {
	case CodeInstanceNotFound:
		c = codes.NotFound
	case CodeInstanceExists:
		c = codes.AlreadyExists
	case CodePortConflict:
		c = codes.FailedPrecondition
	case CodeInvalidConfig, CodeInvalidPort, CodeInvalidGPUID, CodeInvalidInstanceName,
		CodeValidationError, CodeMissingField, CodeInvalidInstanceState:
		c = codes.InvalidArgument
	case CodeUnauthenticated:
		c = codes.Unauthenticated
	case CodeForbidden:
		c = codes.PermissionDenied
	case CodeMaxInstancesReached, CodePortAllocationFailed:
		c = codes.ResourceExhausted
	case CodeBackendUnavailable:
		c = codes.Unavailable
	case CodeTimeout:
		c = codes.DeadlineExceeded
	case CodeUnimplemented:
		c = codes.Unimplemented
	default:
		c = codes.Internal
	}
	return status.New(c, err.Message)
}

// As extracts an *Error from err, if it is one.
func As(err error) (*Error, bool) {
	te, ok := err.(*Error)
	return te, ok
}
