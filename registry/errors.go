package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"package-registry/orm"
	"package-registry/publish"
	"package-registry/reference"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// Static errors to avoid err113 violations
	ErrPublisherNil = errors.New("publisher is nil")
	ErrDatabaseDown = errors.New("database is unreachable")
)

// ServiceError represents public-facing errors from the registry service
type ServiceError struct {
	Code    codes.Code
	Message string
	Inner   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Inner
}

func (e *ServiceError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// HTTPStatus maps the status code to its HTTP counterpart
func (e *ServiceError) HTTPStatus() int {
	switch e.Code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable, codes.Canceled:
		return http.StatusServiceUnavailable
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// wrapServiceError converts internal errors to user-friendly service errors
func wrapServiceError(err error, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	if errors.Is(err, reference.ErrInvalidFormat) ||
		errors.Is(err, reference.ErrMissingNamespace) ||
		errors.Is(err, reference.ErrMissingRepoOrTag) {
		return &ServiceError{
			Code:    codes.InvalidArgument,
			Message: "Invalid package reference for " + operation + ": " + err.Error(),
			Inner:   err,
		}
	}

	var validationErr *publish.ValidationError
	if errors.As(err, &validationErr) {
		return &ServiceError{
			Code:    codes.InvalidArgument,
			Message: "Invalid package descriptor for " + operation + ": " + validationErr.Error(),
			Inner:   err,
		}
	}

	var badInputErr *orm.BadInputError
	if errors.As(err, &badInputErr) {
		return &ServiceError{
			Code:    codes.InvalidArgument,
			Message: "Invalid input for " + operation + ": " + badInputErr.Reason,
			Inner:   err,
		}
	}

	var notFoundErr *orm.NotFoundError
	if errors.As(err, &notFoundErr) || errors.Is(err, ErrBlobNotFound) {
		return &ServiceError{
			Code:    codes.NotFound,
			Message: "Package not found for " + operation,
			Inner:   err,
		}
	}

	var conflictErr *orm.ConflictError
	if errors.As(err, &conflictErr) {
		return &ServiceError{
			Code:    codes.AlreadyExists,
			Message: "Package already exists for " + operation,
			Inner:   err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{
			Code:    codes.DeadlineExceeded,
			Message: "Timed out during " + operation,
			Inner:   err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &ServiceError{
			Code:    codes.Canceled,
			Message: "Request cancelled during " + operation,
			Inner:   err,
		}
	}

	// Storage and generic errors
	return &ServiceError{
		Code:    codes.Internal,
		Message: "Internal server error during " + operation,
		Inner:   err,
	}
}

func newBadRequestError(message string, inner error) *ServiceError {
	return &ServiceError{
		Code:    codes.InvalidArgument,
		Message: message,
		Inner:   inner,
	}
}

func newUnavailableError(operation string, inner error) *ServiceError {
	return &ServiceError{
		Code:    codes.Unavailable,
		Message: "Registry service unavailable for " + operation,
		Inner:   inner,
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// writeError logs err and renders it as a JSON error body
func writeError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	serviceErr := wrapServiceError(err, operation)
	httpStatus := serviceErr.HTTPStatus()

	event := log.Warn()
	if httpStatus >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Err(serviceErr.Inner).
		Str("operation", operation).
		Str("path", r.URL.Path).
		Str("code", serviceErr.Code.String()).
		Msg("Request failed")

	writeJSON(w, httpStatus, errorBody{
		Error: errorDetail{
			Message: serviceErr.Message,
			Status:  serviceErr.Code.String(),
		},
	})
}

func writeJSON(w http.ResponseWriter, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
