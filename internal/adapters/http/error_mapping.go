package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/docverify/internal/core/domain"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapErrorToHTTPStatus(err error) int {
	var backendErr *domain.BackendError
	switch {
	case domain.IsKind(err, domain.ErrMissingIdentity):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrOffline):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrDecode):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrCancelled):
		return http.StatusRequestTimeout
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.As(err, &backendErr):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrFatalTransport), domain.IsKind(err, domain.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// mapErrorToBody keeps the backend's own code for rejected submissions so
// callers can tell INVALID_FILE from FILE_TOO_LARGE.
func mapErrorToBody(err error) errorBody {
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) && !domain.IsKind(err, domain.ErrTemporary) {
		message := backendErr.Message
		if message == "" {
			message = err.Error()
		}
		return errorBody{Code: backendErr.Code, Message: message}
	}

	code := "INTERNAL"
	switch {
	case domain.IsKind(err, domain.ErrMissingIdentity):
		code = "MISSING_IDENTITY"
	case domain.IsKind(err, domain.ErrPayloadTooLarge):
		code = "PAYLOAD_TOO_LARGE"
	case domain.IsKind(err, domain.ErrOffline):
		code = "OFFLINE"
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrDecode):
		code = "INVALID_INPUT"
	case domain.IsKind(err, domain.ErrUnauthorized):
		code = "UNAUTHORIZED"
	case domain.IsKind(err, domain.ErrNotFound):
		code = "NOT_FOUND"
	case domain.IsKind(err, domain.ErrCancelled):
		code = "CANCELLED"
	case domain.IsKind(err, domain.ErrTimeout):
		code = "TIMEOUT"
	case domain.IsKind(err, domain.ErrTemporary):
		code = "TEMPORARY_FAILURE"
	case domain.IsKind(err, domain.ErrMalformedResponse):
		code = "MALFORMED_RESPONSE"
	case domain.IsKind(err, domain.ErrFatalTransport):
		code = "UPLOAD_FAILED"
	}
	return errorBody{Code: code, Message: err.Error()}
}
