package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/threshold-secret-registry/interfaces"
)

var (
	// ErrMissingSignature is returned for mutating requests without SignatureHeader.
	ErrMissingSignature = errors.New("missing request signature")

	// ErrBadSignature is returned when SignatureHeader does not verify.
	ErrBadSignature = errors.New("invalid request signature")
)

// StatusFor maps a registry error to an HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, ErrMissingSignature) || errors.Is(err, ErrBadSignature) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, interfaces.ErrUnknownSecret) {
		return http.StatusNotFound
	}
	switch interfaces.KindOf(err) {
	case interfaces.KindValidation:
		return http.StatusBadRequest
	case interfaces.KindAuthorization:
		return http.StatusForbidden
	case interfaces.KindState:
		return http.StatusConflict
	case interfaces.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the response body for err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    interfaces.CodeOf(err),
		Kind:    interfaces.KindOf(err),
		Message: err.Error(),
	}
}

// Err maps a decoded error response back to an error. Known codes yield the
// registry sentinel so errors.Is works across the wire.
func (e ErrorResponse) Err(status int) error {
	if sentinel, ok := interfaces.RegistryErrors[e.Code]; ok {
		if e.Message == "" || e.Message == sentinel.Code {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, e.Message)
	}
	if status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrBadSignature, e.Message)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: server returned %d: %s", interfaces.ErrLedgerUnavailable, status, e.Message)
	}
	return fmt.Errorf("request failed with status %d: %s", status, e.Message)
}
