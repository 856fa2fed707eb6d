package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	AuthcoreErrorBadInput       = "AUTHCORE_BAD_INPUT"
	AuthcoreErrorNotConfigured  = "AUTHCORE_NOT_CONFIGURED"
	AuthcoreErrorConflict       = "AUTHCORE_CONFLICT"
	AuthcoreErrorServiceFailure = "AUTHCORE_SERVICE_FAILURE"
	AuthcoreErrorCancelled      = "AUTHCORE_CANCELLED"
	AuthcoreErrorInternal       = "AUTHCORE_INTERNAL_ERROR"
)

// authcoreErrorMapper converts wiring and configuration errors into rich
// errors with a stable text code and HTTP status.
func authcoreErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureAuthcoreErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not configured"):
		return newAuthcoreError(err, goerrors.CategoryInternal, AuthcoreErrorNotConfigured)
	case strings.Contains(msg, "in progress"):
		return newAuthcoreError(err, goerrors.CategoryConflict, AuthcoreErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return newAuthcoreError(err, goerrors.CategoryBadInput, AuthcoreErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureAuthcoreErrorEnvelope(mapped)
}

// newAuthcoreError keeps err as the source so errors.Is still matches
// sentinels such as ErrClientNotConfigured.
func newAuthcoreError(err error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureAuthcoreErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithTextCode(textCode),
	)
}

func ensureAuthcoreErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	// Service faults carry the identity service status, including 0.
	if err.Code == 0 && err.Category != goerrors.CategoryExternal {
		err.Code = authcoreHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultAuthcoreTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultAuthcoreTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return AuthcoreErrorBadInput
	case goerrors.CategoryConflict:
		return AuthcoreErrorConflict
	case goerrors.CategoryExternal:
		return AuthcoreErrorServiceFailure
	case CategoryCancelled:
		return AuthcoreErrorCancelled
	default:
		return AuthcoreErrorInternal
	}
}

func authcoreHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// MapError exposes the default mapper for adapters that surface core errors.
func MapError(err error) *goerrors.Error {
	return authcoreErrorMapper(err)
}
