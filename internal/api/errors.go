package api

import (
	"errors"
	"net/http"

	"github.com/org/servercatalog/internal/auth"
	"github.com/org/servercatalog/internal/catalog"
	"github.com/org/servercatalog/internal/integrity"
	"github.com/org/servercatalog/internal/policy"
	"github.com/org/servercatalog/internal/validation"
	"github.com/org/servercatalog/internal/webhook"
)

// Error kinds returned in the "error" field of every failure body.
const (
	KindMissingCredential    = "MISSING_CREDENTIAL"
	KindInvalidCredential    = "INVALID_CREDENTIAL"
	KindIncompletePayload    = "INCOMPLETE_PAYLOAD"
	KindUnauthenticated      = "UNAUTHENTICATED"
	KindForbidden            = "FORBIDDEN"
	KindValidation           = "VALIDATION_ERROR"
	KindRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	KindThreatDetected       = "THREAT_DETECTED"
	KindIntegrityFailure     = "INTEGRITY_FAILURE"
	KindNotFound             = "NOT_FOUND"
	KindInternal             = "INTERNAL_ERROR"
	KindContentTypeRequired  = "CONTENT_TYPE_REQUIRED"
	KindUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	KindPayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	KindURLRejected          = "URL_REJECTED"
)

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: kind, Message: msg})
}

func writeValidation(w http.ResponseWriter, details []string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Error:   KindValidation,
		Message: "Invalid input data",
		Details: details,
	})
}

// statusOf maps a domain error to its HTTP status, kind and client message.
// Unknown errors are internal and their text is not exposed.
func statusOf(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return http.StatusUnauthorized, KindMissingCredential, "Access token required"
	case errors.Is(err, auth.ErrIncompletePayload):
		return http.StatusForbidden, KindIncompletePayload, "Token payload is incomplete"
	case errors.Is(err, auth.ErrInvalidCredential):
		return http.StatusForbidden, KindInvalidCredential, "Invalid or expired token"
	case errors.Is(err, policy.ErrUnauthenticated):
		return http.StatusUnauthorized, KindUnauthenticated, "Authentication required"
	case errors.Is(err, policy.ErrForbidden):
		return http.StatusForbidden, KindForbidden, "Insufficient permissions"
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound, KindNotFound, "Product not found"
	case errors.Is(err, catalog.ErrInvalidProduct), errors.Is(err, validation.ErrInvalidID):
		return http.StatusBadRequest, KindValidation, err.Error()
	case errors.Is(err, integrity.ErrSignatureInvalid), errors.Is(err, integrity.ErrExpired),
		errors.Is(err, integrity.ErrFutureTimestamp):
		return http.StatusBadRequest, KindIntegrityFailure, "Data integrity check failed"
	case errors.Is(err, webhook.ErrURLRejected):
		return http.StatusBadRequest, KindURLRejected, "Webhook URL is not allowed"
	default:
		return http.StatusInternalServerError, KindInternal, "Internal server error"
	}
}

// fail writes the mapped error body for err.
func fail(w http.ResponseWriter, err error) {
	code, kind, msg := statusOf(err)
	writeError(w, code, kind, msg)
}
