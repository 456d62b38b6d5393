package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/sgsgita/alumnigate/internal/access/service"
	"github.com/sgsgita/alumnigate/pkg/httpx"
	"github.com/sgsgita/alumnigate/pkg/tokenx"
)

// writeServiceError maps the service error taxonomy onto the wire. Token
// failures collapse into one response: a caller probing the endpoint learns
// nothing about why their token was rejected.
func writeServiceError(w http.ResponseWriter, err error) {
	var rle *service.RateLimitError
	if errors.As(err, &rle) {
		if secs := int(rle.RetryAfter.Seconds()); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		httpx.WriteError(w, http.StatusTooManyRequests,
			"rate_limited", "Too many requests, slow down")
		return
	}

	switch {
	case errors.Is(err, tokenx.ErrMalformedToken),
		errors.Is(err, tokenx.ErrInvalidSignature),
		errors.Is(err, tokenx.ErrTokenExpired),
		errors.Is(err, service.ErrInvitationNotFound),
		errors.Is(err, service.ErrInvitationEmailMismatch):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_token", "Invitation token is invalid or expired")
	case errors.Is(err, service.ErrInvitationAccepted):
		httpx.WriteError(w, http.StatusConflict,
			"already_accepted", "Invitation has already been accepted")
	case errors.Is(err, service.ErrInvalidRequest):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Request is missing required fields")
	case errors.Is(err, service.ErrProfileNotFound):
		httpx.WriteError(w, http.StatusNotFound,
			"not_found", "Profile record not found")
	case errors.Is(err, service.ErrNotChildProfile):
		httpx.WriteError(w, http.StatusBadRequest,
			"not_supervised", "Profile does not require guardian consent")
	case errors.Is(err, service.ErrInvalidConsentCode):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_code", "Consent code is invalid or expired")
	case errors.Is(err, service.ErrConsentNotGiven):
		httpx.WriteError(w, http.StatusConflict,
			"consent_not_given", "Consent was never granted for this profile")
	case errors.Is(err, service.ErrConsentRequired):
		httpx.WriteError(w, http.StatusForbidden,
			"consent_required", "Guardian consent is required")
	case errors.Is(err, service.ErrProfileBlocked):
		httpx.WriteError(w, http.StatusForbidden,
			"blocked", "Profile is blocked")
	default:
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Something went wrong")
	}
}
