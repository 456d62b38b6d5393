package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/service"
	"github.com/sgsgita/alumnigate/pkg/httpx"
)

type consentAction int

const (
	consentActionGrant consentAction = iota
	consentActionRevoke
	consentActionRenew
)

// ConsentTransitionHandler serves grant, revoke and renew; the three bodies
// are identical apart from the code requirement, so one handler covers them.
type ConsentTransitionHandler struct {
	ConsentService *service.ConsentService
	Action         consentAction
}

type consentTransitionRequest struct {
	ParentProfileID string `json:"parent_profile_id"`
	ChildProfileID  string `json:"child_profile_id"`
	Code            string `json:"code,omitempty"`
}

type consentTransitionResponse struct {
	ChildProfileID   string `json:"child_profile_id"`
	AccessLevel      string `json:"access_level"`
	ConsentGiven     bool   `json:"consent_given"`
	ConsentExpiresAt string `json:"consent_expires_at,omitempty"`
}

func (h *ConsentTransitionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req consentTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Body must be valid JSON")
		return
	}

	ip := httpx.IPKeyExtractor(r)
	agent := r.UserAgent()

	var (
		rec domain.ProfileAccessRecord
		err error
	)
	switch h.Action {
	case consentActionGrant:
		rec, err = h.ConsentService.GrantConsent(ctx, req.ParentProfileID, req.ChildProfileID, req.Code, ip, agent)
	case consentActionRenew:
		rec, err = h.ConsentService.RenewConsent(ctx, req.ParentProfileID, req.ChildProfileID, req.Code, ip, agent)
	case consentActionRevoke:
		rec, err = h.ConsentService.RevokeConsent(ctx, req.ParentProfileID, req.ChildProfileID, ip, agent)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := consentTransitionResponse{
		ChildProfileID: rec.ID,
		AccessLevel:    string(rec.AccessLevel),
		ConsentGiven:   rec.ConsentGiven,
	}
	if rec.ConsentExpiresAt != nil {
		resp.ConsentExpiresAt = rec.ConsentExpiresAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// ConsentCodeHandler requests delivery of a fresh guardian consent code.
type ConsentCodeHandler struct {
	CodeService *service.VerificationService
}

type consentCodeRequest struct {
	ParentProfileID string `json:"parent_profile_id"`
	ChildProfileID  string `json:"child_profile_id"`
}

func (h *ConsentCodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req consentCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Body must be valid JSON")
		return
	}

	if err := h.CodeService.RequestCode(ctx, req.ParentProfileID, req.ChildProfileID); err != nil {
		writeServiceError(w, err)
		return
	}

	// 202: the code travels out of band.
	httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}
