package http

import (
	"encoding/json"
	"net/http"

	"github.com/sgsgita/alumnigate/internal/access/service"
	"github.com/sgsgita/alumnigate/pkg/httpx"
)

type InvitationAcceptHandler struct {
	InvitationService *service.InvitationService
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type acceptInvitationResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// ServeHTTP redeems an invitation token, creating the account when the email
// is new. The shared limiter inside the service keys on the client IP, so the
// same budget applies across every instance behind the load balancer.
func (h *InvitationAcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req acceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Body must be valid JSON")
		return
	}
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "token is required")
		return
	}

	account, err := h.InvitationService.AcceptInvitation(ctx, req.Token, req.Password, httpx.IPKeyExtractor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, acceptInvitationResponse{
		AccountID: account.ID,
		Email:     account.Email,
	})
}
