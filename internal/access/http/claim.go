package http

import (
	"encoding/json"
	"net/http"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/service"
	"github.com/sgsgita/alumnigate/pkg/httpx"
)

type ClaimProfilesHandler struct {
	OnboardingService *service.OnboardingService
}

type claimProfilesRequest struct {
	AccountID string         `json:"account_id"`
	Claims    []profileClaim `json:"claims"`
}

type profileClaim struct {
	AlumniRecordID string `json:"alumni_record_id"`
	Relationship   string `json:"relationship"`
	BirthYear      *int   `json:"birth_year,omitempty"`
}

type claimOutcomeResponse struct {
	AlumniRecordID  string `json:"alumni_record_id"`
	ProfileID       string `json:"profile_id,omitempty"`
	AccessLevel     string `json:"access_level,omitempty"`
	Blocked         bool   `json:"blocked,omitempty"`
	ConsentRequired bool   `json:"consent_required,omitempty"`
}

func (h *ClaimProfilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req claimProfilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "Body must be valid JSON")
		return
	}

	claims := make([]service.ProfileClaim, 0, len(req.Claims))
	for _, c := range req.Claims {
		claims = append(claims, service.ProfileClaim{
			AlumniRecordID: c.AlumniRecordID,
			Relationship:   domain.Relationship(c.Relationship),
			BirthYear:      c.BirthYear,
		})
	}

	outcomes, err := h.OnboardingService.ClaimProfiles(ctx, req.AccountID, claims)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]claimOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		out := claimOutcomeResponse{
			AlumniRecordID:  o.AlumniRecordID,
			Blocked:         o.Blocked,
			ConsentRequired: o.ConsentRequired,
		}
		if o.Record != nil {
			out.ProfileID = o.Record.ID
			out.AccessLevel = string(o.Record.AccessLevel)
		}
		resp = append(resp, out)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"outcomes": resp})
}
