package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/service"
	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/pkg/httpx"
	"github.com/sgsgita/alumnigate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	InvitationService *service.InvitationService
	OnboardingService *service.OnboardingService
	ConsentService    *service.ConsentService
	CodeService       *service.VerificationService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerInvitations()
	r.registerOnboarding()
	r.registerConsent()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerInvitations() {
	accept := &InvitationAcceptHandler{InvitationService: r.InvitationService}
	r.Mux.Handle("POST /v1/invitations/accept",
		httpx.Chain(accept,
			httpx.LocalRateLimitByIP(httpx.StrictLocalLimit),
		),
	)
}

func (r *Router) registerOnboarding() {
	claims := &ClaimProfilesHandler{OnboardingService: r.OnboardingService}
	r.Mux.Handle("POST /v1/onboarding/claims",
		httpx.Chain(claims,
			httpx.LocalRateLimitByIP(httpx.StrictLocalLimit),
		),
	)
}

func (r *Router) registerConsent() {
	grant := &ConsentTransitionHandler{ConsentService: r.ConsentService, Action: consentActionGrant}
	revoke := &ConsentTransitionHandler{ConsentService: r.ConsentService, Action: consentActionRevoke}
	renew := &ConsentTransitionHandler{ConsentService: r.ConsentService, Action: consentActionRenew}
	code := &ConsentCodeHandler{CodeService: r.CodeService}

	r.Mux.Handle("POST /v1/consent/grant",
		httpx.Chain(grant, httpx.LocalRateLimitByIP(httpx.StrictLocalLimit)))
	r.Mux.Handle("POST /v1/consent/revoke",
		httpx.Chain(revoke, httpx.LocalRateLimitByIP(httpx.StrictLocalLimit)))
	r.Mux.Handle("POST /v1/consent/renew",
		httpx.Chain(renew, httpx.LocalRateLimitByIP(httpx.StrictLocalLimit)))
	r.Mux.Handle("POST /v1/consent/code",
		httpx.Chain(code, httpx.LocalRateLimitByIP(httpx.StrictLocalLimit)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.LocalRateLimitByIP(httpx.LenientLocalLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.LocalRateLimitByIP(httpx.LenientLocalLimit),
		),
	)
}
