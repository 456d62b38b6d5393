package service

import (
	"context"
	"log/slog"
)

// Template kinds passed to the notifier.
const (
	NotifyInvitation      = "invitation"
	NotifyConsentCode     = "consent_code"
	NotifyConsentGranted  = "consent_granted"
	NotifyConsentRevoked  = "consent_revoked"
	NotifyAccountAccepted = "account_accepted"
)

// Notifier delivers outbound email/SMS. Delivery is fire-and-forget: the
// access-control flow never blocks on it, and a delivery failure never fails
// the operation that triggered it.
type Notifier interface {
	Notify(ctx context.Context, recipient, templateKind string, data map[string]string)
}

// LogNotifier is the default Notifier: it records what would have been sent.
// Real delivery is an external collaborator wired in at the edge.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, recipient, templateKind string, data map[string]string) {
	n.Logger.Info("notification dispatched",
		"recipient", recipient,
		"template", templateKind,
		"fields", len(data),
	)
}
