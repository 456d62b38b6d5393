package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/pkg/cryptox"
	"github.com/sgsgita/alumnigate/pkg/idx"
	"github.com/sgsgita/alumnigate/pkg/limitx"
	"github.com/sgsgita/alumnigate/pkg/slogx"
	"github.com/sgsgita/alumnigate/pkg/tokenx"
)

// DefaultInvitationTTL is how long an issued invitation token stays
// acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InvitationService issues invitations and drives the acceptance flow:
// rate limit first, then token verification, then referenced-record
// confirmation, then account create-or-lookup. In that order, so forged or
// hammered requests do the least work.
type InvitationService struct {
	Store    store.Store
	Tokens   *tokenx.Service
	Limiter  *limitx.Limiter
	Notifier Notifier

	// TTL defaults to DefaultInvitationTTL when zero.
	TTL time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// IssueInvitation creates the invitation record, signs a token referencing
// it and hands the token to the notifier for delivery. The sender is
// rate-limited under the invite_send policy.
func (s *InvitationService) IssueInvitation(
	ctx context.Context,
	email string,
	kind domain.InvitationKind,
	invitedBy string,
) (string, error) {
	log := slogx.FromContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", ErrInvalidRequest
	}

	limitKey := invitedBy
	if limitKey == "" {
		limitKey = email
	}
	if err := decisionToError(s.Limiter.CheckAndRecord(ctx, limitKey, limitx.InviteSendPolicy)); err != nil {
		log.Warn("invitation send rate limited", "key", limitKey)
		return "", err
	}

	now := s.now()
	inv := domain.Invitation{
		ID:        idx.New().String(),
		Email:     email,
		Kind:      kind,
		InvitedBy: invitedBy,
		ExpiresAt: now.Add(s.ttl()),
	}

	if err := s.Store.Invitations().CreateInvitation(ctx, inv); err != nil {
		log.Error("failed to create invitation", "error", err)
		return "", err
	}

	token, err := s.Tokens.Issue(tokenx.Payload{
		SubjectID: inv.ID,
		Email:     inv.Email,
		Kind:      tokenx.Kind(inv.Kind),
		IssuedAt:  now.UnixMilli(),
		ExpiresAt: inv.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		log.Error("failed to sign invitation token", "invitation_id", inv.ID, "error", err)
		return "", err
	}

	s.notify(ctx, inv.Email, NotifyInvitation, map[string]string{
		"token": token,
		"kind":  string(inv.Kind),
	})

	log.Info("invitation issued",
		slog.String("invitation_id", inv.ID),
		slog.String("kind", string(inv.Kind)),
		slog.Time("expires_at", inv.ExpiresAt),
	)

	return token, nil
}

// AcceptInvitation redeems an invitation token and returns the account it
// resolves to, creating one when the email is new.
//
// Token validity is self-contained, but a valid token does not prove the
// invitation is still pending: the referenced record is confirmed before any
// account work, which also neutralizes replay of an already-consumed token.
func (s *InvitationService) AcceptInvitation(
	ctx context.Context,
	token string,
	password string,
	remoteIP string,
) (domain.Account, error) {
	log := slogx.FromContext(ctx)

	// 1. Rate limit the acceptance endpoint before any cryptographic work.
	if err := decisionToError(s.Limiter.CheckAndRecord(ctx, remoteIP, limitx.InviteAcceptPolicy)); err != nil {
		log.Warn("invitation acceptance rate limited", "remote_ip", remoteIP)
		return domain.Account{}, err
	}

	// 2. Verify the token. Signature failures are security events; the
	// caller only ever learns "invalid token".
	payload, err := s.Tokens.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, tokenx.ErrTokenExpired):
			log.Info("expired invitation token presented")
		case errors.Is(err, tokenx.ErrInvalidSignature):
			log.Warn("invitation token with invalid signature presented", "remote_ip", remoteIP)
		default:
			log.Info("malformed invitation token presented")
		}
		return domain.Account{}, err
	}

	// 3. Confirm the referenced record still exists and is still pending.
	inv, err := s.Store.Invitations().GetInvitationByID(ctx, payload.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("valid token references missing invitation", "invitation_id", payload.SubjectID)
			return domain.Account{}, ErrInvitationNotFound
		}
		log.Error("failed to fetch invitation", "error", err)
		return domain.Account{}, err
	}

	if inv.Accepted {
		log.Warn("replay of already-accepted invitation",
			"invitation_id", inv.ID, "accepted_by", inv.AcceptedBy)
		return domain.Account{}, ErrInvitationAccepted
	}
	if !inv.ExpiresAt.After(s.now()) {
		return domain.Account{}, ErrInvitationNotFound
	}
	if inv.Email != payload.Email {
		// The token is authentic, so a mismatch means the record was
		// edited after issuance. Treat the token as void.
		log.Warn("invitation email no longer matches token",
			"invitation_id", inv.ID)
		return domain.Account{}, ErrInvitationEmailMismatch
	}

	// 4. Create or look up the account, and mark the invitation accepted,
	// atomically.
	var account domain.Account
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		existing, err := tx.Accounts().GetAccountByEmail(ctx, inv.Email)
		switch {
		case err == nil:
			account = existing
		case errors.Is(err, store.ErrNotFound):
			if password == "" {
				return ErrInvalidRequest
			}
			hash, err := cryptox.HashPassword(password)
			if err != nil {
				return err
			}
			account = domain.Account{
				ID:           idx.New().String(),
				Email:        inv.Email,
				PasswordHash: hash,
			}
			if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
				return err
			}
		default:
			return err
		}

		return tx.Invitations().MarkInvitationAccepted(ctx, inv.ID, account.ID)
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidRequest) {
			log.Error("failed to accept invitation", "invitation_id", inv.ID, "error", err)
		}
		return domain.Account{}, err
	}

	s.notify(ctx, account.Email, NotifyAccountAccepted, map[string]string{
		"invitation_id": inv.ID,
	})

	log.Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.String("account_id", account.ID),
		slog.String("kind", string(inv.Kind)),
	)

	return account, nil
}

// notify hands off to the notifier without blocking the caller.
func (s *InvitationService) notify(ctx context.Context, recipient, kind string, data map[string]string) {
	if s.Notifier == nil {
		return
	}
	go s.Notifier.Notify(context.WithoutCancel(ctx), recipient, kind, data)
}

func (s *InvitationService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultInvitationTTL
}

func (s *InvitationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// decisionToError converts a limiter decision into the service error
// taxonomy; allowed decisions map to nil.
func decisionToError(d limitx.Decision) error {
	if d.Allowed {
		return nil
	}
	return &RateLimitError{
		Blocked:        !d.BlockExpiresAt.IsZero(),
		RetryAfter:     d.RetryAfter,
		BlockExpiresAt: d.BlockExpiresAt,
	}
}
