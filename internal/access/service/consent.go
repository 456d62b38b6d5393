package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/pkg/idx"
	"github.com/sgsgita/alumnigate/pkg/slogx"
)

// ConsentService drives the guardian consent lifecycle for supervised
// profiles. Every transition writes the profile update and its audit entry in
// one transaction, so the trail can never disagree with the record.
type ConsentService struct {
	Store store.Store
	Codes *VerificationService

	Notifier Notifier

	// Validity defaults to domain.ConsentValidity when zero.
	Validity time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// GrantConsent records a guardian's consent for a child profile. The guardian
// proves presence with a consent code previously delivered to them. On
// success the child moves to supervised access for the validity window.
func (s *ConsentService) GrantConsent(
	ctx context.Context,
	parentProfileID, childProfileID, code, ip, userAgent string,
) (domain.ProfileAccessRecord, error) {
	return s.transition(ctx, parentProfileID, childProfileID, code, ip, userAgent, domain.ConsentGranted)
}

// RenewConsent extends an existing grant for another validity window. Renewal
// is the same guardian ceremony as the original grant, so it also requires a
// fresh code; unlike a grant it insists consent was given at some point
// before.
func (s *ConsentService) RenewConsent(
	ctx context.Context,
	parentProfileID, childProfileID, code, ip, userAgent string,
) (domain.ProfileAccessRecord, error) {
	return s.transition(ctx, parentProfileID, childProfileID, code, ip, userAgent, domain.ConsentRenewed)
}

// RevokeConsent withdraws consent immediately. No code is required: moving a
// child to the restricted state is always allowed for the guardian.
func (s *ConsentService) RevokeConsent(
	ctx context.Context,
	parentProfileID, childProfileID, ip, userAgent string,
) (domain.ProfileAccessRecord, error) {
	return s.transition(ctx, parentProfileID, childProfileID, "", ip, userAgent, domain.ConsentRevoked)
}

func (s *ConsentService) transition(
	ctx context.Context,
	parentProfileID, childProfileID, code, ip, userAgent string,
	action domain.ConsentAction,
) (domain.ProfileAccessRecord, error) {
	log := slogx.FromContext(ctx)

	if parentProfileID == "" || childProfileID == "" {
		return domain.ProfileAccessRecord{}, ErrInvalidRequest
	}

	// 1. Confirm the pair is a guardian and a consent-gated child.
	parent, child, err := s.Codes.loadPair(ctx, parentProfileID, childProfileID)
	if err != nil {
		return domain.ProfileAccessRecord{}, err
	}

	// 2. Grants and renewals require a fresh guardian code; revocation
	// does not.
	if action != domain.ConsentRevoked {
		if err := s.Codes.VerifyCode(parentProfileID, childProfileID, code); err != nil {
			log.Warn("consent transition with invalid code",
				"parent_profile_id", parentProfileID,
				"child_profile_id", childProfileID,
				"action", string(action),
			)
			return domain.ProfileAccessRecord{}, err
		}
	}
	if action == domain.ConsentRenewed && child.ConsentGrantedAt == nil {
		return domain.ProfileAccessRecord{}, ErrConsentNotGiven
	}

	// 3. Apply the transition to the record.
	now := s.now()
	switch action {
	case domain.ConsentGranted, domain.ConsentRenewed:
		expires := now.Add(s.validity())
		child.ConsentGiven = true
		child.ConsentGrantedAt = &now
		child.ConsentExpiresAt = &expires
		child.AccessLevel = domain.AccessSupervised
	case domain.ConsentRevoked:
		child.ConsentGiven = false
		child.ConsentExpiresAt = nil
		child.AccessLevel = domain.AccessBlocked
	}

	// 4. Persist the record and its audit entry atomically.
	entry := domain.ConsentAuditEntry{
		ID:              idx.New().String(),
		ParentProfileID: parentProfileID,
		ChildProfileID:  childProfileID,
		Action:          action,
		IP:              ip,
		UserAgent:       userAgent,
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Profiles().UpdateProfileConsent(ctx, child); err != nil {
			return err
		}
		return tx.ConsentAudit().AppendConsentAudit(ctx, entry)
	})
	if err != nil {
		log.Error("failed to persist consent transition",
			"child_profile_id", childProfileID,
			"action", string(action),
			"error", err,
		)
		return domain.ProfileAccessRecord{}, err
	}

	s.notifyForAction(ctx, action, parent.AccountID, childProfileID)

	log.Info("consent transition applied",
		slog.String("parent_profile_id", parentProfileID),
		slog.String("child_profile_id", childProfileID),
		slog.String("action", string(action)),
	)

	return child, nil
}

// CheckAccess resolves the effective access level for one profile record.
// Consent expiry is detected here, lazily: an over-age grant is reverted to
// the consent-required state and persisted before the answer is returned, so
// every later read agrees.
func (s *ConsentService) CheckAccess(ctx context.Context, profileID string) (domain.AccessLevel, error) {
	log := slogx.FromContext(ctx)

	rec, err := s.Store.Profiles().GetProfileRecord(ctx, profileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrProfileNotFound
		}
		return "", err
	}

	if !rec.RequiresConsent {
		if rec.AccessLevel == domain.AccessBlocked {
			return domain.AccessBlocked, ErrProfileBlocked
		}
		return rec.AccessLevel, nil
	}

	now := s.now()
	if rec.ConsentActive(now) {
		return domain.AccessSupervised, nil
	}

	// Consent missing or lapsed. Persist the reversion when the stored
	// record still claims an active grant.
	if rec.ConsentGiven {
		rec.ConsentGiven = false
		rec.AccessLevel = domain.AccessBlocked
		if err := s.Store.Profiles().UpdateProfileConsent(ctx, rec); err != nil {
			log.Error("failed to persist consent expiry", "profile_id", profileID, "error", err)
			return "", err
		}
		log.Info("consent lapsed", slog.String("profile_id", profileID))
	}

	return domain.AccessBlocked, ErrConsentRequired
}

// notifyForAction confirms the transition to the guardian. The account email
// lookup rides along in the delivery goroutine so the caller never waits on
// it.
func (s *ConsentService) notifyForAction(ctx context.Context, action domain.ConsentAction, guardianAccountID, childProfileID string) {
	if s.Notifier == nil {
		return
	}
	kind := NotifyConsentGranted
	if action == domain.ConsentRevoked {
		kind = NotifyConsentRevoked
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		guardian, err := s.Store.Accounts().GetAccountByID(ctx, guardianAccountID)
		if err != nil {
			slogx.FromContext(ctx).Warn("skipping consent notification",
				"account_id", guardianAccountID, "error", err)
			return
		}
		s.Notifier.Notify(ctx, guardian.Email, kind, map[string]string{
			"child_profile_id": childProfileID,
		})
	}()
}

func (s *ConsentService) validity() time.Duration {
	if s.Validity > 0 {
		return s.Validity
	}
	return domain.ConsentValidity
}

func (s *ConsentService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
