package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/pkg/limitx"
	"github.com/sgsgita/alumnigate/pkg/slogx"
)

// Consent codes are short-lived TOTP values over a per-pair secret derived
// from the signing secret. Nothing is stored per code: verification re-derives
// the secret and checks the code against the current time step and one
// neighbour.
const (
	consentCodePeriod = 300 // seconds per time step
	consentCodeSkew   = 1   // accepted neighbouring steps on each side
)

// VerificationService issues and checks guardian consent codes.
type VerificationService struct {
	Store    store.Store
	Secrets  interface{ VerifyCandidates() [][]byte }
	Limiter  *limitx.Limiter
	Notifier Notifier

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// RequestCode generates a consent code for the parent/child profile pair and
// hands it to the notifier for delivery to the guardian's account email.
// Requests are rate-limited under the otp_request policy, keyed by the
// parent profile.
func (s *VerificationService) RequestCode(
	ctx context.Context,
	parentProfileID, childProfileID string,
) error {
	log := slogx.FromContext(ctx)

	if parentProfileID == "" || childProfileID == "" {
		return ErrInvalidRequest
	}

	if err := decisionToError(s.Limiter.CheckAndRecord(ctx, parentProfileID, limitx.OTPRequestPolicy)); err != nil {
		log.Warn("consent code request rate limited", "parent_profile_id", parentProfileID)
		return err
	}

	parent, child, err := s.loadPair(ctx, parentProfileID, childProfileID)
	if err != nil {
		return err
	}

	guardian, err := s.Store.Accounts().GetAccountByID(ctx, parent.AccountID)
	if err != nil {
		log.Error("failed to resolve guardian account", "account_id", parent.AccountID, "error", err)
		return err
	}

	secret := s.pairSecret(s.currentSecret(), parentProfileID, childProfileID)
	code, err := totp.GenerateCodeCustom(secret, s.now(), consentCodeOpts())
	if err != nil {
		return err
	}

	s.notifyAsync(ctx, guardian.Email, NotifyConsentCode, map[string]string{
		"code":             code,
		"child_profile_id": child.ID,
	})

	log.Info("consent code issued",
		slog.String("parent_profile_id", parentProfileID),
		slog.String("child_profile_id", childProfileID),
	)

	return nil
}

// VerifyCode checks a guardian-supplied code for the pair. Codes remain valid
// across a secret rotation for as long as the old secret is kept as a verify
// candidate.
func (s *VerificationService) VerifyCode(parentProfileID, childProfileID, code string) error {
	if code == "" {
		return ErrInvalidConsentCode
	}
	now := s.now()
	for _, candidate := range s.Secrets.VerifyCandidates() {
		secret := s.pairSecret(candidate, parentProfileID, childProfileID)
		ok, err := totp.ValidateCustom(code, secret, now, consentCodeOpts())
		if err == nil && ok {
			return nil
		}
	}
	return ErrInvalidConsentCode
}

// loadPair fetches both records and checks they form a guardian/child pair
// under the same account family: a parent-relationship record may only vouch
// for a child record it shares an account with.
func (s *VerificationService) loadPair(
	ctx context.Context,
	parentProfileID, childProfileID string,
) (parent, child domain.ProfileAccessRecord, err error) {
	parent, err = s.Store.Profiles().GetProfileRecord(ctx, parentProfileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return parent, child, ErrProfileNotFound
		}
		return parent, child, err
	}
	child, err = s.Store.Profiles().GetProfileRecord(ctx, childProfileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return parent, child, ErrProfileNotFound
		}
		return parent, child, err
	}

	if parent.Relationship != domain.RelationshipParent || parent.AccountID != child.AccountID {
		return parent, child, ErrProfileNotFound
	}
	if !child.RequiresConsent {
		return parent, child, ErrNotChildProfile
	}
	return parent, child, nil
}

// pairSecret derives a deterministic base32 TOTP secret for a specific
// parent/child pair. Derivation binds the code to the pair: a code issued for
// one child cannot authorize consent for another.
func (s *VerificationService) pairSecret(root []byte, parentProfileID, childProfileID string) string {
	mac := hmac.New(sha256.New, root)
	mac.Write([]byte("consent-code:" + parentProfileID + ":" + childProfileID))
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(mac.Sum(nil))
}

func (s *VerificationService) currentSecret() []byte {
	candidates := s.Secrets.VerifyCandidates()
	return candidates[0]
}

func consentCodeOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    consentCodePeriod,
		Skew:      consentCodeSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

func (s *VerificationService) notifyAsync(ctx context.Context, recipient, kind string, data map[string]string) {
	if s.Notifier == nil {
		return
	}
	go s.Notifier.Notify(context.WithoutCancel(ctx), recipient, kind, data)
}

func (s *VerificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
