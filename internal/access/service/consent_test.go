package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgsgita/alumnigate/internal/access/domain"
)

// claimFamily onboards one guardian account with a parent profile and a
// consent-gated child profile, returning both profile ids.
func claimFamily(t *testing.T, env *testEnv, childAge int) (parentID, childID string) {
	t.Helper()
	ctx := context.Background()

	account := newTestAccount(t, env, "guardian@example.com")
	year := env.Clock.Now().Year()

	outcomes, err := env.onboarding().ClaimProfiles(ctx, account.ID, []ProfileClaim{
		{AlumniRecordID: "rec-parent", Relationship: domain.RelationshipParent},
		{AlumniRecordID: "rec-child", Relationship: domain.RelationshipChild, BirthYear: intp(year - childAge)},
	})
	require.NoError(t, err)
	require.NotNil(t, outcomes[0].Record)
	require.NotNil(t, outcomes[1].Record)
	return outcomes[0].Record.ID, outcomes[1].Record.ID
}

// requestCode runs the delivery flow and fishes the code out of the captured
// notification. Only notifications newer than the call are considered, so a
// second request never returns the first request's code.
func requestCode(t *testing.T, env *testEnv, parentID, childID string) string {
	t.Helper()

	baseline := len(env.Notifier.snapshot())
	require.NoError(t, env.verification().RequestCode(context.Background(), parentID, childID))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sent := env.Notifier.snapshot()
		for i := len(sent) - 1; i >= baseline; i-- {
			if sent[i].Kind == NotifyConsentCode {
				return sent[i].Data["code"]
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("consent code was never delivered")
	return ""
}

func TestGrantConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("grant moves the child to supervised for a year", func(t *testing.T) {
		env := newTestEnv(t)
		parentID, childID := claimFamily(t, env, 15)
		code := requestCode(t, env, parentID, childID)

		rec, err := env.consent().GrantConsent(ctx, parentID, childID, code, "198.51.100.1", "test-agent")
		require.NoError(t, err)
		require.True(t, rec.ConsentGiven)
		require.Equal(t, domain.AccessSupervised, rec.AccessLevel)
		require.NotNil(t, rec.ConsentExpiresAt)
		require.Equal(t,
			env.Clock.Now().Add(domain.ConsentValidity),
			*rec.ConsentExpiresAt)

		level, err := env.consent().CheckAccess(ctx, childID)
		require.NoError(t, err)
		require.Equal(t, domain.AccessSupervised, level)

		trail, err := env.Store.ConsentAudit().ListConsentAuditByChild(ctx, childID)
		require.NoError(t, err)
		require.Len(t, trail, 1)
		require.Equal(t, domain.ConsentGranted, trail[0].Action)
		require.Equal(t, parentID, trail[0].ParentProfileID)
		require.Equal(t, "198.51.100.1", trail[0].IP)
		require.Equal(t, "test-agent", trail[0].UserAgent)
	})

	t.Run("wrong code changes nothing", func(t *testing.T) {
		env := newTestEnv(t)
		parentID, childID := claimFamily(t, env, 15)

		_, err := env.consent().GrantConsent(ctx, parentID, childID, "000000", "", "")
		require.ErrorIs(t, err, ErrInvalidConsentCode)

		rec, err := env.Store.Profiles().GetProfileRecord(ctx, childID)
		require.NoError(t, err)
		require.False(t, rec.ConsentGiven)
		require.Equal(t, domain.AccessBlocked, rec.AccessLevel)

		trail, err := env.Store.ConsentAudit().ListConsentAuditByChild(ctx, childID)
		require.NoError(t, err)
		require.Empty(t, trail)
	})

	t.Run("code issued for one child cannot authorize another", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		account := newTestAccount(t, env, "guardian@example.com")
		year := env.Clock.Now().Year()
		outcomes, err := env.onboarding().ClaimProfiles(ctx, account.ID, []ProfileClaim{
			{AlumniRecordID: "rec-parent", Relationship: domain.RelationshipParent},
			{AlumniRecordID: "rec-first", Relationship: domain.RelationshipChild, BirthYear: intp(year - 15)},
			{AlumniRecordID: "rec-second", Relationship: domain.RelationshipChild, BirthYear: intp(year - 16)},
		})
		require.NoError(t, err)
		parentID := outcomes[0].Record.ID
		firstID := outcomes[1].Record.ID
		secondID := outcomes[2].Record.ID

		code := requestCode(t, env, parentID, firstID)

		_, err = env.consent().GrantConsent(ctx, parentID, secondID, code, "", "")
		require.ErrorIs(t, err, ErrInvalidConsentCode)
	})

	t.Run("adult profile rejects the ceremony outright", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		account := newTestAccount(t, env, "guardian@example.com")
		year := env.Clock.Now().Year()
		outcomes, err := env.onboarding().ClaimProfiles(ctx, account.ID, []ProfileClaim{
			{AlumniRecordID: "rec-parent", Relationship: domain.RelationshipParent},
			{AlumniRecordID: "rec-adult", Relationship: domain.RelationshipChild, BirthYear: intp(year - 25)},
		})
		require.NoError(t, err)

		_, err = env.consent().GrantConsent(ctx, outcomes[0].Record.ID, outcomes[1].Record.ID, "123456", "", "")
		require.ErrorIs(t, err, ErrNotChildProfile)
	})
}

func TestRevokeConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation is immediate and audited", func(t *testing.T) {
		env := newTestEnv(t)
		parentID, childID := claimFamily(t, env, 15)
		code := requestCode(t, env, parentID, childID)

		_, err := env.consent().GrantConsent(ctx, parentID, childID, code, "", "")
		require.NoError(t, err)

		rec, err := env.consent().RevokeConsent(ctx, parentID, childID, "198.51.100.1", "")
		require.NoError(t, err)
		require.False(t, rec.ConsentGiven)
		require.Equal(t, domain.AccessBlocked, rec.AccessLevel)

		_, err = env.consent().CheckAccess(ctx, childID)
		require.ErrorIs(t, err, ErrConsentRequired)

		trail, err := env.Store.ConsentAudit().ListConsentAuditByChild(ctx, childID)
		require.NoError(t, err)
		require.Len(t, trail, 2)
		require.Equal(t, domain.ConsentGranted, trail[0].Action)
		require.Equal(t, domain.ConsentRevoked, trail[1].Action)
	})
}

func TestRenewConsent(t *testing.T) {
	ctx := context.Background()

	t.Run("renewal restarts the validity window", func(t *testing.T) {
		env := newTestEnv(t)
		parentID, childID := claimFamily(t, env, 15)

		code := requestCode(t, env, parentID, childID)
		_, err := env.consent().GrantConsent(ctx, parentID, childID, code, "", "")
		require.NoError(t, err)

		env.Clock.Advance(300 * 24 * time.Hour)

		code = requestCode(t, env, parentID, childID)
		rec, err := env.consent().RenewConsent(ctx, parentID, childID, code, "", "")
		require.NoError(t, err)
		require.Equal(t,
			env.Clock.Now().Add(domain.ConsentValidity),
			*rec.ConsentExpiresAt)

		trail, err := env.Store.ConsentAudit().ListConsentAuditByChild(ctx, childID)
		require.NoError(t, err)
		require.Len(t, trail, 2)
		require.Equal(t, domain.ConsentRenewed, trail[1].Action)
	})

	t.Run("renewal without a prior grant is refused", func(t *testing.T) {
		env := newTestEnv(t)
		parentID, childID := claimFamily(t, env, 15)
		code := requestCode(t, env, parentID, childID)

		_, err := env.consent().RenewConsent(ctx, parentID, childID, code, "", "")
		require.ErrorIs(t, err, ErrConsentNotGiven)
	})
}

func TestCheckAccessLazyExpiry(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t)
	parentID, childID := claimFamily(t, env, 15)
	code := requestCode(t, env, parentID, childID)

	_, err := env.consent().GrantConsent(ctx, parentID, childID, code, "", "")
	require.NoError(t, err)

	// One day short of expiry the grant still holds.
	env.Clock.Advance(364 * 24 * time.Hour)
	level, err := env.consent().CheckAccess(ctx, childID)
	require.NoError(t, err)
	require.Equal(t, domain.AccessSupervised, level)

	// Past expiry the next read reverts the record, persistently.
	env.Clock.Advance(2 * 24 * time.Hour)
	_, err = env.consent().CheckAccess(ctx, childID)
	require.ErrorIs(t, err, ErrConsentRequired)

	rec, err := env.Store.Profiles().GetProfileRecord(ctx, childID)
	require.NoError(t, err)
	require.False(t, rec.ConsentGiven)
	require.Equal(t, domain.AccessBlocked, rec.AccessLevel)
}

func TestRequestCodeRateLimit(t *testing.T) {
	ctx := context.Background()

	env := newTestEnv(t)
	parentID, childID := claimFamily(t, env, 15)
	svc := env.verification()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RequestCode(ctx, parentID, childID))
	}

	err := svc.RequestCode(ctx, parentID, childID)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	require.True(t, rle.Blocked)
}
