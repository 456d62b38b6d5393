package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgsgita/alumnigate/internal/access/domain"
	"github.com/sgsgita/alumnigate/pkg/cryptox"
	"github.com/sgsgita/alumnigate/pkg/tokenx"
)

func TestIssueInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a signed token and persists the record", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		token, err := svc.IssueInvitation(ctx, "Grad@Example.COM", domain.InvitationAlumni, "admin-1")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		payload, err := env.Tokens.Validate(token)
		require.NoError(t, err)
		require.Equal(t, "grad@example.com", payload.Email)
		require.Equal(t, tokenx.KindAlumni, payload.Kind)

		inv, err := env.Store.Invitations().GetInvitationByID(ctx, payload.SubjectID)
		require.NoError(t, err)
		require.Equal(t, "grad@example.com", inv.Email)
		require.False(t, inv.Accepted)

		sent := env.Notifier.waitFor(t, 1)
		require.Equal(t, "grad@example.com", sent[0].Recipient)
		require.Equal(t, NotifyInvitation, sent[0].Kind)
		require.Equal(t, token, sent[0].Data["token"])
	})

	t.Run("rejects junk email", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		_, err := svc.IssueInvitation(ctx, "not-an-email", domain.InvitationAlumni, "admin-1")
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("rate limits a hammering sender", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		for i := 0; i < 10; i++ {
			_, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
			require.NoError(t, err)
		}

		_, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
		var rle *RateLimitError
		require.ErrorAs(t, err, &rle)
	})
}

func TestAcceptInvitation(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an account and consumes the invitation", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		token, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
		require.NoError(t, err)

		account, err := svc.AcceptInvitation(ctx, token, "correct horse battery", "198.51.100.1")
		require.NoError(t, err)
		require.Equal(t, "grad@example.com", account.Email)
		require.NoError(t, cryptox.VerifyPassword("correct horse battery", account.PasswordHash))

		payload, err := env.Tokens.Validate(token)
		require.NoError(t, err)
		inv, err := env.Store.Invitations().GetInvitationByID(ctx, payload.SubjectID)
		require.NoError(t, err)
		require.True(t, inv.Accepted)
		require.Equal(t, account.ID, inv.AcceptedBy)
	})

	t.Run("replay of a consumed token is rejected", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		token, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
		require.NoError(t, err)

		_, err = svc.AcceptInvitation(ctx, token, "pw-first-use!", "198.51.100.1")
		require.NoError(t, err)

		_, err = svc.AcceptInvitation(ctx, token, "pw-second-use!", "198.51.100.2")
		require.ErrorIs(t, err, ErrInvitationAccepted)
	})

	t.Run("expired token is rejected even though the record exists", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		token, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
		require.NoError(t, err)

		env.Clock.Advance(8 * 24 * time.Hour)

		_, err = svc.AcceptInvitation(ctx, token, "too late anyway", "198.51.100.1")
		require.ErrorIs(t, err, tokenx.ErrTokenExpired)
	})

	t.Run("token survives a secret rotation", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		token, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
		require.NoError(t, err)

		require.NoError(t, env.Secrets.Rotate())

		_, err = svc.AcceptInvitation(ctx, token, "still works fine", "198.51.100.1")
		require.NoError(t, err)
	})

	t.Run("acceptance endpoint is rate limited per ip", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		for i := 0; i < 5; i++ {
			_, err := svc.AcceptInvitation(ctx, "garbage-token", "irrelevant pass", "203.0.113.9")
			require.ErrorIs(t, err, tokenx.ErrMalformedToken)
		}

		_, err := svc.AcceptInvitation(ctx, "garbage-token", "irrelevant pass", "203.0.113.9")
		var rle *RateLimitError
		require.ErrorAs(t, err, &rle)
		require.True(t, rle.Blocked)

		// A different address is unaffected.
		_, err = svc.AcceptInvitation(ctx, "garbage-token", "irrelevant pass", "203.0.113.10")
		require.ErrorIs(t, err, tokenx.ErrMalformedToken)
	})

	t.Run("existing account is reused", func(t *testing.T) {
		env := newTestEnv(t)
		svc := env.invitations()

		first, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationAlumni, "admin-1")
		require.NoError(t, err)
		account, err := svc.AcceptInvitation(ctx, first, "original pass!", "198.51.100.1")
		require.NoError(t, err)

		second, err := svc.IssueInvitation(ctx, "grad@example.com", domain.InvitationFamilyMember, "admin-1")
		require.NoError(t, err)
		again, err := svc.AcceptInvitation(ctx, second, "", "198.51.100.1")
		require.NoError(t, err)
		require.Equal(t, account.ID, again.ID)
	})
}
