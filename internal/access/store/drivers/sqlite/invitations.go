package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
)

type invitationsRepo struct {
	db querier
}

func (r *invitationsRepo) CreateInvitation(ctx context.Context, inv domain.Invitation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations
			(id, email, kind, invited_by, expires_at, accepted, accepted_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		inv.ID, strings.ToLower(inv.Email), string(inv.Kind),
		mapStringNull(inv.InvitedBy), inv.ExpiresAt.UTC())
	return err
}

func (r *invitationsRepo) GetInvitationByID(ctx context.Context, id string) (domain.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, kind, invited_by, expires_at, accepted, accepted_by, created_at, updated_at
		FROM invitations WHERE id = ?`, id)

	var (
		inv        domain.Invitation
		kind       string
		invitedBy  sql.NullString
		acceptedBy sql.NullString
	)
	err := row.Scan(&inv.ID, &inv.Email, &kind, &invitedBy, &inv.ExpiresAt,
		&inv.Accepted, &acceptedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}

	inv.Kind = domain.InvitationKind(kind)
	inv.InvitedBy = mapNullString(invitedBy)
	inv.AcceptedBy = mapNullString(acceptedBy)
	return inv, nil
}

func (r *invitationsRepo) MarkInvitationAccepted(ctx context.Context, invitationID, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invitations
		SET accepted = 1, accepted_by = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, accountID, invitationID)
	return err
}

func (r *invitationsRepo) DeleteExpiredInvitations(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE expires_at <= ?`, now.UTC())
	return err
}
