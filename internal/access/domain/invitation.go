package domain

import "time"

// InvitationKind mirrors the token kind carried in the signed invitation
// token.
type InvitationKind string

const (
	InvitationAlumni       InvitationKind = "alumni"
	InvitationFamilyMember InvitationKind = "family_member"
)

// Invitation is the server-side record an invitation token references.
// Tokens are stateless; "revoking" one means invalidating this record, so
// acceptance must always confirm the record is still pending even after the
// token itself verifies.
type Invitation struct {
	ID         string
	Email      string // normalized lower case
	Kind       InvitationKind
	InvitedBy  string // account ID of the sender, empty for system invites
	ExpiresAt  time.Time
	Accepted   bool
	AcceptedBy string // account ID, empty until accepted
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
