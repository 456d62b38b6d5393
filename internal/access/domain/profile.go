package domain

import "time"

// Relationship is the claimed relation between an account and an alumni
// record.
type Relationship string

const (
	RelationshipParent Relationship = "parent"
	RelationshipChild  Relationship = "child"
)

// AccessLevel is the coarse permission state attached to a claimed profile.
type AccessLevel string

const (
	AccessFull       AccessLevel = "full"
	AccessSupervised AccessLevel = "supervised"
	AccessBlocked    AccessLevel = "blocked"
)

// ProfileAccessRecord exists once per claimed alumni record per account.
// Records are created only for profiles eligible to exist in the app
// (conservative age >= 14); under-14 claims stay data-only in the alumni
// source table and never become a record.
type ProfileAccessRecord struct {
	ID             string
	AccountID      string
	AlumniRecordID string // the claimed row in the alumni source-of-truth table
	Relationship   Relationship
	BirthYear      *int
	AccessLevel    AccessLevel

	RequiresConsent  bool
	ConsentGiven     bool
	ConsentGrantedAt *time.Time
	ConsentExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConsentActive reports whether a recorded consent grant is still within its
// validity window. Expiry is time-based and checked lazily on access; there
// is no background sweep.
func (r ProfileAccessRecord) ConsentActive(now time.Time) bool {
	return r.ConsentGiven && r.ConsentExpiresAt != nil && r.ConsentExpiresAt.After(now)
}

// ConsentAction labels an entry in the consent audit trail.
type ConsentAction string

const (
	ConsentGranted ConsentAction = "granted"
	ConsentRevoked ConsentAction = "revoked"
	ConsentRenewed ConsentAction = "renewed"
)

// ConsentAuditEntry is the append-only compliance record of a consent
// lifecycle transition. Entries are never mutated or deleted.
type ConsentAuditEntry struct {
	ID              string
	ParentProfileID string
	ChildProfileID  string
	Action          ConsentAction
	IP              string
	UserAgent       string
	CreatedAt       time.Time
}
