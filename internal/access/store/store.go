package store

import (
	"context"
	"errors"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Accounts() Accounts
	Invitations() Invitations
	Profiles() Profiles
	ConsentAudit() ConsentAudit
	RateLimits() RateLimits

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction: rollback when fn errors,
	// commit otherwise. This is the recommended way to handle multi-step
	// writes that must be atomic (e.g. an onboarding batch).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByEmail looks up by normalized email, used on invitation
	// acceptance.
	GetAccountByEmail(ctx context.Context, email string) (domain.Account, error)

	// CreateAccount inserts a new account (id is provided by app via ULID).
	CreateAccount(ctx context.Context, a domain.Account) error
}

type Invitations interface {
	// CreateInvitation writes a new invitation record.
	CreateInvitation(ctx context.Context, inv domain.Invitation) error

	// GetInvitationByID returns the record an invitation token references,
	// regardless of state; callers decide what pending means.
	GetInvitationByID(ctx context.Context, id string) (domain.Invitation, error)

	// MarkInvitationAccepted sets accepted=1, accepted_by, updated_at.
	MarkInvitationAccepted(ctx context.Context, invitationID, accountID string) error

	// DeleteExpiredInvitations is housekeeping.
	DeleteExpiredInvitations(ctx context.Context, now time.Time) error
}

type Profiles interface {
	// CreateProfileRecords inserts a batch of records. Callers needing
	// all-or-nothing semantics run it inside WithTx.
	CreateProfileRecords(ctx context.Context, records []domain.ProfileAccessRecord) error

	// GetProfileRecord returns one record by id.
	GetProfileRecord(ctx context.Context, id string) (domain.ProfileAccessRecord, error)

	// ListProfileRecordsByAccount returns an account's claimed profiles,
	// newest first.
	ListProfileRecordsByAccount(ctx context.Context, accountID string) ([]domain.ProfileAccessRecord, error)

	// UpdateProfileConsent persists the mutable consent fields
	// (access_level, consent_given, granted/expires timestamps) by id.
	UpdateProfileConsent(ctx context.Context, rec domain.ProfileAccessRecord) error
}

type ConsentAudit interface {
	// AppendConsentAudit appends one immutable audit entry. There is no
	// update or delete: the trail is the compliance record.
	AppendConsentAudit(ctx context.Context, e domain.ConsentAuditEntry) error

	// ListConsentAuditByChild returns the trail for a child profile,
	// oldest first.
	ListConsentAuditByChild(ctx context.Context, childProfileID string) ([]domain.ConsentAuditEntry, error)
}

// RateLimits is the shared counter store behind the distributed limiter.
// Its method set deliberately matches limitx.CounterStore so a driver's repo
// plugs straight into limitx.New.
type RateLimits interface {
	// Increment atomically adds one to (policy, key, window) and returns
	// the new count. The row's expiry is fixed when the window row is
	// first created.
	Increment(ctx context.Context, policy, key string, window int64, ttl time.Duration) (int64, error)

	// Count reads the counter without modifying it.
	Count(ctx context.Context, policy, key string, window int64) (int64, error)

	// SetBlock records a hard block for (policy, key) until the given time.
	SetBlock(ctx context.Context, policy, key string, until time.Time) error

	// Block returns the active block expiry, or the zero time when none.
	Block(ctx context.Context, policy, key string) (time.Time, error)

	// DeleteExpiredCounters removes counter rows whose own expiry has
	// passed. It must never touch live windows: enforcement reads are
	// keyed on the clock-derived window index, so this is storage
	// hygiene, not quota reset.
	DeleteExpiredCounters(ctx context.Context, now time.Time) error

	// DeleteExpiredBlocks removes lapsed block records.
	DeleteExpiredBlocks(ctx context.Context, now time.Time) error
}
