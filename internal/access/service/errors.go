package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvitationNotFound      = errors.New("invitation not found or expired")
	ErrInvitationAccepted      = errors.New("invitation has already been accepted")
	ErrInvitationEmailMismatch = errors.New("invitation was issued for a different email")
	ErrProfileNotFound         = errors.New("profile record not found")
	ErrNotChildProfile         = errors.New("profile does not require guardian consent")
	ErrConsentNotGiven         = errors.New("consent has not been given")
	ErrInvalidConsentCode      = errors.New("invalid or expired consent code")
	ErrProfileBlocked          = errors.New("profile is blocked")
)

// ErrConsentRequired is a required-next-step signal rather than a failure:
// the profile exists but a guardian grant (or renewal) must happen before it
// can be used.
var ErrConsentRequired = errors.New("guardian consent required")

// RateLimitError reports a request rejected by the shared limiter. Blocked
// distinguishes a hard block (no retry guidance shorter than BlockExpiresAt)
// from plain window exhaustion (retry after RetryAfter).
type RateLimitError struct {
	Blocked        bool
	RetryAfter     time.Duration
	BlockExpiresAt time.Time
}

func (e *RateLimitError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("blocked until %s", e.BlockExpiresAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
