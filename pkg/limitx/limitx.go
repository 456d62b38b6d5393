// Package limitx implements distributed, window-based rate limiting with
// optional progressive delay and hard blocking. Counters live in a shared
// CounterStore so enforcement holds across horizontally scaled instances;
// the store's atomic increment is what makes check-and-record race-free.
//
// If the store is unreachable the limiter fails open by default: an outage
// of the limiter must not become a denial of service of the product itself.
package limitx

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ErrStoreUnavailable wraps store failures internally. It is never surfaced
// to end users; the limiter absorbs it per its fail-open/fail-closed setting.
var ErrStoreUnavailable = errors.New("limitx: counter store unavailable")

// DefaultStoreTimeout bounds the single store round-trip a check performs.
const DefaultStoreTimeout = 250 * time.Millisecond

// Policy describes the limits applied to one named class of requests.
type Policy struct {
	// Name namespaces the policy's counters and blocks in the store.
	Name string
	// Window is the fixed counting window.
	Window time.Duration
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int
	// BlockDuration, when non-zero, hard-blocks a subject that exceeds the
	// window quota for this long, independent of window rollovers.
	BlockDuration time.Duration
	// BaseDelay and MaxDelay, when set, scale an advisory delay between
	// them as the subject approaches its quota.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Default policies for the sensitive endpoints this core guards. All of them
// can be overridden via RATELIMIT_<NAME>_* environment variables.
var (
	OTPRequestPolicy = Policy{
		Name:          "otp_request",
		Window:        10 * time.Minute,
		MaxRequests:   3,
		BlockDuration: 30 * time.Minute,
		BaseDelay:     time.Second,
		MaxDelay:      5 * time.Second,
	}

	InviteSendPolicy = Policy{
		Name:        "invite_send",
		Window:      time.Hour,
		MaxRequests: 10,
	}

	InviteAcceptPolicy = Policy{
		Name:          "invite_accept",
		Window:        time.Minute,
		MaxRequests:   5,
		BlockDuration: 15 * time.Minute,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      3 * time.Second,
	}

	LoginAttemptPolicy = Policy{
		Name:          "login_attempt",
		Window:        time.Minute,
		MaxRequests:   5,
		BlockDuration: 15 * time.Minute,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      3 * time.Second,
	}
)

func init() {
	OTPRequestPolicy = PolicyFromEnv("OTP_REQUEST", OTPRequestPolicy)
	InviteSendPolicy = PolicyFromEnv("INVITE_SEND", InviteSendPolicy)
	InviteAcceptPolicy = PolicyFromEnv("INVITE_ACCEPT", InviteAcceptPolicy)
	LoginAttemptPolicy = PolicyFromEnv("LOGIN_ATTEMPT", LoginAttemptPolicy)
}

// PolicyFromEnv overlays RATELIMIT_{prefix}_REQUESTS,
// RATELIMIT_{prefix}_WINDOW_SEC and RATELIMIT_{prefix}_BLOCK_SEC onto a
// default policy. Useful for tuning limits per environment without a deploy.
func PolicyFromEnv(prefix string, def Policy) Policy {
	p := def

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			p.MaxRequests = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if sec, err := strconv.Atoi(val); err == nil && sec > 0 {
			p.Window = time.Duration(sec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BLOCK_SEC"); val != "" {
		if sec, err := strconv.Atoi(val); err == nil && sec >= 0 {
			p.BlockDuration = time.Duration(sec) * time.Second
		}
	}

	return p
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	// Delay is advisory progressive friction for the caller to apply as the
	// subject approaches its quota. Zero when the policy defines none.
	Delay time.Duration
	// RetryAfter is how long until the subject may retry, set only when the
	// request was not allowed.
	RetryAfter time.Duration
	// BlockExpiresAt is set when a hard block is active.
	BlockExpiresAt time.Time
	// Degraded reports that the store was unreachable and the limiter
	// applied its failure policy instead of a real count.
	Degraded bool
}

// CounterStore is the shared backing store for counters and block records.
// Increment must be atomic: two concurrent calls for the same key and window
// must observe distinct counts.
type CounterStore interface {
	// Increment adds one to the counter for (policy, key, window) and
	// returns the new count. The counter's time-to-live is fixed at the
	// window's creation and must never be extended or reset by unrelated
	// cleanup.
	Increment(ctx context.Context, policy, key string, window int64, ttl time.Duration) (int64, error)

	// Count returns the current counter without modifying it.
	Count(ctx context.Context, policy, key string, window int64) (int64, error)

	// SetBlock records a hard block for (policy, key) until the given time.
	SetBlock(ctx context.Context, policy, key string, until time.Time) error

	// Block returns the active block expiry for (policy, key), or the zero
	// time when none exists.
	Block(ctx context.Context, policy, key string) (time.Time, error)
}

// Limiter evaluates policies against a shared CounterStore.
type Limiter struct {
	store  CounterStore
	logger *slog.Logger

	// timeout bounds each store round-trip.
	timeout time.Duration
	// failClosed rejects requests when the store is unreachable. Leaving it
	// off (the default) is a deliberate availability-over-enforcement
	// trade-off; turning it on converts a store outage into a product
	// outage and is logged as such at construction.
	failClosed bool

	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithTimeout overrides the per-check store timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// WithFailClosed makes the limiter reject requests during store outages.
func WithFailClosed() Option {
	return func(l *Limiter) { l.failClosed = true }
}

// WithClock overrides the limiter's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter over the given store.
func New(store CounterStore, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:   store,
		logger:  logger,
		timeout: DefaultStoreTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.failClosed {
		logger.Warn("rate limiter configured to fail closed: a counter store " +
			"outage will reject requests instead of allowing them")
	}

	return l
}

// CheckLimit evaluates the policy for a subject without recording the
// request. An active block always wins over window counting.
func (l *Limiter) CheckLimit(ctx context.Context, key string, p Policy) Decision {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := l.now()

	if d, blocked := l.checkBlock(ctx, key, p, now); blocked {
		return d
	}

	window := windowIndex(now, p.Window)
	count, err := l.store.Count(ctx, p.Name, key, window)
	if err != nil {
		return l.degraded(key, p, err)
	}

	return l.decide(key, p, now, count, false)
}

// CheckAndRecord atomically combines the check with counting the request.
// The store's atomic increment guarantees two concurrent requests cannot
// both pass a check only one should have passed.
func (l *Limiter) CheckAndRecord(ctx context.Context, key string, p Policy) Decision {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	now := l.now()

	if d, blocked := l.checkBlock(ctx, key, p, now); blocked {
		return d
	}

	window := windowIndex(now, p.Window)
	count, err := l.store.Increment(ctx, p.Name, key, window, p.Window)
	if err != nil {
		return l.degraded(key, p, err)
	}

	d := l.decide(key, p, now, count, true)

	// Write the block record exactly once, when the threshold is first
	// crossed. Later requests inside the block window hit checkBlock.
	if !d.Allowed && p.BlockDuration > 0 && count == int64(p.MaxRequests)+1 {
		until := now.Add(p.BlockDuration)
		if err := l.store.SetBlock(ctx, p.Name, key, until); err != nil {
			l.logger.Warn("failed to record rate limit block",
				"policy", p.Name, "key", key, "error", err)
		} else {
			d.BlockExpiresAt = until
			d.RetryAfter = p.BlockDuration
			l.logger.Warn("rate limit block triggered",
				"policy", p.Name, "key", key, "until", until)
		}
	}

	return d
}

// checkBlock returns a not-allowed decision when an unexpired block exists.
func (l *Limiter) checkBlock(ctx context.Context, key string, p Policy, now time.Time) (Decision, bool) {
	until, err := l.store.Block(ctx, p.Name, key)
	if err != nil {
		return l.degraded(key, p, err), true
	}
	if until.IsZero() || !until.After(now) {
		return Decision{}, false
	}

	return Decision{
		Allowed:        false,
		Remaining:      0,
		RetryAfter:     until.Sub(now),
		BlockExpiresAt: until,
	}, true
}

// decide turns a window count into a Decision. counted reports whether the
// current request is already included in count.
func (l *Limiter) decide(key string, p Policy, now time.Time, count int64, counted bool) Decision {
	effective := count
	if !counted {
		effective++
	}

	if effective > int64(p.MaxRequests) {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: untilNextWindow(now, p.Window),
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: p.MaxRequests - int(effective),
		Delay:     progressiveDelay(p, effective),
	}
}

// degraded applies the failure policy when the store cannot be reached.
func (l *Limiter) degraded(key string, p Policy, err error) Decision {
	l.logger.Warn("rate limit store unreachable",
		"policy", p.Name,
		"key", key,
		"fail_closed", l.failClosed,
		"error", errors.Join(ErrStoreUnavailable, err),
	)

	if l.failClosed {
		return Decision{Allowed: false, Degraded: true, RetryAfter: p.Window}
	}
	return Decision{Allowed: true, Remaining: p.MaxRequests, Degraded: true}
}

// progressiveDelay scales the advisory delay monotonically with how much of
// the quota is used, from BaseDelay at the first request up to MaxDelay at
// the quota boundary.
func progressiveDelay(p Policy, count int64) time.Duration {
	if p.BaseDelay <= 0 || p.MaxRequests <= 0 {
		return 0
	}

	maxDelay := p.MaxDelay
	if maxDelay < p.BaseDelay {
		maxDelay = p.BaseDelay
	}

	ratio := float64(count) / float64(p.MaxRequests)
	if ratio > 1 {
		ratio = 1
	}

	return p.BaseDelay + time.Duration(ratio*float64(maxDelay-p.BaseDelay))
}

// windowIndex computes the fixed window a moment falls into. Enforcement is
// always keyed on this clock-derived index, never on which rows happen to
// survive in the store.
func windowIndex(now time.Time, window time.Duration) int64 {
	return now.UnixMilli() / window.Milliseconds()
}

func untilNextWindow(now time.Time, window time.Duration) time.Duration {
	ms := window.Milliseconds()
	elapsed := now.UnixMilli() % ms
	return time.Duration(ms-elapsed) * time.Millisecond
}
