package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/internal/access/store/drivers/sqlite"
	"github.com/sgsgita/alumnigate/pkg/limitx"
	"github.com/sgsgita/alumnigate/pkg/secretx"
	"github.com/sgsgita/alumnigate/pkg/tokenx"
)

// testClock is a settable clock shared by every component under test so
// window math, token expiry and consent validity all agree.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures notifications synchronously so tests can assert
// on them without sleeping. Services invoke Notify from a goroutine, so the
// capture is mutex-guarded and exposed through a polling helper.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	Recipient string
	Kind      string
	Data      map[string]string
}

func (n *recordingNotifier) Notify(_ context.Context, recipient, kind string, data map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Recipient: recipient, Kind: kind, Data: data})
}

// snapshot returns a copy of everything captured so far.
func (n *recordingNotifier) snapshot() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentNotification, len(n.sent))
	copy(out, n.sent)
	return out
}

// waitFor blocks until at least want notifications arrived or the deadline
// passes, then returns a copy of everything captured.
func (n *recordingNotifier) waitFor(t *testing.T, want int) []sentNotification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		n.mu.Lock()
		got := len(n.sent)
		n.mu.Unlock()
		if got >= want || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentNotification, len(n.sent))
	copy(out, n.sent)
	require.GreaterOrEqual(t, len(out), want)
	return out
}

// testEnv wires the full service stack over an in-memory database.
type testEnv struct {
	Store    store.Store
	Secrets  *secretx.Manager
	Tokens   *tokenx.Service
	Limiter  *limitx.Limiter
	Notifier *recordingNotifier
	Clock    *testClock
}

const testSigningSecret = "0123456789abcdef0123456789abcdef"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	secrets, err := secretx.NewManager(testSigningSecret, logger)
	require.NoError(t, err)

	clock := newTestClock()

	return &testEnv{
		Store:    st,
		Secrets:  secrets,
		Tokens:   &tokenx.Service{Secrets: secrets, Now: clock.Now},
		Limiter:  limitx.New(st.RateLimits(), logger, limitx.WithClock(clock.Now)),
		Notifier: &recordingNotifier{},
		Clock:    clock,
	}
}

func (e *testEnv) invitations() *InvitationService {
	return &InvitationService{
		Store:    e.Store,
		Tokens:   e.Tokens,
		Limiter:  e.Limiter,
		Notifier: e.Notifier,
		Now:      e.Clock.Now,
	}
}

func (e *testEnv) onboarding() *OnboardingService {
	return &OnboardingService{Store: e.Store, Now: e.Clock.Now}
}

func (e *testEnv) verification() *VerificationService {
	return &VerificationService{
		Store:    e.Store,
		Secrets:  e.Secrets,
		Limiter:  e.Limiter,
		Notifier: e.Notifier,
		Now:      e.Clock.Now,
	}
}

func (e *testEnv) consent() *ConsentService {
	return &ConsentService{
		Store:    e.Store,
		Codes:    e.verification(),
		Notifier: e.Notifier,
		Now:      e.Clock.Now,
	}
}
