// Package secretx owns the signing secrets used to authenticate stateless
// tokens. A Manager holds exactly one current secret plus up to two previous
// secrets retained verify-only so that tokens issued shortly before a
// rotation keep validating across the rotation boundary.
package secretx

import (
	"log/slog"
	"sync"

	"github.com/sgsgita/alumnigate/pkg/cryptox"
)

// MinSecretLength is the minimum accepted length for an externally supplied
// signing secret. Anything shorter is treated as absent and replaced with a
// generated secret.
const MinSecretLength = 32

// maxPrevious caps how many rotated-out secrets stay valid for verification.
// A secret evicted past this window can never verify a token again; tokens
// are expected to expire well before two rotations elapse.
const maxPrevious = 2

// Manager holds the current signing secret and recently rotated-out secrets.
// Rotation is an in-process mutation: a multi-instance deployment must supply
// the secret externally and rotate it out-of-band, or tokens issued by one
// instance will fail verification on another.
type Manager struct {
	mu       sync.RWMutex
	current  []byte
	previous [][]byte // most recent first

	generated bool
}

// NewManager builds a Manager from a configured secret. If the configured
// value is empty or shorter than MinSecretLength, a random 32-byte secret is
// generated instead and a warning is logged: a generated-at-boot secret is
// only safe for single-instance deployments.
func NewManager(configured string, logger *slog.Logger) (*Manager, error) {
	if len(configured) >= MinSecretLength {
		return &Manager{current: []byte(configured)}, nil
	}

	if configured != "" {
		logger.Warn("configured signing secret is too short, ignoring it",
			"min_length", MinSecretLength,
			"got_length", len(configured),
		)
	}

	secret, err := cryptox.GenerateSecret(cryptox.SecretSize256)
	if err != nil {
		return nil, err
	}

	logger.Warn("no usable signing secret configured, generated one at boot; " +
		"tokens will not verify across instances or restarts until a secret " +
		"is supplied externally")

	return &Manager{current: secret, generated: true}, nil
}

// Current returns the secret used to sign newly issued tokens.
func (m *Manager) Current() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// VerifyCandidates returns every secret a token signature may verify against,
// most recent first. Previous secrets are verify-only and never sign.
func (m *Manager) VerifyCandidates() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([][]byte, 0, 1+len(m.previous))
	candidates = append(candidates, m.current)
	candidates = append(candidates, m.previous...)
	return candidates
}

// Rotate pushes the current secret onto the previous list (evicting the
// oldest past the retention cap) and generates a new current secret. Tokens
// signed under the now-previous secret keep validating until that secret is
// itself evicted by further rotations.
func (m *Manager) Rotate() error {
	next, err := cryptox.GenerateSecret(cryptox.SecretSize256)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.previous = append([][]byte{m.current}, m.previous...)
	if len(m.previous) > maxPrevious {
		m.previous = m.previous[:maxPrevious]
	}
	m.current = next
	m.generated = true

	return nil
}

// Generated reports whether the current secret was generated in-process
// rather than supplied externally.
func (m *Manager) Generated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generated
}
