package secretx

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	t.Run("uses configured secret when long enough", func(t *testing.T) {
		secret := strings.Repeat("s", MinSecretLength)
		m, err := NewManager(secret, testLogger())
		require.NoError(t, err)
		require.Equal(t, []byte(secret), m.Current())
		require.False(t, m.Generated())
	})

	t.Run("generates when configured secret is absent", func(t *testing.T) {
		m, err := NewManager("", testLogger())
		require.NoError(t, err)
		require.Len(t, m.Current(), 32)
		require.True(t, m.Generated())
	})

	t.Run("generates when configured secret is too short", func(t *testing.T) {
		m, err := NewManager("too-short", testLogger())
		require.NoError(t, err)
		require.NotEqual(t, []byte("too-short"), m.Current())
		require.True(t, m.Generated())
	})
}

func TestVerifyCandidates(t *testing.T) {
	t.Parallel()

	m, err := NewManager(strings.Repeat("a", MinSecretLength), testLogger())
	require.NoError(t, err)

	t.Run("starts with just the current secret", func(t *testing.T) {
		candidates := m.VerifyCandidates()
		require.Len(t, candidates, 1)
		require.Equal(t, m.Current(), candidates[0])
	})

	t.Run("rotation retains previous secrets most recent first", func(t *testing.T) {
		first := m.Current()
		require.NoError(t, m.Rotate())
		second := m.Current()
		require.NoError(t, m.Rotate())

		candidates := m.VerifyCandidates()
		require.Len(t, candidates, 3)
		require.Equal(t, m.Current(), candidates[0])
		require.Equal(t, second, candidates[1])
		require.Equal(t, first, candidates[2])
	})

	t.Run("third rotation evicts the oldest secret", func(t *testing.T) {
		oldest := m.VerifyCandidates()[2]
		require.NoError(t, m.Rotate())

		candidates := m.VerifyCandidates()
		require.Len(t, candidates, 3)
		for _, c := range candidates {
			require.NotEqual(t, oldest, c)
		}
	})
}

func TestRotateChangesCurrent(t *testing.T) {
	t.Parallel()

	m, err := NewManager(strings.Repeat("b", MinSecretLength), testLogger())
	require.NoError(t, err)

	before := m.Current()
	require.NoError(t, m.Rotate())
	require.NotEqual(t, before, m.Current())

	// The rotated-out secret is still a verify candidate.
	require.Contains(t, m.VerifyCandidates(), before)
}
