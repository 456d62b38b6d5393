package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		hash, err := HashPassword("correct horse battery staple")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))
		require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		hash, err := HashPassword("secret-one")
		require.NoError(t, err)
		require.Error(t, VerifyPassword("secret-two", hash))
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		a, err := HashPassword("same input")
		require.NoError(t, err)
		b, err := HashPassword("same input")
		require.NoError(t, err)
		require.NotEqual(t, a, b) // random salt
	})

	t.Run("malformed hash rejected", func(t *testing.T) {
		require.Error(t, VerifyPassword("pw", "not-a-phc-string"))
		require.Error(t, VerifyPassword("pw", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"))
	})
}
