package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	v := NewVerifier("identity-secret", "https://auth.example.com")

	t.Run("round trip", func(t *testing.T) {
		token, err := v.Issue("kinde_1", "a@example.com", time.Hour)
		require.NoError(t, err)

		claims, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "kinde_1", claims.Subject)
		assert.Equal(t, "a@example.com", claims.Email)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.Issue("kinde_1", "", -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewVerifier("other-secret", "https://auth.example.com").Issue("kinde_1", "", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := NewVerifier("identity-secret", "https://evil.example.com").Issue("kinde_1", "", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		token, err := v.Issue("", "", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "kinde_1"})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unconfigured secret rejects everything", func(t *testing.T) {
		token, err := v.Issue("kinde_1", "", time.Hour)
		require.NoError(t, err)

		_, err = NewVerifier("", "").Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
