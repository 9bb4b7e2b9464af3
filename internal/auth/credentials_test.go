// ABOUTME: Tests for agent credential issue/verify round trips.
// ABOUTME: Covers tampering, expiry, wrong network, and missing claims.

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	c := NewCredentials([]byte("test-secret"), "net-1", time.Hour)

	token, err := c.Issue("agent-a")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	agentID, err := c.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-a", agentID)
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewCredentials([]byte("secret-one"), "net-1", time.Hour)
	verifier := NewCredentials([]byte("secret-two"), "net-1", time.Hour)

	token, err := issuer.Issue("agent-a")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongNetwork(t *testing.T) {
	issuer := NewCredentials([]byte("shared"), "net-1", time.Hour)
	verifier := NewCredentials([]byte("shared"), "net-2", time.Hour)

	token, err := issuer.Issue("agent-a")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	c := NewCredentials([]byte("test-secret"), "net-1", time.Hour)

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "agent-a",
		"net": "net-1",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = c.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerify_MissingSubject(t *testing.T) {
	c := NewCredentials([]byte("test-secret"), "net-1", time.Hour)

	claims := jwt.MapClaims{"net": "net-1", "exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = c.Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestVerify_Garbage(t *testing.T) {
	c := NewCredentials([]byte("test-secret"), "net-1", time.Hour)
	_, err := c.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
