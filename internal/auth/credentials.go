// ABOUTME: Agent credentials: HS256-signed JWTs issued at registration.
// ABOUTME: A valid credential lets an agent reclaim its ID after a dropped connection.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Credentials issues and verifies agent credentials for one network.
type Credentials struct {
	secret    []byte
	networkID string
	ttl       time.Duration
}

// NewCredentials creates a credential authority. ttl <= 0 selects DefaultTTL.
func NewCredentials(secret []byte, networkID string, ttl time.Duration) *Credentials {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Credentials{secret: secret, networkID: networkID, ttl: ttl}
}

// Issue creates a credential for the given agent ID.
func (c *Credentials) Issue(agentID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": agentID,
		"net": c.networkID,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify validates a credential and returns the agent ID from the "sub" claim.
// A credential issued for a different network is rejected.
func (c *Credentials) Verify(tokenString string) (agentID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if net, ok := claims["net"].(string); ok && net != "" && net != c.networkID {
		return "", fmt.Errorf("%w: credential for network %q", ErrInvalidToken, net)
	}
	return sub, nil
}
