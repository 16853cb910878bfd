package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "wyclient"

// Signer issues and verifies the HS256 session tokens carried in the
// console cookie. A token only names a session; the backend token never
// leaves the server.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer. The secret must not be empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("session: signing secret is empty")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// Sign returns a token for the session that expires with it.
func (s *Signer) Sign(sess *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  sess.ID,
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	if !sess.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(sess.ExpiresAt)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns the session id it names.
func (s *Signer) Parse(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("session: %s: %w", classifyTokenError(err), err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("session: invalid token")
	}
	return claims.Subject, nil
}

func classifyTokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid token signature"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "invalid token issuer"
	case strings.Contains(err.Error(), "signing method"):
		return "disallowed signing algorithm"
	default:
		return "invalid token"
	}
}
