package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer signs access tokens that a Verifier built from the same secret and
// algorithm accepts.
type Issuer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret, algorithm string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	method, ok := signingMethod(strings.ToUpper(algorithm))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return &Issuer{secret: []byte(secret), method: method, ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed access token for id and its expiry time.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	role := id.Role
	if role == "" {
		role = DefaultRole
	}

	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwt.MapClaims{
		"user_id":     id.UserID,
		"email":       id.Email,
		"username":    id.Username,
		"full_name":   id.FullName,
		"role":        role,
		"is_verified": id.IsVerified,
		"token_type":  "access",
		"jti":         uuid.NewString(),
		"iat":         now.Unix(),
		"exp":         exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, exp, nil
}
