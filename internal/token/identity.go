package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultRole = "user"

// Identity is the claim set carried inside an access token.
type Identity struct {
	UserID     int64      `json:"user_id"`
	Email      string     `json:"email"`
	Username   string     `json:"username,omitempty"`
	FullName   string     `json:"full_name,omitempty"`
	Role       string     `json:"role"`
	IsVerified bool       `json:"is_verified"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

var algorithms = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

func signingMethod(alg string) (jwt.SigningMethod, bool) {
	m, ok := algorithms[alg]
	return m, ok
}

func stringClaim(claims jwt.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

func boolClaim(claims jwt.MapClaims, key string) bool {
	b, _ := claims[key].(bool)
	return b
}
