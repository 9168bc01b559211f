package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Verifier checks bearer tokens against a pre-shared HMAC secret. It performs
// no I/O; given the same token and clock reading the result is identical.
type Verifier struct {
	secret    []byte
	algorithm string
	parser    *jwt.Parser
	now       func() time.Time
	logger    *zap.Logger
}

type VerifierOption func(*Verifier)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(secret, algorithm string, logger *zap.Logger, opts ...VerifierOption) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	algorithm = strings.ToUpper(algorithm)
	if _, ok := signingMethod(algorithm); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := &Verifier{
		secret:    []byte(secret),
		algorithm: algorithm,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{algorithm}),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v, nil
}

func (v *Verifier) Algorithm() string { return v.algorithm }

// Verify parses and validates raw, returning the embedded identity. Failures
// wrap one of ErrMalformedToken, ErrInvalidSignature, ErrTokenExpired or
// ErrMissingSubject.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	id, err := v.verify(raw)
	if err != nil {
		v.logger.Warn("token verification failed",
			zap.String("reason", Reason(err)),
			zap.Error(err),
		)
		return nil, err
	}

	v.logger.Info("token verified", zap.Int64("user_id", id.UserID))
	return id, nil
}

func (v *Verifier) verify(raw string) (*Identity, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil {
		return nil, v.classify(err, claims)
	}

	userID, err := subject(claims)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		UserID:     userID,
		Email:      stringClaim(claims, "email"),
		Username:   stringClaim(claims, "username"),
		FullName:   stringClaim(claims, "full_name"),
		Role:       stringClaim(claims, "role"),
		IsVerified: boolClaim(claims, "is_verified"),
	}
	if id.Role == "" {
		id.Role = DefaultRole
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time.UTC()
		id.ExpiresAt = &t
	}
	return id, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return v.secret, nil
}

// classify maps parser errors onto the package sentinels. A token whose exp
// is already in the past reports ErrTokenExpired even when its signature is
// also bad, so the classification of stale tokens never depends on the key.
func (v *Verifier) classify(err error, claims jwt.MapClaims) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		if v.expired(claims) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}

func (v *Verifier) expired(claims jwt.MapClaims) bool {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !v.now().Before(exp.Time)
}

// subject accepts an integer user_id encoded as a JSON number or a numeric
// string. Zero and negative ids are rejected.
func subject(claims jwt.MapClaims) (int64, error) {
	var (
		id  int64
		err error
	)
	switch raw := claims["user_id"].(type) {
	case json.Number:
		id, err = raw.Int64()
		if err != nil {
			var f float64
			if f, err = raw.Float64(); err == nil {
				if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
					err = errors.New("not an integer")
				} else {
					id = int64(f)
				}
			}
		}
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case nil:
		return 0, fmt.Errorf("%w: claim absent", ErrMissingSubject)
	default:
		return 0, fmt.Errorf("%w: unexpected type %T", ErrMissingSubject, raw)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingSubject, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: non-positive id %d", ErrMissingSubject, id)
	}
	return id, nil
}
