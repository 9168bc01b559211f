package token

import "errors"

// Verification failures. Verify wraps exactly one of these.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrMissingSubject   = errors.New("token has no usable user_id")
)

// Configuration failures returned by NewVerifier and NewIssuer.
var (
	ErrMissingSecret        = errors.New("signing secret is not configured")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// Reason returns a stable label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMissingSubject):
		return "missing_subject"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	default:
		return "unknown"
	}
}
