package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"codementor-backend/internal/metrics"
	"codementor-backend/internal/token"
)

type contextKey string

const IdentityKey contextKey = "identity"

// InvalidTokenMessage is the only detail clients see for a rejected token.
const InvalidTokenMessage = "invalid or expired token"

type tokenVerifier interface {
	Verify(raw string) (*token.Identity, error)
}

// AuthGate guards protected routes with bearer token verification.
type AuthGate struct {
	verifier tokenVerifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewAuthGate(verifier tokenVerifier, logger *zap.Logger, m *metrics.Metrics) *AuthGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthGate{verifier: verifier, logger: logger, metrics: m}
}

// Middleware verifies the bearer token and attaches the identity to the request context.
func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			g.metrics.TokenVerification("unauthenticated")
			w.Header().Set("WWW-Authenticate", `Bearer`)
			WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication credentials were not provided")
			return
		}

		id, err := g.verifier.Verify(raw)
		if err != nil {
			reason := token.Reason(err)
			g.metrics.TokenVerification(reason)
			g.logger.Info("rejected bearer token",
				zap.String("reason", reason),
				zap.String("path", r.URL.Path),
				zap.String("request_id", r.Header.Get(RequestIDHeader)),
			)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			WriteError(w, r, http.StatusUnauthorized, "INVALID_TOKEN", InvalidTokenMessage)
			return
		}

		g.metrics.TokenVerification("ok")
		annotateUser(r.Context(), id.UserID)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// bearerToken extracts the credential from "Bearer <token>". The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", false
	}
	return raw, true
}

func WithIdentity(ctx context.Context, id *token.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentity returns the identity placed by AuthGate, or nil.
func GetIdentity(ctx context.Context) *token.Identity {
	id, _ := ctx.Value(IdentityKey).(*token.Identity)
	return id
}

// GetUserID returns the authenticated user id, or 0.
func GetUserID(ctx context.Context) int64 {
	if id := GetIdentity(ctx); id != nil {
		return id.UserID
	}
	return 0
}
