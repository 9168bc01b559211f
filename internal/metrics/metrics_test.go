package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/health", 200, time.Millisecond)
	m.TokenVerification("ok")
	m.ProviderCall("openai", "ok", time.Second)
	m.EmailJob("password-reset", "sent")
	m.RateLimited()
	assert.Nil(t, m.Registry())

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCounters(t *testing.T) {
	m := New("chat")
	m.TokenVerification("token_expired")
	m.TokenVerification("token_expired")
	m.ProviderCall("openai", "error", 2*time.Second)
	m.RateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokenVerification.WithLabelValues("token_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("openai", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("auth")
	m.ObserveRequest("POST", "/api/auth/login", 200, 20*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `http_requests_total{method="POST",route="/api/auth/login",service="auth",status="200"} 1`)
}
