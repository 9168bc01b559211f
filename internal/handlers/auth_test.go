package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codementor-backend/internal/middleware"
	"codementor-backend/internal/models"
	"codementor-backend/internal/services"
	"codementor-backend/internal/token"
)

type stubAuthService struct {
	err          error
	user         *models.User
	logoutUserID int64
	logoutToken  string
	forgotCalls  int
	changedFor   int64
}

func (s *stubAuthService) Register(context.Context, models.RegisterRequest) (*models.AuthResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuthResponse{User: s.user, Tokens: &models.AuthTokens{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}}, nil
}

func (s *stubAuthService) Login(context.Context, models.LoginRequest) (*models.AuthResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuthResponse{User: s.user, Tokens: &models.AuthTokens{AccessToken: "a"}}, nil
}

func (s *stubAuthService) Logout(_ context.Context, userID int64, refreshToken string) error {
	s.logoutUserID, s.logoutToken = userID, refreshToken
	return s.err
}

func (s *stubAuthService) RefreshToken(context.Context, string) (*models.AuthTokens, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.AuthTokens{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (s *stubAuthService) VerifyEmail(context.Context, string) (*models.AuthResponse, error) {
	return &models.AuthResponse{User: s.user}, s.err
}

func (s *stubAuthService) ResendVerification(context.Context, string) error { return s.err }

func (s *stubAuthService) ForgotPassword(context.Context, models.ForgotPasswordRequest) error {
	s.forgotCalls++
	return s.err
}

func (s *stubAuthService) ResetPassword(context.Context, models.ResetPasswordRequest) error {
	return s.err
}

func (s *stubAuthService) GetProfile(context.Context, int64) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func (s *stubAuthService) UpdateProfile(context.Context, int64, models.UpdateProfileRequest) (*models.User, error) {
	return s.user, s.err
}

func (s *stubAuthService) ChangePassword(_ context.Context, userID int64, _ models.ChangePasswordRequest) error {
	s.changedFor = userID
	return s.err
}

func authRouter(svc authService) http.Handler {
	h := NewAuthHandler(svc, nil)
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/token/refresh", h.Refresh)
	r.Get("/verify-email", h.VerifyEmail)
	r.Post("/forgot-password", h.ForgotPassword)
	r.Post("/reset-password", h.ResetPassword)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), &token.Identity{UserID: 7})))
			})
		})
		r.Post("/logout", h.Logout)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Post("/change-password", h.ChangePassword)
	})
	return r
}

func TestRegister_Created(t *testing.T) {
	svc := &stubAuthService{user: &models.User{ID: 7, Email: "ada@example.com", PasswordHash: "secret-hash"}}
	rec := httptest.NewRecorder()
	body := `{"email":"ada@example.com","username":"ada","password":"password123","password_confirm":"password123"}`

	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(body)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_token":"a"`)
	assert.NotContains(t, rec.Body.String(), "secret-hash")
}

func TestAuthHandlers_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"email": "Invalid email format"}}, 400, "VALIDATION_ERROR"},
		{"conflict", &services.ConflictError{Message: "Email already in use"}, 409, "CONFLICT"},
		{"unauthorized", &services.UnauthorizedError{Message: "Invalid email or password"}, 401, "UNAUTHORIZED"},
		{"not found", &services.NotFoundError{Message: "User not found"}, 404, "NOT_FOUND"},
		{"rate limited", &services.RateLimitError{Message: "slow down"}, 429, "RATE_LIMITED"},
		{"internal", assert.AnError, 500, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"a@b.co","password":"x"}`))

			authRouter(&stubAuthService{err: tc.err}).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var body models.ErrorResponse
			decodeBody(t, rec, &body)
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, "/login", body.Path)
		})
	}
}

func TestValidationErrorCarriesFields(t *testing.T) {
	svc := &stubAuthService{err: &services.ValidationError{Fields: map[string]string{"email": "Invalid email format"}}}
	rec := httptest.NewRecorder()

	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{}`)))

	var body models.ErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "Invalid email format", body.Fields["email"])
}

func TestLogout_OptionalBody(t *testing.T) {
	svc := &stubAuthService{}

	rec := httptest.NewRecorder()
	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), svc.logoutUserID)
	assert.Empty(t, svc.logoutToken)

	rec = httptest.NewRecorder()
	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(`{"refresh_token":"r1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", svc.logoutToken)

	rec = httptest.NewRecorder()
	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgotPassword_AlwaysOK(t *testing.T) {
	svc := &stubAuthService{}
	rec := httptest.NewRecorder()

	authRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/forgot-password", strings.NewReader(`{"email":"ghost@example.com"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.forgotCalls)
	assert.Contains(t, rec.Body.String(), "If an account with that email exists")
}

func TestVerifyEmail_RequiresToken(t *testing.T) {
	rec := httptest.NewRecorder()
	authRouter(&stubAuthService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verify-email", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	authRouter(&stubAuthService{user: &models.User{ID: 7, IsVerified: true}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verify-email?token=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileRoutes(t *testing.T) {
	svc := &stubAuthService{user: &models.User{ID: 7, Email: "ada@example.com", FullName: "Ada"}}
	router := authRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	decodeBody(t, rec, &user)
	assert.Equal(t, "ada@example.com", user.Email)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/profile", strings.NewReader(`{"full_name":"Ada L"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/change-password",
		strings.NewReader(`{"current_password":"password123","new_password":"newpassword1","confirm_password":"newpassword1"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), svc.changedFor)
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler("chat-service", "production", map[string]string{"health": "/health"})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "chat-service", body["service"])
	assert.Equal(t, Version, body["version"])
	assert.Equal(t, "production", body["environment"])

	rec = httptest.NewRecorder()
	h.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"endpoints"`)
}
