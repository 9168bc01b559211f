package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"codementor-backend/internal/models"
	"codementor-backend/internal/repository"
	"codementor-backend/internal/sanitize"
	"codementor-backend/internal/token"
)

const (
	verifyTokenTTL   = 24 * time.Hour
	resetTokenTTL    = time.Hour
	emailThrottleTTL = 60 * time.Second
	emailMaxRetries  = 3
)

type userRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	VerifyEmail(ctx context.Context, id int64) error
	UpdateLastLogin(ctx context.Context, id int64) error
}

type tokenStore interface {
	Save(ctx context.Context, kind, token string, userID int64, ttl time.Duration) error
	Lookup(ctx context.Context, kind, token string) (int64, error)
	Consume(ctx context.Context, kind, token string) (int64, error)
	Delete(ctx context.Context, kind, token string) error
	Throttle(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type emailQueue interface {
	Enqueue(ctx context.Context, job models.EmailJob) error
}

type accessIssuer interface {
	Issue(id token.Identity) (string, time.Time, error)
	TTL() time.Duration
}

type AuthOptions struct {
	BcryptCost int
	RefreshTTL time.Duration
}

type AuthService struct {
	users  userRepository
	tokens tokenStore
	emails emailQueue
	issuer accessIssuer
	opts   AuthOptions
	logger *zap.Logger
}

func NewAuthService(users userRepository, tokens tokenStore, emails emailQueue, issuer accessIssuer, opts AuthOptions, logger *zap.Logger) *AuthService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		emails: emails,
		issuer: issuer,
		opts:   opts,
		logger: logger,
	}
}

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	req.FullName = sanitize.String(req.FullName, 0)

	// Validate all fields at once
	fieldErrors := make(map[string]string)
	if req.Username != "" && !usernameRegex.MatchString(req.Username) {
		fieldErrors["username"] = "Username may only contain letters, digits, '.', '_' and '-'"
	}
	if sanitize.ContainsMarkup(req.FullName) {
		fieldErrors["full_name"] = "Full name contains invalid content"
	}
	if err := validatePassword(req.Password); err != nil {
		fieldErrors["password"] = err.Error()
	}
	if err := mergeFields(validateStruct(&req), fieldErrors); err != nil {
		return nil, err
	}

	// Check uniqueness
	_, err := s.users.GetByEmail(ctx, req.Email)
	if err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         token.DefaultRole,
		IsVerified:   false,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: "Email or username already in use"}
		}
		return nil, err
	}

	s.sendVerification(ctx, user)

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return &models.AuthResponse{User: user, Tokens: tokens}, nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, verifyToken string) (*models.AuthResponse, error) {
	userID, err := s.tokens.Consume(ctx, repository.KindEmailVerify, verifyToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, &NotFoundError{Message: "Invalid or expired verification token"}
		}
		return nil, err
	}

	if err := s.users.VerifyEmail(ctx, userID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{User: user, Tokens: tokens}, nil
}

func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Email not found"}
		}
		return err
	}
	if user.IsVerified {
		return &ConflictError{Message: "Email is already verified"}
	}

	allowed, err := s.tokens.Throttle(ctx, fmt.Sprintf("resend_limit:%d", user.ID), emailThrottleTTL)
	if err != nil {
		return err
	}
	if !allowed {
		return &RateLimitError{Message: "Please wait 60 seconds before requesting another verification email"}
	}

	s.sendVerification(ctx, user)
	return nil
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to record last login", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{User: user, Tokens: tokens}, nil
}

// RefreshToken rotates a refresh token: the presented one is consumed and a
// new pair is issued.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	if refreshToken == "" {
		return nil, &ValidationError{Fields: map[string]string{"refresh_token": "This field is required"}}
	}

	userID, err := s.tokens.Consume(ctx, repository.KindRefresh, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
		}
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, &UnauthorizedError{Message: "Account is deactivated"}
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes refreshToken when it belongs to userID. Unknown tokens are
// ignored so the call is idempotent.
func (s *AuthService) Logout(ctx context.Context, userID int64, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	owner, err := s.tokens.Lookup(ctx, repository.KindRefresh, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	if owner != userID {
		s.logger.Warn("logout with foreign refresh token", zap.Int64("user_id", userID))
		return nil
	}
	return s.tokens.Delete(ctx, repository.KindRefresh, refreshToken)
}

func (s *AuthService) GetProfile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, req models.UpdateProfileRequest) (*models.User, error) {
	fieldErrors := make(map[string]string)
	if req.Email != nil {
		e := normalizeEmail(*req.Email)
		req.Email = &e
	}
	if req.Username != nil {
		u := strings.TrimSpace(*req.Username)
		req.Username = &u
		if u != "" && !usernameRegex.MatchString(u) {
			fieldErrors["username"] = "Username may only contain letters, digits, '.', '_' and '-'"
		}
	}
	if req.FullName != nil {
		n := sanitize.String(*req.FullName, 0)
		req.FullName = &n
		if sanitize.ContainsMarkup(n) {
			fieldErrors["full_name"] = "Full name contains invalid content"
		}
	}
	if err := mergeFields(validateStruct(&req), fieldErrors); err != nil {
		return nil, err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	emailChanged := false
	if req.Email != nil && *req.Email != "" && *req.Email != user.Email {
		existing, err := s.users.GetByEmail(ctx, *req.Email)
		if err == nil && existing.ID != user.ID {
			return nil, &ConflictError{Message: "Email already in use"}
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		user.Email = *req.Email
		user.IsVerified = false
		emailChanged = true
	}
	if req.Username != nil && *req.Username != "" {
		user.Username = *req.Username
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &ConflictError{Message: "Email or username already in use"}
		}
		return nil, err
	}

	if emailChanged {
		s.sendVerification(ctx, user)
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req models.ChangePasswordRequest) error {
	fieldErrors := make(map[string]string)
	if err := validatePassword(req.NewPassword); err != nil {
		fieldErrors["new_password"] = err.Error()
	} else if req.NewPassword == req.CurrentPassword {
		fieldErrors["new_password"] = "New password must differ from the current password"
	}
	if err := mergeFields(validateStruct(&req), fieldErrors); err != nil {
		return err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return &UnauthorizedError{Message: "Current password is incorrect"}
	}

	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.Int64("user_id", user.ID))
	return nil
}

// ForgotPassword queues a reset email when the account exists. It reports
// success either way so callers cannot enumerate registered addresses.
func (s *AuthService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) error {
	req.Email = normalizeEmail(req.Email)
	if err := validateStruct(&req); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	allowed, err := s.tokens.Throttle(ctx, fmt.Sprintf("reset_limit:%d", user.ID), emailThrottleTTL)
	if err != nil {
		return err
	}
	if !allowed {
		s.logger.Info("password reset throttled", zap.Int64("user_id", user.ID))
		return nil
	}

	resetToken, err := generateToken(32)
	if err != nil {
		return err
	}
	if err := s.tokens.Save(ctx, repository.KindPasswordReset, resetToken, user.ID, resetTokenTTL); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	s.enqueue(ctx, models.EmailPasswordReset, user.Email, resetToken)
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest) error {
	fieldErrors := make(map[string]string)
	if err := validatePassword(req.NewPassword); err != nil {
		fieldErrors["new_password"] = err.Error()
	}
	if err := mergeFields(validateStruct(&req), fieldErrors); err != nil {
		return err
	}

	userID, err := s.tokens.Consume(ctx, repository.KindPasswordReset, req.Token)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return &ValidationError{Fields: map[string]string{"token": "Invalid or expired reset token"}}
		}
		return err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return err
	}
	s.logger.Info("password reset", zap.Int64("user_id", user.ID))
	return nil
}

func (s *AuthService) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	s.enqueue(ctx, models.EmailPasswordChanged, user.Email, "")
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, _, err := s.issuer.Issue(token.Identity{
		UserID:     user.ID,
		Email:      user.Email,
		Username:   user.Username,
		FullName:   user.FullName,
		Role:       user.Role,
		IsVerified: user.IsVerified,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Save(ctx, repository.KindRefresh, refreshToken, user.ID, s.opts.RefreshTTL); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.issuer.TTL().Seconds()),
	}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) {
	verifyToken, err := generateToken(32)
	if err != nil {
		s.logger.Error("failed to generate verification token", zap.Error(err))
		return
	}
	if err := s.tokens.Save(ctx, repository.KindEmailVerify, verifyToken, user.ID, verifyTokenTTL); err != nil {
		s.logger.Error("failed to store verification token", zap.Int64("user_id", user.ID), zap.Error(err))
		return
	}
	s.enqueue(ctx, models.EmailVerification, user.Email, verifyToken)
}

// enqueue hands an email to the worker pool. Delivery problems never fail the
// request that triggered them.
func (s *AuthService) enqueue(ctx context.Context, jobType, to, tok string) {
	job := models.EmailJob{
		ID:         uuid.NewString(),
		Type:       jobType,
		To:         to,
		Token:      tok,
		MaxRetries: emailMaxRetries,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.emails.Enqueue(ctx, job); err != nil {
		s.logger.Error("failed to queue email",
			zap.String("type", jobType),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return fmt.Errorf("Password must be at least 8 characters")
	}
	if len(pw) > 72 {
		return fmt.Errorf("Password must be at most 72 bytes")
	}
	hasNumber := false
	for _, ch := range pw {
		if unicode.IsDigit(ch) {
			hasNumber = true
			break
		}
	}
	if !hasNumber {
		return fmt.Errorf("Password must contain at least one number")
	}
	return nil
}
