package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Robertja98/simple-auth/internal/audit"
	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/ratelimit"
	"github.com/Robertja98/simple-auth/internal/repository"
	"github.com/Robertja98/simple-auth/internal/security"
	"github.com/Robertja98/simple-auth/internal/session"
	"github.com/Robertja98/simple-auth/pkg/errors"
	"github.com/Robertja98/simple-auth/pkg/validator"
)

// Options carries the facade's configurable behavior.
type Options struct {
	RequireEmailVerification bool
	CsrfTokenLength          int
}

type AuthService struct {
	userRepo     *repository.UserRepository
	attemptRepo  *repository.LoginAttemptRepository
	activityRepo *repository.ActivityLogRepository
	sessions     *session.Manager
	guard        *ratelimit.LoginGuard
	hasher       *security.PasswordHasher
	validator    *validator.Validator
	rateLimiter  *ratelimit.RateLimiter
	auditLogger  *audit.Logger
	opts         Options

	// decoyHash is verified against when the identifier resolves to no
	// user, so the lookup path costs the same either way.
	decoyHash string
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo *repository.UserRepository,
	attemptRepo *repository.LoginAttemptRepository,
	activityRepo *repository.ActivityLogRepository,
	sessions *session.Manager,
	guard *ratelimit.LoginGuard,
	hasher *security.PasswordHasher,
	v *validator.Validator,
	rateLimiter *ratelimit.RateLimiter,
	auditLogger *audit.Logger,
	opts Options,
) *AuthService {
	if opts.CsrfTokenLength <= 0 {
		opts.CsrfTokenLength = 32
	}

	decoyHash, _ := hasher.Hash("decoy-password-for-unknown-users")

	return &AuthService{
		userRepo:     userRepo,
		attemptRepo:  attemptRepo,
		activityRepo: activityRepo,
		sessions:     sessions,
		guard:        guard,
		hasher:       hasher,
		validator:    v,
		rateLimiter:  rateLimiter,
		auditLogger:  auditLogger,
		opts:         opts,
		decoyHash:    decoyHash,
	}
}

// Register registers a new user
func (s *AuthService) Register(ctx context.Context, req *models.CreateUserRequest) (*models.RegisterResult, error) {
	// Rate limiting
	if err := s.rateLimiter.CheckLimit("register"); err != nil {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelWarning,
			Action:   "REGISTER_RATE_LIMITED",
			Success:  false,
			ErrorMsg: "rate limit exceeded",
		})
		return nil, err
	}

	// Validate input
	req.Username = s.validator.SanitizeString(req.Username)
	req.Email = s.validator.SanitizeString(req.Email)

	if result := s.validator.ValidateRegistration(req.Username, req.Email, req.Password); !result.Valid {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelWarning,
			Action:   "REGISTER_INVALID_INPUT",
			Success:  false,
			ErrorMsg: fmt.Sprintf("%d validation errors", len(result.Errors)),
		})
		return nil, errors.NewValidationError(result.Errors)
	}

	// Check if user already exists. The error stays generic so callers
	// cannot tell which of the two fields collided.
	exists, err := s.userRepo.Exists(req.Username, req.Email)
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}
	if exists {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelWarning,
			Action:   "REGISTER_DUPLICATE",
			Success:  false,
			ErrorMsg: "username or email already exists",
		})
		return nil, errors.ErrUserAlreadyExists
	}

	// Hash password
	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelError,
			Action:   "REGISTER_HASH_FAILED",
			Success:  false,
			ErrorMsg: err.Error(),
		})
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Generate verification token when email verification is configured
	verificationToken := ""
	if s.opts.RequireEmailVerification {
		verificationToken, err = security.GenerateToken(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate verification token: %w", err)
		}
	}

	user := &models.User{
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      passwordHash,
		IsActive:          true,
		IsVerified:        !s.opts.RequireEmailVerification,
		VerificationToken: verificationToken,
	}

	if err := s.userRepo.Create(user); err != nil {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelError,
			Action:   "REGISTER_STORE_ERROR",
			Success:  false,
			ErrorMsg: err.Error(),
		})
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	details, _ := json.Marshal(map[string]string{
		"username": user.Username,
		"email":    user.Email,
	})
	s.auditLogger.LogActivity(user.ID, audit.ActionUserRegistered, string(details), "", "")

	return &models.RegisterResult{
		UserID:               user.ID,
		RequiresVerification: s.opts.RequireEmailVerification,
		VerificationToken:    verificationToken,
	}, nil
}

// Login authenticates a user. On success it returns the session details and
// a populated session context for the caller to persist.
//
// Failure messages vary in specificity on purpose: unknown identifier and
// wrong password both come back as invalid credentials, while locked,
// unverified and disabled accounts get distinct messages.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, *SessionContext, error) {
	identifier := s.validator.SanitizeString(req.UsernameOrEmail)

	// Sliding-window rate limit over recorded attempts. The attempt is
	// recorded either way; a rejected call never touches the user record.
	if rlErr := s.guard.CheckRateLimit(identifier, req.IPAddress); rlErr != nil {
		if err := s.attemptRepo.Record(identifier, req.IPAddress, false); err != nil {
			return nil, nil, fmt.Errorf("login failed: %w", err)
		}
		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			Action:    "LOGIN_RATE_LIMITED",
			Details:   identifier,
			IPAddress: req.IPAddress,
			Success:   false,
			ErrorMsg:  "rate limit exceeded",
		})
		return nil, nil, rlErr
	}

	// Every login call opens with a failed attempt row; the happy path adds
	// a second row marked successful below.
	if err := s.attemptRepo.Record(identifier, req.IPAddress, false); err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	user, err := s.userRepo.GetByUsernameOrEmail(identifier)
	if err == errors.ErrUserNotFound {
		// Burn a verification so unknown identifiers cost the same as
		// known ones.
		s.hasher.Verify(req.Password, s.decoyHash)

		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			Action:    "LOGIN_USER_NOT_FOUND",
			Details:   identifier,
			IPAddress: req.IPAddress,
			Success:   false,
		})
		return nil, nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	// Check if account is locked; an expired lock is cleared here.
	if err := s.guard.CheckLockout(user); err != nil {
		if err == errors.ErrAccountLocked {
			s.auditLogger.Log(&audit.Event{
				Level:     audit.LevelWarning,
				UserID:    &user.ID,
				Action:    "LOGIN_ACCOUNT_LOCKED",
				IPAddress: req.IPAddress,
				Success:   false,
			})
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	// Verify password
	valid, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		s.auditLogger.Log(&audit.Event{
			Level:    audit.LevelError,
			UserID:   &user.ID,
			Action:   "LOGIN_VERIFY_ERROR",
			Success:  false,
			ErrorMsg: err.Error(),
		})
		return nil, nil, fmt.Errorf("authentication failed: %w", err)
	}

	if !valid {
		locked, ferr := s.guard.RegisterFailure(user.ID)
		if ferr == nil && locked {
			s.auditLogger.Log(&audit.Event{
				Level:     audit.LevelCritical,
				UserID:    &user.ID,
				Action:    "LOGIN_ACCOUNT_LOCKED_AUTO",
				IPAddress: req.IPAddress,
				Success:   false,
				ErrorMsg:  "account locked after repeated failed attempts",
			})
		}

		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			UserID:    &user.ID,
			Action:    "LOGIN_INVALID_PASSWORD",
			IPAddress: req.IPAddress,
			Success:   false,
		})

		return nil, nil, errors.ErrInvalidCredentials
	}

	// Check if email verification is required
	if s.opts.RequireEmailVerification && !user.IsVerified {
		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			UserID:    &user.ID,
			Action:    "LOGIN_UNVERIFIED",
			IPAddress: req.IPAddress,
			Success:   false,
		})
		return nil, nil, errors.ErrEmailNotVerified
	}

	// Check if account is active
	if !user.IsActive {
		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			UserID:    &user.ID,
			Action:    "LOGIN_ACCOUNT_DISABLED",
			IPAddress: req.IPAddress,
			Success:   false,
		})
		return nil, nil, errors.ErrAccountDisabled
	}

	// Successful login
	if err := s.attemptRepo.Record(identifier, req.IPAddress, true); err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}
	if err := s.userRepo.RecordLoginSuccess(user.ID); err != nil {
		return nil, nil, fmt.Errorf("login failed: %w", err)
	}

	sess, err := s.sessions.Create(user.ID, req.RememberMe, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.auditLogger.LogActivity(user.ID, audit.ActionUserLogin, "Successful login", req.IPAddress, req.UserAgent)

	sctx := &SessionContext{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		SessionToken: sess.SessionToken,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
	}

	return &models.LoginResponse{
		User:         user.Profile(),
		SessionToken: sess.SessionToken,
		ExpiresAt:    sess.ExpiresAt,
	}, sctx, nil
}

// Logout deletes the context's session row, logs the activity and clears
// the context. Safe to call on an unauthenticated context.
func (s *AuthService) Logout(ctx context.Context, sctx *SessionContext) error {
	if sctx == nil {
		return nil
	}

	if sctx.SessionToken != "" {
		if err := s.sessions.Destroy(sctx.SessionToken); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
	}

	if sctx.UserID > 0 {
		s.auditLogger.LogActivity(sctx.UserID, audit.ActionUserLogout, "User logged out", sctx.IPAddress, sctx.UserAgent)
	}

	sctx.Clear()
	return nil
}

// IsAuthenticated reports whether the context carries a session claim that
// matches a non-expired session row for the same user.
func (s *AuthService) IsAuthenticated(ctx context.Context, sctx *SessionContext) (bool, error) {
	if !sctx.HasIdentity() {
		return false, nil
	}

	return s.sessions.IsValid(sctx.SessionToken, sctx.UserID)
}

// GetCurrentUser returns the redacted profile of the authenticated user, or
// errors.ErrNotAuthenticated.
func (s *AuthService) GetCurrentUser(ctx context.Context, sctx *SessionContext) (*models.UserProfile, error) {
	ok, err := s.IsAuthenticated(ctx, sctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrNotAuthenticated
	}

	user, err := s.userRepo.GetByID(sctx.UserID)
	if err != nil {
		return nil, err
	}

	return user.Profile(), nil
}

// ChangePassword rewrites the password hash after verifying the old
// password and validating the new one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int, oldPassword, newPassword, ipAddress, userAgent string) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("password verification failed: %w", err)
	}
	if !valid {
		s.auditLogger.Log(&audit.Event{
			Level:     audit.LevelWarning,
			UserID:    &user.ID,
			Action:    "PASSWORD_CHANGE_WRONG_PASSWORD",
			IPAddress: ipAddress,
			Success:   false,
		})
		return errors.ErrInvalidCredentials
	}

	if result := s.validator.ValidatePassword(newPassword); !result.Valid {
		return errors.NewValidationError(result.Errors)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePasswordHash(userID, newHash); err != nil {
		return err
	}

	s.auditLogger.LogActivity(userID, audit.ActionPasswordChanged, "User changed password", ipAddress, userAgent)

	return nil
}

// GenerateCsrfToken lazily creates the context's CSRF token and returns it.
// Repeated calls return the same token for the same context.
func (s *AuthService) GenerateCsrfToken(sctx *SessionContext) (string, error) {
	if sctx == nil {
		return "", errors.ErrNotAuthenticated
	}

	if sctx.CsrfToken == "" {
		token, err := security.GenerateToken(s.opts.CsrfTokenLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate csrf token: %w", err)
		}
		sctx.CsrfToken = token
	}

	return sctx.CsrfToken, nil
}

// VerifyCsrfToken accepts only the exact token most recently issued for the
// same context, compared in constant time.
func (s *AuthService) VerifyCsrfToken(sctx *SessionContext, token string) bool {
	if sctx == nil || sctx.CsrfToken == "" || token == "" {
		return false
	}
	return security.ConstantTimeEquals(sctx.CsrfToken, token)
}

// GetUserStats summarizes one account's history.
func (s *AuthService) GetUserStats(ctx context.Context, userID int) (*models.UserStats, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	totalLogins, err := s.attemptRepo.CountSuccesses(user.Username)
	if err != nil {
		return nil, err
	}

	totalActivities, err := s.activityRepo.CountByUser(userID)
	if err != nil {
		return nil, err
	}

	return &models.UserStats{
		MemberSince:     user.CreatedAt,
		LastLogin:       user.LastLogin,
		TotalLogins:     totalLogins,
		TotalActivities: totalActivities,
	}, nil
}
