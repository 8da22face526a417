package service

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Robertja98/simple-auth/internal/audit"
	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/ratelimit"
	"github.com/Robertja98/simple-auth/internal/repository"
	"github.com/Robertja98/simple-auth/internal/security"
	"github.com/Robertja98/simple-auth/internal/session"
	"github.com/Robertja98/simple-auth/internal/store"
	"github.com/Robertja98/simple-auth/pkg/errors"
	"github.com/Robertja98/simple-auth/pkg/validator"
)

const (
	testPassword = "Correct#Horse1"
	testIP       = "10.0.0.1"
	testAgent    = "test-agent"
)

type fixture struct {
	svc        *AuthService
	users      *repository.UserRepository
	attempts   *repository.LoginAttemptRepository
	activities *repository.ActivityLogRepository
	dataDir    string
}

type fixtureConfig struct {
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
	opts         Options
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()

	if cfg.maxAttempts == 0 {
		cfg.maxAttempts = 3
	}
	if cfg.window == 0 {
		cfg.window = time.Minute
	}
	if cfg.lockDuration == 0 {
		cfg.lockDuration = time.Hour
	}

	dataDir := t.TempDir()
	st, err := store.Open(dataDir, time.Second)
	if err != nil {
		t.Fatalf("store.Open error: %v", err)
	}

	users := repository.NewUserRepository(st)
	attempts := repository.NewLoginAttemptRepository(st)
	activities := repository.NewActivityLogRepository(st)

	auditLogger, err := audit.NewLogger(activities, filepath.Join(t.TempDir(), "audit.log"), true, false)
	if err != nil {
		t.Fatalf("audit.NewLogger error: %v", err)
	}
	t.Cleanup(func() { auditLogger.Close() })

	// Low-cost hashing parameters keep the scenario tests fast.
	hasher := security.NewPasswordHasherWithParams(16*1024, 1, 1)

	svc := NewAuthService(
		users,
		attempts,
		activities,
		session.NewManager(repository.NewSessionRepository(st), time.Hour, 30*24*time.Hour),
		ratelimit.NewLoginGuard(attempts, users, cfg.maxAttempts, cfg.window, cfg.lockDuration),
		hasher,
		validator.New(validator.DefaultRules()),
		ratelimit.NewRateLimiter(100, 100),
		auditLogger,
		cfg.opts,
	)

	return &fixture{svc: svc, users: users, attempts: attempts, activities: activities, dataDir: dataDir}
}

func registerUser(t *testing.T, f *fixture, username, email string) *models.RegisterResult {
	t.Helper()

	result, err := f.svc.Register(context.Background(), &models.CreateUserRequest{
		Username: username,
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register(%q) error: %v", username, err)
	}

	return result
}

func loginAs(t *testing.T, f *fixture, identifier, password string) (*models.LoginResponse, *SessionContext) {
	t.Helper()

	resp, sctx, err := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: identifier,
		Password:        password,
		IPAddress:       testIP,
		UserAgent:       testAgent,
	})
	if err != nil {
		t.Fatalf("Login(%q) error: %v", identifier, err)
	}

	return resp, sctx
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t, fixtureConfig{})

	result := registerUser(t, f, "alice", "alice@example.com")
	if result.UserID != 1 {
		t.Fatalf("expected user id 1, got %d", result.UserID)
	}
	if result.RequiresVerification {
		t.Fatalf("verification not configured, should not be required")
	}

	resp, sctx := loginAs(t, f, "alice", testPassword)
	if resp.User.Username != "alice" {
		t.Fatalf("expected profile for alice, got %q", resp.User.Username)
	}
	if resp.SessionToken == "" || sctx.SessionToken != resp.SessionToken {
		t.Fatalf("expected matching session token in response and context")
	}
	if !sctx.HasIdentity() {
		t.Fatalf("expected authenticated context")
	}

	// Email works as the identifier too.
	_, sctx2 := loginAs(t, f, "alice@example.com", testPassword)
	if sctx2.UserID != sctx.UserID {
		t.Fatalf("expected same user for email login")
	}
}

func TestRegister_RejectsDuplicateAndWeakInput(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	registerUser(t, f, "alice", "alice@example.com")

	// The conflict error does not disclose which field collided.
	_, err := f.svc.Register(context.Background(), &models.CreateUserRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: testPassword,
	})
	if !stderrors.Is(err, errors.ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists for username conflict, got: %v", err)
	}

	_, err = f.svc.Register(context.Background(), &models.CreateUserRequest{
		Username: "other",
		Email:    "alice@example.com",
		Password: testPassword,
	})
	if !stderrors.Is(err, errors.ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists for email conflict, got: %v", err)
	}

	_, err = f.svc.Register(context.Background(), &models.CreateUserRequest{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "weak",
	})
	if !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected validation failure, got: %v", err)
	}
	var verr *errors.ValidationError
	if !stderrors.As(err, &verr) || len(verr.Violations) == 0 {
		t.Fatalf("expected violations in validation error, got: %v", err)
	}
}

func TestLogin_UnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	registerUser(t, f, "alice", "alice@example.com")

	_, _, errUnknown := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "nobody",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	_, _, errWrong := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        "Wrong#Password1",
		IPAddress:       testIP,
	})

	// Both failures collapse into the same generic error.
	if !stderrors.Is(errUnknown, errors.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got: %v", errUnknown)
	}
	if !stderrors.Is(errWrong, errors.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got: %v", errWrong)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	f := newFixture(t, fixtureConfig{maxAttempts: 3, window: time.Minute})
	registerUser(t, f, "alice", "alice@example.com")

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
			UsernameOrEmail: "alice",
			Password:        "Wrong#Password1",
			IPAddress:       testIP,
		})
		if !stderrors.Is(err, errors.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got: %v", i+1, err)
		}
	}

	// Even the correct password is refused while the window is saturated.
	_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	if !stderrors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got: %v", err)
	}

	// The rejected call still left a trace in the attempt log.
	count, err := f.attempts.Count()
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 recorded attempts, got %d", count)
	}
}

func TestLogin_RateLimitedRecordingFailureSurfaces(t *testing.T) {
	f := newFixture(t, fixtureConfig{maxAttempts: 3, window: time.Minute})
	registerUser(t, f, "alice", "alice@example.com")

	for i := 0; i < 3; i++ {
		f.svc.Login(context.Background(), &models.LoginRequest{
			UsernameOrEmail: "alice",
			Password:        "Wrong#Password1",
			IPAddress:       testIP,
		})
	}

	// Break the storage so the rejected attempt cannot be recorded; the
	// write failure must come back to the caller, not vanish.
	if err := os.RemoveAll(f.dataDir); err != nil {
		t.Fatalf("remove data dir error: %v", err)
	}

	_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	if err == nil {
		t.Fatalf("expected an error when the attempt row cannot be written")
	}
	if stderrors.Is(err, errors.ErrRateLimitExceeded) {
		t.Fatalf("expected the storage failure to surface, got: %v", err)
	}
	if !stderrors.Is(err, errors.ErrStorage) {
		t.Fatalf("expected ErrStorage in the chain, got: %v", err)
	}
}

func TestLogin_LockoutAndRecovery(t *testing.T) {
	// Short rate window so the lockout check is reachable; short lock so the
	// test can outlive it.
	f := newFixture(t, fixtureConfig{maxAttempts: 3, window: 2 * time.Second, lockDuration: 2 * time.Second})
	result := registerUser(t, f, "alice", "alice@example.com")

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
			UsernameOrEmail: "alice",
			Password:        "Wrong#Password1",
			IPAddress:       testIP,
		})
		if !stderrors.Is(err, errors.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got: %v", i+1, err)
		}
	}

	user, err := f.users.GetByID(result.UserID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if user.LockedUntil == nil {
		t.Fatalf("expected account locked after repeated failures")
	}

	// Both the window and the lock expire during this sleep; second-resolution
	// timestamps need the extra slack.
	time.Sleep(3100 * time.Millisecond)

	_, sctx := loginAs(t, f, "alice", testPassword)
	if !sctx.HasIdentity() {
		t.Fatalf("expected successful login after lock expiry")
	}

	fresh, err := f.users.GetByID(result.UserID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if fresh.FailedLoginAttempts != 0 || fresh.LockedUntil != nil {
		t.Fatalf("expected lockout state reset, got attempts=%d locked_until=%v",
			fresh.FailedLoginAttempts, fresh.LockedUntil)
	}
}

func TestLogin_LockedAccountGetsDistinctError(t *testing.T) {
	f := newFixture(t, fixtureConfig{maxAttempts: 3, window: 2 * time.Second, lockDuration: time.Hour})
	registerUser(t, f, "alice", "alice@example.com")

	for i := 0; i < 3; i++ {
		f.svc.Login(context.Background(), &models.LoginRequest{
			UsernameOrEmail: "alice",
			Password:        "Wrong#Password1",
			IPAddress:       testIP,
		})
	}

	// Wait out the rate window so the lockout, not the limiter, answers.
	time.Sleep(3100 * time.Millisecond)

	_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	if !stderrors.Is(err, errors.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got: %v", err)
	}
}

func TestLogin_UnverifiedAndDisabled(t *testing.T) {
	f := newFixture(t, fixtureConfig{opts: Options{RequireEmailVerification: true}})

	result := registerUser(t, f, "alice", "alice@example.com")
	if !result.RequiresVerification || result.VerificationToken == "" {
		t.Fatalf("expected pending verification with token")
	}

	_, _, err := f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	if !stderrors.Is(err, errors.ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got: %v", err)
	}

	if err := f.users.MarkVerified(result.UserID); err != nil {
		t.Fatalf("MarkVerified error: %v", err)
	}
	loginAs(t, f, "alice", testPassword)

	if err := f.users.Deactivate(result.UserID); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}
	_, _, err = f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	if !stderrors.Is(err, errors.ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got: %v", err)
	}
}

func TestLogoutClearsContext(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	registerUser(t, f, "alice", "alice@example.com")

	_, sctx := loginAs(t, f, "alice", testPassword)
	token := sctx.SessionToken

	ok, err := f.svc.IsAuthenticated(context.Background(), sctx)
	if err != nil {
		t.Fatalf("IsAuthenticated error: %v", err)
	}
	if !ok {
		t.Fatalf("expected authenticated context after login")
	}

	if err := f.svc.Logout(context.Background(), sctx); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if sctx.HasIdentity() || sctx.SessionToken != "" {
		t.Fatalf("expected cleared context after logout")
	}

	// The session row is gone, so the old claim no longer validates.
	sctx.UserID = 1
	sctx.SessionToken = token
	ok, err = f.svc.IsAuthenticated(context.Background(), sctx)
	if err != nil {
		t.Fatalf("IsAuthenticated error: %v", err)
	}
	if ok {
		t.Fatalf("expected destroyed session to be invalid")
	}

	if _, err := f.svc.GetCurrentUser(context.Background(), sctx); !stderrors.Is(err, errors.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got: %v", err)
	}

	// Logging out twice is harmless.
	if err := f.svc.Logout(context.Background(), sctx); err != nil {
		t.Fatalf("repeat Logout error: %v", err)
	}
}

func TestCsrfTokenLifecycle(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	registerUser(t, f, "alice", "alice@example.com")
	_, sctx := loginAs(t, f, "alice", testPassword)

	token, err := f.svc.GenerateCsrfToken(sctx)
	if err != nil {
		t.Fatalf("GenerateCsrfToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty csrf token")
	}

	again, err := f.svc.GenerateCsrfToken(sctx)
	if err != nil {
		t.Fatalf("GenerateCsrfToken error: %v", err)
	}
	if again != token {
		t.Fatalf("expected stable token for the same context")
	}

	if !f.svc.VerifyCsrfToken(sctx, token) {
		t.Fatalf("expected issued token to verify")
	}
	if f.svc.VerifyCsrfToken(sctx, "forged") {
		t.Fatalf("expected forged token to fail")
	}
	if f.svc.VerifyCsrfToken(sctx, "") {
		t.Fatalf("expected empty token to fail")
	}

	// A fresh context has no token yet, so nothing verifies against it.
	other := &SessionContext{UserID: 1}
	if f.svc.VerifyCsrfToken(other, token) {
		t.Fatalf("expected token bound to its issuing context")
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	result := registerUser(t, f, "alice", "alice@example.com")

	err := f.svc.ChangePassword(context.Background(), result.UserID, "Wrong#Password1", "Next#Password2", testIP, testAgent)
	if !stderrors.Is(err, errors.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong old password, got: %v", err)
	}

	err = f.svc.ChangePassword(context.Background(), result.UserID, testPassword, "weak", testIP, testAgent)
	if !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("expected validation failure for weak new password, got: %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), result.UserID, testPassword, "Next#Password2", testIP, testAgent); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}

	_, _, err = f.svc.Login(context.Background(), &models.LoginRequest{
		UsernameOrEmail: "alice",
		Password:        testPassword,
		IPAddress:       testIP,
	})
	if !stderrors.Is(err, errors.ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got: %v", err)
	}

	loginAs(t, f, "alice", "Next#Password2")
}

func TestGetUserStats(t *testing.T) {
	f := newFixture(t, fixtureConfig{maxAttempts: 10})
	result := registerUser(t, f, "alice", "alice@example.com")

	loginAs(t, f, "alice", testPassword)
	loginAs(t, f, "alice", testPassword)

	stats, err := f.svc.GetUserStats(context.Background(), result.UserID)
	if err != nil {
		t.Fatalf("GetUserStats error: %v", err)
	}

	if stats.TotalLogins != 2 {
		t.Fatalf("expected 2 successful logins, got %d", stats.TotalLogins)
	}
	// Registration plus two logins.
	if stats.TotalActivities != 3 {
		t.Fatalf("expected 3 activity rows, got %d", stats.TotalActivities)
	}
	if stats.MemberSince.IsZero() {
		t.Fatalf("expected member_since to be set")
	}
	if stats.LastLogin == nil {
		t.Fatalf("expected last_login to be set")
	}
}
