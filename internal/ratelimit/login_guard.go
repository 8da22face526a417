package ratelimit

import (
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/repository"
	"github.com/Robertja98/simple-auth/pkg/errors"
)

// LoginGuard enforces the sliding-window login limit and the per-account
// lockout. Both states are derived from stored rows, never held in memory:
// the window from login_attempts, the lockout from the user record.
type LoginGuard struct {
	attempts     *repository.LoginAttemptRepository
	users        *repository.UserRepository
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
}

// NewLoginGuard creates a login guard with the configured thresholds.
func NewLoginGuard(
	attempts *repository.LoginAttemptRepository,
	users *repository.UserRepository,
	maxAttempts int,
	window time.Duration,
	lockDuration time.Duration,
) *LoginGuard {
	return &LoginGuard{
		attempts:     attempts,
		users:        users,
		maxAttempts:  maxAttempts,
		window:       window,
		lockDuration: lockDuration,
	}
}

// CheckRateLimit rejects the attempt once the window holds maxAttempts
// failures matching the identifier or the caller's IP. Runs before any
// credential check and never touches the user record.
func (g *LoginGuard) CheckRateLimit(usernameOrEmail, ipAddress string) error {
	count, err := g.attempts.CountRecentFailures(usernameOrEmail, ipAddress, g.window)
	if err != nil {
		return err
	}

	if count >= g.maxAttempts {
		return errors.ErrRateLimitExceeded
	}

	return nil
}

// CheckLockout rejects while locked_until is in the future. An expired lock
// is cleared lazily on the lookup that discovers it.
func (g *LoginGuard) CheckLockout(user *models.User) error {
	if user.LockedUntil == nil {
		return nil
	}

	if user.LockedUntil.After(time.Now()) {
		return errors.ErrAccountLocked
	}

	// Lock period has passed; unlock and let the attempt proceed.
	if err := g.users.ClearLock(user.ID); err != nil {
		return err
	}
	user.LockedUntil = nil

	return nil
}

// RegisterFailure counts a failed password check against the account,
// locking it once the failure counter reaches the maximum. Reports whether
// this failure locked the account.
func (g *LoginGuard) RegisterFailure(userID int) (bool, error) {
	return g.users.IncrementFailedLogins(userID, g.maxAttempts, g.lockDuration)
}
