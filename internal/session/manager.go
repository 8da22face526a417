// Package session issues and validates server-side session tokens.
package session

import (
	"fmt"
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/repository"
	"github.com/Robertja98/simple-auth/internal/security"
	"github.com/Robertja98/simple-auth/pkg/errors"
)

const (
	defaultLifetime    = 24 * time.Hour
	rememberMeLifetime = 30 * 24 * time.Hour
	tokenBytes         = 32
)

type Manager struct {
	sessions   *repository.SessionRepository
	lifetime   time.Duration
	rememberMe time.Duration
}

// NewManager creates a session manager. Non-positive lifetimes fall back to
// 24 hours and 30 days.
func NewManager(sessions *repository.SessionRepository, lifetime, rememberMe time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}
	if rememberMe <= 0 {
		rememberMe = rememberMeLifetime
	}

	return &Manager{
		sessions:   sessions,
		lifetime:   lifetime,
		rememberMe: rememberMe,
	}
}

// Create mints a high-entropy session token for the user and persists the
// session row. rememberMe selects the long lifetime.
func (m *Manager) Create(userID int, rememberMe bool, ipAddress, userAgent string) (*models.Session, error) {
	token, err := security.GenerateToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	lifetime := m.lifetime
	if rememberMe {
		lifetime = m.rememberMe
	}

	now := time.Now().UTC().Truncate(time.Second)
	session := &models.Session{
		UserID:       userID,
		SessionToken: token,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		CreatedAt:    now,
		ExpiresAt:    now.Add(lifetime),
		LastActivity: now,
	}

	if err := m.sessions.Create(session); err != nil {
		return nil, err
	}

	return session, nil
}

// IsValid reports whether a non-expired session exists matching both the
// token and the claimed user id. It does not extend last_activity.
func (m *Manager) IsValid(token string, userID int) (bool, error) {
	if token == "" {
		return false, nil
	}

	session, err := m.sessions.GetByTokenAndUser(token, userID)
	if err == errors.ErrRecordNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return !session.Expired(time.Now()), nil
}

// Destroy deletes the session with the given token. Idempotent if the
// session is already absent.
func (m *Manager) Destroy(token string) error {
	if token == "" {
		return nil
	}
	return m.sessions.DeleteByToken(token)
}
