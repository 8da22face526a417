package repository

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/store"
	"github.com/Robertja98/simple-auth/pkg/errors"
)

type SessionRepository struct {
	store *store.Store
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(st *store.Store) *SessionRepository {
	return &SessionRepository{store: st}
}

// Create persists a new session and fills in its assigned id.
func (r *SessionRepository) Create(session *models.Session) error {
	rec := store.Record{
		"user_id":       strconv.Itoa(session.UserID),
		"session_token": session.SessionToken,
		"ip_address":    session.IPAddress,
		"user_agent":    session.UserAgent,
		"created_at":    store.FormatTime(session.CreatedAt),
		"expires_at":    store.FormatTime(session.ExpiresAt),
		"last_activity": store.FormatTime(session.LastActivity),
	}

	id, err := r.store.Insert(store.TableSessions, rec)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	session.ID = id
	return nil
}

// GetByToken retrieves a session by its token.
func (r *SessionRepository) GetByToken(token string) (*models.Session, error) {
	rec, err := r.store.FetchOne(store.TableSessions, store.Predicate{"session_token": token})
	if err == errors.ErrRecordNotFound {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return models.SessionFromRecord(rec), nil
}

// GetByTokenAndUser retrieves a session matching both the token and the
// claimed user id.
func (r *SessionRepository) GetByTokenAndUser(token string, userID int) (*models.Session, error) {
	rec, err := r.store.FetchOne(store.TableSessions, store.Predicate{
		"session_token": token,
		"user_id":       strconv.Itoa(userID),
	})
	if err == errors.ErrRecordNotFound {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return models.SessionFromRecord(rec), nil
}

// DeleteByToken removes the session with the given token. Idempotent if the
// session is already gone.
func (r *SessionRepository) DeleteByToken(token string) error {
	if err := r.store.Delete(store.TableSessions, store.Predicate{"session_token": token}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Touch updates the session's last_activity timestamp. Not called on the
// validation path; kept as an extension point for sliding activity windows.
func (r *SessionRepository) Touch(token string, at time.Time) error {
	patch := store.Record{"last_activity": store.FormatTime(at)}

	if _, err := r.store.Update(store.TableSessions, patch, store.Predicate{"session_token": token}); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// DeleteExpired reclaims sessions whose expiry is older than now. Run by the
// maintenance sweep only.
func (r *SessionRepository) DeleteExpired(now time.Time) (int, error) {
	removed, err := r.store.Cleanup(store.TableSessions, "expires_at", now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored sessions.
func (r *SessionRepository) Count() (int, error) {
	return r.store.Count(store.TableSessions, nil)
}
