package repository

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/store"
	"github.com/Robertja98/simple-auth/pkg/errors"
)

func newSessionRepo(t *testing.T) *SessionRepository {
	t.Helper()

	st, err := store.Open(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("store.Open error: %v", err)
	}

	return NewSessionRepository(st)
}

func seedSession(t *testing.T, repo *SessionRepository, userID int, token string, expiresAt time.Time) *models.Session {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	session := &models.Session{
		UserID:       userID,
		SessionToken: token,
		IPAddress:    "10.0.0.1",
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		LastActivity: now,
	}
	if err := repo.Create(session); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	return session
}

func TestSessionLookups(t *testing.T) {
	repo := newSessionRepo(t)
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	seedSession(t, repo, 7, "token-a", expiry)

	sess, err := repo.GetByToken("token-a")
	if err != nil {
		t.Fatalf("GetByToken error: %v", err)
	}
	if sess.UserID != 7 {
		t.Fatalf("expected user 7, got %d", sess.UserID)
	}

	if _, err := repo.GetByTokenAndUser("token-a", 7); err != nil {
		t.Fatalf("GetByTokenAndUser error: %v", err)
	}
	if _, err := repo.GetByTokenAndUser("token-a", 8); !stderrors.Is(err, errors.ErrRecordNotFound) {
		t.Fatalf("expected miss for wrong user, got: %v", err)
	}
	if _, err := repo.GetByToken("unknown"); !stderrors.Is(err, errors.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", err)
	}
}

func TestSessionTouch(t *testing.T) {
	repo := newSessionRepo(t)
	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	seedSession(t, repo, 1, "token-a", expiry)

	later := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	if err := repo.Touch("token-a", later); err != nil {
		t.Fatalf("Touch error: %v", err)
	}

	sess, err := repo.GetByToken("token-a")
	if err != nil {
		t.Fatalf("GetByToken error: %v", err)
	}
	if !sess.LastActivity.Equal(later) {
		t.Fatalf("expected last_activity %v, got %v", later, sess.LastActivity)
	}
	// The expiry is untouched.
	if !sess.ExpiresAt.Equal(expiry) {
		t.Fatalf("expected expiry unchanged, got %v", sess.ExpiresAt)
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	repo := newSessionRepo(t)
	now := time.Now().UTC().Truncate(time.Second)

	seedSession(t, repo, 1, "stale", now.Add(-time.Hour))
	seedSession(t, repo, 1, "live", now.Add(time.Hour))

	removed, err := repo.DeleteExpired(time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := repo.GetByToken("live"); err != nil {
		t.Fatalf("expected live session to survive, got: %v", err)
	}
	if _, err := repo.GetByToken("stale"); !stderrors.Is(err, errors.ErrRecordNotFound) {
		t.Fatalf("expected stale session removed, got: %v", err)
	}
}
