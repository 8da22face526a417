package repository

import (
	"fmt"
	"time"

	"github.com/Robertja98/simple-auth/internal/store"
)

// LoginAttemptRepository appends to and scans the append-only login_attempts
// table. Attempt rows are never updated.
type LoginAttemptRepository struct {
	store *store.Store
}

// NewLoginAttemptRepository creates a new login attempt repository
func NewLoginAttemptRepository(st *store.Store) *LoginAttemptRepository {
	return &LoginAttemptRepository{store: st}
}

// Record appends one attempt row. Every login call records at least one,
// whether or not the identifier resolves to a user.
func (r *LoginAttemptRepository) Record(usernameOrEmail, ipAddress string, success bool) error {
	successField := "0"
	if success {
		successField = "1"
	}

	rec := store.Record{
		"username_or_email": usernameOrEmail,
		"ip_address":        ipAddress,
		"success":           successField,
		"attempted_at":      store.FormatTime(time.Now()),
	}

	if _, err := r.store.Insert(store.TableLoginAttempts, rec); err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}

	return nil
}

// CountRecentFailures counts failed attempts inside the window that match
// the identifier or came from the same IP.
func (r *LoginAttemptRepository) CountRecentFailures(usernameOrEmail, ipAddress string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	attempts, err := r.store.Filter(store.TableLoginAttempts, func(rec store.Record) bool {
		if rec["success"] != "0" {
			return false
		}
		if rec["username_or_email"] != usernameOrEmail && rec["ip_address"] != ipAddress {
			return false
		}
		return store.ParseTime(rec["attempted_at"]).After(cutoff)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count login failures: %w", err)
	}

	return len(attempts), nil
}

// CountSuccesses counts successful logins recorded for the identifier.
func (r *LoginAttemptRepository) CountSuccesses(usernameOrEmail string) (int, error) {
	attempts, err := r.store.FetchAll(store.TableLoginAttempts, store.Predicate{
		"username_or_email": usernameOrEmail,
		"success":           "1",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count successful logins: %w", err)
	}

	return len(attempts), nil
}

// DeleteOlderThan drops attempt rows older than the cutoff. Run by the
// maintenance sweep only.
func (r *LoginAttemptRepository) DeleteOlderThan(cutoff time.Time) (int, error) {
	removed, err := r.store.Cleanup(store.TableLoginAttempts, "attempted_at", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean login attempts: %w", err)
	}
	return removed, nil
}

// Count returns the number of stored attempt rows.
func (r *LoginAttemptRepository) Count() (int, error) {
	return r.store.Count(store.TableLoginAttempts, nil)
}
