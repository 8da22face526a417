package repository

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Robertja98/simple-auth/internal/models"
	"github.com/Robertja98/simple-auth/internal/store"
	"github.com/Robertja98/simple-auth/pkg/errors"
)

type UserRepository struct {
	store *store.Store
}

// NewUserRepository creates a new user repository
func NewUserRepository(st *store.Store) *UserRepository {
	return &UserRepository{store: st}
}

// Create persists a new user and fills in its assigned id and timestamps.
func (r *UserRepository) Create(user *models.User) error {
	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt = now
	user.UpdatedAt = now

	rec := user.Record()
	delete(rec, "id") // assigned by the store

	id, err := r.store.Insert(store.TableUsers, rec)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID = id
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(id int) (*models.User, error) {
	rec, err := r.store.FetchOne(store.TableUsers, store.Predicate{"id": strconv.Itoa(id)})
	if err == errors.ErrRecordNotFound {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return models.UserFromRecord(rec), nil
}

// GetByUsername retrieves a user by exact username
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	rec, err := r.store.FetchOne(store.TableUsers, store.Predicate{"username": username})
	if err == errors.ErrRecordNotFound {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return models.UserFromRecord(rec), nil
}

// GetByEmail retrieves a user by exact email
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	rec, err := r.store.FetchOne(store.TableUsers, store.Predicate{"email": email})
	if err == errors.ErrRecordNotFound {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return models.UserFromRecord(rec), nil
}

// GetByUsernameOrEmail resolves a login identifier by exact match on either
// column.
func (r *UserRepository) GetByUsernameOrEmail(identifier string) (*models.User, error) {
	user, err := r.GetByUsername(identifier)
	if err == nil {
		return user, nil
	}
	if err != errors.ErrUserNotFound {
		return nil, err
	}

	return r.GetByEmail(identifier)
}

// Exists reports whether a user with the given username or email is already
// registered.
func (r *UserRepository) Exists(username, email string) (bool, error) {
	if _, err := r.GetByUsername(username); err == nil {
		return true, nil
	} else if err != errors.ErrUserNotFound {
		return false, err
	}

	if _, err := r.GetByEmail(email); err == nil {
		return true, nil
	} else if err != errors.ErrUserNotFound {
		return false, err
	}

	return false, nil
}

// RecordLoginSuccess updates last_login and clears the failure counter and
// any lock. A successful login always resets lockout state.
func (r *UserRepository) RecordLoginSuccess(userID int) error {
	patch := store.Record{
		"last_login":            store.FormatTime(time.Now()),
		"failed_login_attempts": "0",
		"locked_until":          "",
	}

	if _, err := r.store.Update(store.TableUsers, patch, idPredicate(userID)); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// IncrementFailedLogins bumps the failure counter and, once it reaches
// maxAttempts, locks the account for lockDuration. It reports whether this
// call locked the account.
func (r *UserRepository) IncrementFailedLogins(userID, maxAttempts int, lockDuration time.Duration) (bool, error) {
	user, err := r.GetByID(userID)
	if err != nil {
		return false, err
	}

	attempts := user.FailedLoginAttempts + 1
	patch := store.Record{
		"failed_login_attempts": strconv.Itoa(attempts),
	}

	locked := attempts >= maxAttempts
	if locked {
		patch["locked_until"] = store.FormatTime(time.Now().Add(lockDuration))
	}

	if _, err := r.store.Update(store.TableUsers, patch, idPredicate(userID)); err != nil {
		return false, fmt.Errorf("failed to increment failed logins: %w", err)
	}

	return locked, nil
}

// ClearLock removes an expired lock from the account.
func (r *UserRepository) ClearLock(userID int) error {
	patch := store.Record{"locked_until": ""}

	if _, err := r.store.Update(store.TableUsers, patch, idPredicate(userID)); err != nil {
		return fmt.Errorf("failed to clear account lock: %w", err)
	}

	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *UserRepository) UpdatePasswordHash(userID int, hash string) error {
	patch := store.Record{"password_hash": hash}

	matched, err := r.store.Update(store.TableUsers, patch, idPredicate(userID))
	if err != nil {
		return fmt.Errorf("failed to update password hash: %w", err)
	}
	if !matched {
		return errors.ErrUserNotFound
	}

	return nil
}

// Deactivate disables an account (soft delete; the core never physically
// deletes users).
func (r *UserRepository) Deactivate(userID int) error {
	patch := store.Record{"is_active": "0"}

	matched, err := r.store.Update(store.TableUsers, patch, idPredicate(userID))
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if !matched {
		return errors.ErrUserNotFound
	}

	return nil
}

// MarkVerified clears the verification token and flags the account verified.
func (r *UserRepository) MarkVerified(userID int) error {
	patch := store.Record{
		"is_verified":        "1",
		"verification_token": "",
	}

	matched, err := r.store.Update(store.TableUsers, patch, idPredicate(userID))
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	if !matched {
		return errors.ErrUserNotFound
	}

	return nil
}

// Count returns the total number of registered users.
func (r *UserRepository) Count() (int, error) {
	return r.store.Count(store.TableUsers, nil)
}

func idPredicate(id int) store.Predicate {
	return store.Predicate{"id": strconv.Itoa(id)}
}
