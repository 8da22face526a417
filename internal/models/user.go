package models

import (
	"strconv"
	"time"

	"github.com/Robertja98/simple-auth/internal/store"
)

type User struct {
	ID                  int        `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // Never expose in JSON
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	IsActive            bool       `json:"is_active"`
	IsVerified          bool       `json:"is_verified"`
	VerificationToken   string     `json:"-"`
	ResetToken          string     `json:"-"`
	ResetTokenExpires   *time.Time `json:"-"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
}

// UserProfile is the redacted projection handed back to callers.
// It never carries the password hash or lockout state.
type UserProfile struct {
	ID        int        `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// Profile returns the redacted projection of the user.
func (u *User) Profile() *UserProfile {
	return &UserProfile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
	RememberMe      bool   `json:"remember_me"`
	IPAddress       string `json:"-"`
	UserAgent       string `json:"-"`
}

type RegisterResult struct {
	UserID               int    `json:"user_id"`
	RequiresVerification bool   `json:"requires_verification"`
	VerificationToken    string `json:"verification_token,omitempty"`
}

type LoginResponse struct {
	User         *UserProfile `json:"user"`
	SessionToken string       `json:"session_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// UserStats summarizes one account's history.
type UserStats struct {
	MemberSince     time.Time  `json:"member_since"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
	TotalLogins     int        `json:"total_logins"`
	TotalActivities int        `json:"total_activities"`
}

// UserFromRecord decodes a users table record.
func UserFromRecord(rec store.Record) *User {
	id, _ := strconv.Atoi(rec["id"])
	attempts, _ := strconv.Atoi(rec["failed_login_attempts"])

	return &User{
		ID:                  id,
		Username:            rec["username"],
		Email:               rec["email"],
		PasswordHash:        rec["password_hash"],
		CreatedAt:           store.ParseTime(rec["created_at"]),
		UpdatedAt:           store.ParseTime(rec["updated_at"]),
		LastLogin:           store.ParseTimePtr(rec["last_login"]),
		IsActive:            rec["is_active"] == "1",
		IsVerified:          rec["is_verified"] == "1",
		VerificationToken:   rec["verification_token"],
		ResetToken:          rec["reset_token"],
		ResetTokenExpires:   store.ParseTimePtr(rec["reset_token_expires"]),
		FailedLoginAttempts: attempts,
		LockedUntil:         store.ParseTimePtr(rec["locked_until"]),
	}
}

// Record encodes the user as a users table record.
func (u *User) Record() store.Record {
	return store.Record{
		"id":                    strconv.Itoa(u.ID),
		"username":              u.Username,
		"email":                 u.Email,
		"password_hash":         u.PasswordHash,
		"created_at":            store.FormatTime(u.CreatedAt),
		"updated_at":            store.FormatTime(u.UpdatedAt),
		"last_login":            store.FormatTimePtr(u.LastLogin),
		"is_active":             boolField(u.IsActive),
		"is_verified":           boolField(u.IsVerified),
		"verification_token":    u.VerificationToken,
		"reset_token":           u.ResetToken,
		"reset_token_expires":   store.FormatTimePtr(u.ResetTokenExpires),
		"failed_login_attempts": strconv.Itoa(u.FailedLoginAttempts),
		"locked_until":          store.FormatTimePtr(u.LockedUntil),
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
