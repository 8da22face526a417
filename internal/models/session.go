package models

import (
	"strconv"
	"time"

	"github.com/Robertja98/simple-auth/internal/store"
)

type Session struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	SessionToken string    `json:"-"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Expired reports whether the session has passed its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// SessionFromRecord decodes a sessions table record.
func SessionFromRecord(rec store.Record) *Session {
	id, _ := strconv.Atoi(rec["id"])
	userID, _ := strconv.Atoi(rec["user_id"])

	return &Session{
		ID:           id,
		UserID:       userID,
		SessionToken: rec["session_token"],
		IPAddress:    rec["ip_address"],
		UserAgent:    rec["user_agent"],
		CreatedAt:    store.ParseTime(rec["created_at"]),
		ExpiresAt:    store.ParseTime(rec["expires_at"]),
		LastActivity: store.ParseTime(rec["last_activity"]),
	}
}

type LoginAttempt struct {
	ID              int       `json:"id"`
	UsernameOrEmail string    `json:"username_or_email"`
	IPAddress       string    `json:"ip_address"`
	Success         bool      `json:"success"`
	AttemptedAt     time.Time `json:"attempted_at"`
}

// LoginAttemptFromRecord decodes a login_attempts table record.
func LoginAttemptFromRecord(rec store.Record) *LoginAttempt {
	id, _ := strconv.Atoi(rec["id"])

	return &LoginAttempt{
		ID:              id,
		UsernameOrEmail: rec["username_or_email"],
		IPAddress:       rec["ip_address"],
		Success:         rec["success"] == "1",
		AttemptedAt:     store.ParseTime(rec["attempted_at"]),
	}
}

type ActivityLogEntry struct {
	ID            int       `json:"id"`
	UserID        int       `json:"user_id"`
	ActionType    string    `json:"action_type"`
	ActionDetails string    `json:"action_details"`
	IPAddress     string    `json:"ip_address"`
	UserAgent     string    `json:"user_agent"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActivityLogEntryFromRecord decodes an activity_log table record.
func ActivityLogEntryFromRecord(rec store.Record) *ActivityLogEntry {
	id, _ := strconv.Atoi(rec["id"])
	userID, _ := strconv.Atoi(rec["user_id"])

	return &ActivityLogEntry{
		ID:            id,
		UserID:        userID,
		ActionType:    rec["action_type"],
		ActionDetails: rec["action_details"],
		IPAddress:     rec["ip_address"],
		UserAgent:     rec["user_agent"],
		CreatedAt:     store.ParseTime(rec["created_at"]),
	}
}
