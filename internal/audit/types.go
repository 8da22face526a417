package audit

import "time"

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// Canonical activity types recorded in the activity_log table.
const (
	ActionUserRegistered  = "user_registered"
	ActionUserLogin       = "user_login"
	ActionUserLogout      = "user_logout"
	ActionPasswordChanged = "password_changed"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	UserID    *int      `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`

	// activity marks events that also land in the activity_log table.
	activity bool
}
