package store

// Table names backing the authentication core.
const (
	TableUsers         = "users"
	TableSessions      = "sessions"
	TableLoginAttempts = "login_attempts"
	TableActivityLog   = "activity_log"
)

// tableSchemas fixes the ordered column set of every table. A rewrite always
// emits exactly these columns in this order; inserts and patches may not
// introduce columns outside the schema, and absent optional fields serialize
// as empty strings. This replaces deriving headers from the first record,
// which drifts as soon as two records disagree on their key set.
var tableSchemas = map[string][]string{
	TableUsers: {
		"id", "username", "email", "password_hash",
		"created_at", "updated_at", "last_login",
		"is_active", "is_verified", "verification_token",
		"reset_token", "reset_token_expires",
		"failed_login_attempts", "locked_until",
	},
	TableSessions: {
		"id", "user_id", "session_token", "ip_address", "user_agent",
		"created_at", "expires_at", "last_activity",
	},
	TableLoginAttempts: {
		"id", "username_or_email", "ip_address", "success", "attempted_at",
	},
	TableActivityLog: {
		"id", "user_id", "action_type", "action_details",
		"ip_address", "user_agent", "created_at",
	},
}

// tableIndexes lists the unique columns each table keeps a secondary index
// on. Single-field lookups on these columns skip the linear scan.
var tableIndexes = map[string][]string{
	TableUsers:    {"username", "email"},
	TableSessions: {"session_token"},
}

// Schema returns the ordered column list for a table, or nil if unknown.
func Schema(tableName string) []string {
	return tableSchemas[tableName]
}
