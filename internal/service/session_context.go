package service

// SessionContext is the explicit session-context value passed into and
// returned from facade calls. The caller persists it across requests (e.g.
// behind a cookie-backed store); the facade never keeps ambient session
// state of its own.
type SessionContext struct {
	UserID       int    `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	SessionToken string `json:"-"`
	IPAddress    string `json:"ip_address"`
	UserAgent    string `json:"user_agent"`
	CsrfToken    string `json:"-"`
}

// HasIdentity reports whether the context carries a session claim worth
// checking against the store.
func (sc *SessionContext) HasIdentity() bool {
	return sc != nil && sc.UserID > 0 && sc.SessionToken != ""
}

// Clear wipes the identity from the context after logout.
func (sc *SessionContext) Clear() {
	sc.UserID = 0
	sc.Username = ""
	sc.Email = ""
	sc.SessionToken = ""
	sc.CsrfToken = ""
}
