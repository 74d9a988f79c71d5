package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string
	UserName     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	LastModified time.Time
}

// Session is the server-side record behind the session cookie. The cookie
// carries only the raw token; the row stores its sha256 hash. UserID is nil
// until the session transitions to authenticated.
type Session struct {
	ID            string
	UserID        *string
	TokenHash     string
	CSRFToken     string
	IPHint        string
	UserAgentHash string
	CreatedAt     time.Time
	LastSeenAt    time.Time
	IdleExpiresAt time.Time
	ExpiresAt     time.Time
}

func (s Session) Authenticated() bool {
	return s.UserID != nil && *s.UserID != ""
}

type Contribution struct {
	UserID    string    `json:"userId"`
	Pretax    float64   `json:"pretax"`
	Roth      float64   `json:"roth"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Memo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"createdAt"`
}

type Stock struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	AuditLoginAttempt = "login_attempt"
	AuditSignup       = "signup"
	AuditLogout       = "logout"
	AuditNotFound     = "not_found"
	AuditException    = "exception"
)

const AnonymousUser = "anonymous"

// AuditEvent is append-only; Detail never contains passwords or raw tokens.
type AuditEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id"`
	ClientIP  string    `json:"client_ip"`
	UserAgent string    `json:"user_agent"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
