// Package auth implements the identity core of the dashboard: user and
// API-key credentials, the permission resolver, the session store, and the
// per-request authenticator.
package auth

import "time"

// User represents a dashboard account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose hash
	IsOwner      bool      `json:"is_owner"`
	Grants       Grants    `json:"grants"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grants are the four explicit capabilities attachable to a user.
// An owner supersedes them: IsOwner forces all four at resolution time.
type Grants struct {
	AllowRead   bool `json:"allow_read"`
	AllowWrite  bool `json:"allow_write"`
	AllowDelete bool `json:"allow_delete"`
	AllowAdmin  bool `json:"allow_admin"`
}

// APIKey represents an API key. The public id travels in requests, only a
// hash of the secret is stored. Keys carry no permissions of their own,
// they inherit the owning user's grants at resolution time.
type APIKey struct {
	ID          string    `json:"id"`
	SecretHash  string    `json:"-"` // Never expose hash
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// PermissionSet is the resolved capability bundle governing one request.
// It is a value, computed once per request and never mutated.
type PermissionSet struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
	Admin  bool `json:"admin"`
}

// Has reports whether the set includes the given dimension
func (p PermissionSet) Has(dim Dimension) bool {
	switch dim {
	case Read:
		return p.Read
	case Write:
		return p.Write
	case Delete:
		return p.Delete
	case Admin:
		return p.Admin
	}
	return false
}

// Dimension names one of the four permission dimensions
type Dimension string

const (
	Read   Dimension = "read"
	Write  Dimension = "write"
	Delete Dimension = "delete"
	Admin  Dimension = "admin"
)

// IdentityKind is the terminal state of the per-request authentication
// state machine. Rejected requests never produce an Identity, they fail
// with ErrAuthenticationRejected instead.
type IdentityKind int

const (
	// Anonymous is an unauthenticated request, governed by default policy
	Anonymous IdentityKind = iota
	// SessionUser is a user authenticated through a browser session
	SessionUser
	// APIKeyUser is a user authenticated through an API key
	APIKeyUser
)

func (k IdentityKind) String() string {
	switch k {
	case Anonymous:
		return "anonymous"
	case SessionUser:
		return "session"
	case APIKeyUser:
		return "api_key"
	}
	return "invalid"
}

// Identity is the resolved caller of one request
type Identity struct {
	Kind IdentityKind
	User *User   // nil for Anonymous
	Key  *APIKey // set for APIKeyUser only
}

// AuthContext is attached to every request: who the caller is and what
// they may do. Handlers thread it through to the stores.
type AuthContext struct {
	Identity    Identity
	Permissions PermissionSet
}
