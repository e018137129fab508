package auth

// UserContext represents the authenticated caller of a request
type UserContext struct {
	Subject   string   `json:"subject"`
	Role      string   `json:"role"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"` // jwt or dev
}

// HasScope reports whether the caller holds scope.
func (u *UserContext) HasScope(scope string) bool {
	for _, s := range u.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Scopes for authorization
const (
	ScopeDebatesRead  = "debates:read"
	ScopeDebatesWrite = "debates:write"
	ScopeHitlDecide   = "hitl:decide"
)

// User roles
const (
	RoleViewer   = "viewer"
	RoleUser     = "user"
	RoleReviewer = "reviewer"
)
