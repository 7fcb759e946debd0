package models

import "time"

// Identity is the resolved caller of a protected request.
type Identity struct {
	AccountID   int64
	Username    string
	Email       string
	FullName    string
	Role        string
	Permissions Permissions
	// Token is the validated access token, kept for logout-by-token.
	Token     string
	ExpiresAt time.Time
}

// HasRole reports whether the identity holds one of roles.
func (i *Identity) HasRole(roles ...string) bool {
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}
