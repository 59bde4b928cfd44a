package models

import "time"

// JWTClaims is the normalized identity extracted from an access token.
type JWTClaims struct {
	UserID    string     `json:"userId"`
	Role      UserRole   `json:"role"`
	Roles     []UserRole `json:"roles"`
	Email     string     `json:"email,omitempty"`
	FullName  string     `json:"fullName,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// HasRole reports whether any of the token roles matches.
func (c *JWTClaims) HasRole(roles ...UserRole) bool {
	if c == nil {
		return false
	}
	for _, want := range roles {
		if c.Role == want {
			return true
		}
		for _, have := range c.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (c *JWTClaims) IsAdmin() bool {
	return c.HasRole(RoleAdmin)
}
