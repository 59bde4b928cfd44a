package models

import "strings"

// UserRole represents the roles recognised by the workflow.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleDirecteur UserRole = "DIRECTEUR"
	RoleDoctorant UserRole = "DOCTORANT"
)

// User is the identity record resolved from the external user service.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Role     UserRole `json:"role"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalizeRole upper-cases a role name and strips a ROLE_ prefix.
func NormalizeRole(raw string) UserRole {
	role := strings.ToUpper(strings.TrimSpace(raw))
	return UserRole(strings.TrimPrefix(role, "ROLE_"))
}
