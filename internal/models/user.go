package models

import "time"

// UserRole represents the roles resolved by the identity service.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleManager   UserRole = "manager"
	RoleInspector UserRole = "inspector"
	RoleStaff     UserRole = "staff"
)

// Valid reports whether the role is one this service understands.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleInspector, RoleStaff:
		return true
	default:
		return false
	}
}

// IsSupervisor reports whether the role may sign off audits and drive remediation.
func (r UserRole) IsSupervisor() bool {
	return r == RoleAdmin || r == RoleManager
}

// DirectoryUser is the slice of a user record this service reads from the shared users table.
type DirectoryUser struct {
	ID       string   `db:"id" json:"id"`
	TenantID string   `db:"tenant_id" json:"tenant_id"`
	FullName string   `db:"full_name" json:"full_name"`
	Email    string   `db:"email" json:"email"`
	Role     UserRole `db:"role" json:"role"`
	Active   bool     `db:"active" json:"active"`
}

// Restaurant is the directory view of a franchise location.
type Restaurant struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name"`
	City      *string   `db:"city" json:"city,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// PageRequest carries normalised paging input.
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps paging values to sane defaults.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p
}

// Offset returns the SQL offset for the page.
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}
