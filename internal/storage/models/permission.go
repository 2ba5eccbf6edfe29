package models

import (
	"time"
)

// Roles with elevated access. Superset roles bypass all calendar checks.
const (
	RoleSuperAdmin   = "super_admin"
	RoleNetworkAdmin = "network_admin"
	RoleChurchAdmin  = "church_admin"
	RoleMember       = "member"
)

// Permission levels on a calendar.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// User is the minimal account shape the permission layer consults.
type User struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	ChurchID string `json:"church_id,omitempty"`
}

// Calendar is an owned calendar within the organization. A calendar with no
// owner and no church is global and readable by everyone.
type Calendar struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerUserID *string   `json:"owner_user_id,omitempty"`
	ChurchID    *string   `json:"church_id,omitempty"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
}

// CalendarPermission grants read or write access on a calendar to a user,
// role, or church. Expired grants are treated as absent without being
// deleted (lazy expiry).
type CalendarPermission struct {
	ID         string     `json:"id"`
	CalendarID string     `json:"calendar_id"`
	UserID     *string    `json:"user_id,omitempty"`
	Role       *string    `json:"role,omitempty"`
	ChurchID   *string    `json:"church_id,omitempty"`
	Level      string     `json:"level"`
	GrantedBy  string     `json:"granted_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Active reports whether the grant is currently effective.
func (p *CalendarPermission) Active(now time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}
