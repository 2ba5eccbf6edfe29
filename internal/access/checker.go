// Package access gates calendar reads and writes behind a single
// predicate so event feeds and calendar listings cannot diverge on what a
// user may see.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/church-connect/backend/internal/storage"
	"github.com/church-connect/backend/internal/storage/models"
)

// Checker evaluates calendar access. It fails closed: any uncertainty
// resolves to denial.
type Checker struct {
	permissions *storage.PermissionRepository
}

func nowUTC() time.Time { return time.Now().UTC() }

// NewChecker creates an access checker.
func NewChecker(permissions *storage.PermissionRepository) *Checker {
	return &Checker{permissions: permissions}
}

// CanAccessCalendar reports whether the user may read the calendar: they
// own it, their church owns it and they administer that church, a live
// grant names them (by user, role, or church), the calendar is global
// (ownerless), or they hold a superset role.
func (c *Checker) CanAccessCalendar(ctx context.Context, user *models.User, cal *models.Calendar) (bool, error) {
	if user == nil || cal == nil {
		return false, nil
	}

	if user.Role == models.RoleSuperAdmin || user.Role == models.RoleNetworkAdmin {
		return true, nil
	}

	if cal.OwnerUserID != nil && *cal.OwnerUserID == user.ID {
		return true, nil
	}

	if cal.ChurchID != nil && *cal.ChurchID == user.ChurchID && user.Role == models.RoleChurchAdmin {
		return true, nil
	}

	// Ownerless calendars are global.
	if cal.OwnerUserID == nil && cal.ChurchID == nil {
		return true, nil
	}

	if cal.IsPublic {
		return true, nil
	}

	grants, err := c.permissions.ListByCalendar(ctx, cal.ID)
	if err != nil {
		return false, fmt.Errorf("listing grants: %w", err)
	}

	now := nowUTC()
	for i := range grants {
		g := &grants[i]
		if !g.Active(now) {
			continue
		}
		if g.UserID != nil && *g.UserID == user.ID {
			return true, nil
		}
		if g.Role != nil && *g.Role == user.Role {
			return true, nil
		}
		if g.ChurchID != nil && *g.ChurchID == user.ChurchID && user.ChurchID != "" {
			return true, nil
		}
	}

	return false, nil
}

// CanManageCalendar reports whether the user may grant permissions on the
// calendar: ownership, church administration, a live write grant, or a
// superset role.
func (c *Checker) CanManageCalendar(ctx context.Context, user *models.User, cal *models.Calendar) (bool, error) {
	if user == nil || cal == nil {
		return false, nil
	}

	if user.Role == models.RoleSuperAdmin || user.Role == models.RoleNetworkAdmin {
		return true, nil
	}
	if cal.OwnerUserID != nil && *cal.OwnerUserID == user.ID {
		return true, nil
	}
	if cal.ChurchID != nil && *cal.ChurchID == user.ChurchID && user.Role == models.RoleChurchAdmin {
		return true, nil
	}

	grants, err := c.permissions.ListByCalendar(ctx, cal.ID)
	if err != nil {
		return false, fmt.Errorf("listing grants: %w", err)
	}

	now := nowUTC()
	for i := range grants {
		g := &grants[i]
		if !g.Active(now) || g.Level != models.PermissionWrite {
			continue
		}
		if g.UserID != nil && *g.UserID == user.ID {
			return true, nil
		}
	}

	return false, nil
}
