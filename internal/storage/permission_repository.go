package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/church-connect/backend/internal/storage/models"
)

// PermissionRepository provides data access for calendars and their grants.
type PermissionRepository struct {
	BaseRepository
}

// NewPermissionRepository creates a new permission repository.
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// CreateCalendar inserts a calendar.
func (r *PermissionRepository) CreateCalendar(ctx context.Context, cal *models.Calendar) error {
	cal.ID = GenerateID()
	cal.CreatedAt = r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendars (id, name, owner_user_id, church_id, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, cal.ID, cal.Name, cal.OwnerUserID, cal.ChurchID, cal.IsPublic, cal.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

// GetCalendar retrieves a calendar by ID.
func (r *PermissionRepository) GetCalendar(ctx context.Context, id string) (*models.Calendar, error) {
	cal := &models.Calendar{}
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, name, owner_user_id, church_id, is_public, created_at
		FROM calendars WHERE id = ?
	`, id).Scan(&cal.ID, &cal.Name, &cal.OwnerUserID, &cal.ChurchID, &cal.IsPublic, &cal.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	return cal, nil
}

// CreatePermission inserts a grant on a calendar.
func (r *PermissionRepository) CreatePermission(ctx context.Context, p *models.CalendarPermission) error {
	p.ID = GenerateID()
	p.CreatedAt = r.Now()
	if p.Level == "" {
		p.Level = models.PermissionRead
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_permissions (
			id, calendar_id, user_id, role, church_id, level, granted_by, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.CalendarID, p.UserID, p.Role, p.ChurchID, p.Level, p.GrantedBy, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting permission: %w", err)
	}
	return nil
}

// ListByCalendar retrieves all grants on a calendar, expired ones included.
// Expiry is evaluated lazily by the access checker; grants are never
// deleted when they lapse.
func (r *PermissionRepository) ListByCalendar(ctx context.Context, calendarID string) ([]models.CalendarPermission, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, calendar_id, user_id, role, church_id, level, granted_by, expires_at, created_at
		FROM calendar_permissions
		WHERE calendar_id = ?
		ORDER BY created_at
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	var perms []models.CalendarPermission
	for rows.Next() {
		var p models.CalendarPermission
		if err := rows.Scan(
			&p.ID, &p.CalendarID, &p.UserID, &p.Role, &p.ChurchID,
			&p.Level, &p.GrantedBy, &p.ExpiresAt, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
