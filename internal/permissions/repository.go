package permissions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nexabase-io/nexabase/internal/database"
)

var (
	// ErrRoleNotFound is returned when a role name does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists is returned on duplicate role names
	ErrRoleExists = errors.New("role already exists")
	// ErrBuiltinRole is returned on attempts to delete admin or user
	ErrBuiltinRole = errors.New("built-in roles cannot be deleted")
)

// AdminRole is the privileged built-in role that bypasses resolution
const AdminRole = "admin"

// Role is a named permission bucket; every user has exactly one
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Priority    int       `json:"priority"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CollectionPermission is the role-default row for one (collection, role)
type CollectionPermission struct {
	ID           int64 `json:"id"`
	CollectionID int64 `json:"collection_id"`
	RoleID       int64 `json:"role_id"`
	PermissionSet
}

// UserOverride is the per-user tri-state overlay for one (user, collection)
type UserOverride struct {
	ID           int64 `json:"id"`
	UserID       int64 `json:"user_id"`
	CollectionID int64 `json:"collection_id"`
	OverrideSet
}

// RecordPermission is the per-record override; nil flags fall through to the
// collection-scope answer.
type RecordPermission struct {
	ID           int64 `json:"id"`
	CollectionID int64 `json:"collection_id"`
	RecordID     int64 `json:"record_id"`
	UserID       int64 `json:"user_id"`
	Read         Tri   `json:"read"`
	Update       Tri   `json:"update"`
	Delete       Tri   `json:"delete"`
}

// Repository persists roles and the three permission tables
type Repository struct {
	db *database.Connection
}

// NewRepository creates a permission repository
func NewRepository(db *database.Connection) *Repository {
	return &Repository{db: db}
}

// CreateRole inserts a new role
func (r *Repository) CreateRole(ctx context.Context, name string, priority int, description *string) (*Role, error) {
	res, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO roles (name, priority, description) VALUES (?, ?, ?)`,
		name, priority, description)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrRoleExists
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.getRoleByID(ctx, id)
}

func (r *Repository) getRoleByID(ctx context.Context, id int64) (*Role, error) {
	return scanRole(r.db.DB().QueryRowContext(ctx,
		`SELECT id, name, priority, description, created_at, updated_at FROM roles WHERE id = ?`, id))
}

// GetRole returns a role by name
func (r *Repository) GetRole(ctx context.Context, name string) (*Role, error) {
	return scanRole(r.db.DB().QueryRowContext(ctx,
		`SELECT id, name, priority, description, created_at, updated_at FROM roles WHERE name = ?`, name))
}

func scanRole(row *sql.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Priority, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	return &role, nil
}

// ListRoles returns all roles ordered by priority descending
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT id, name, priority, description, created_at, updated_at FROM roles ORDER BY priority DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Priority, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole mutates priority and description
func (r *Repository) UpdateRole(ctx context.Context, name string, priority int, description *string) (*Role, error) {
	res, err := r.db.DB().ExecContext(ctx,
		`UPDATE roles SET priority = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE name = ?`,
		priority, description, name)
	if err != nil {
		return nil, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, ErrRoleNotFound
	}
	return r.GetRole(ctx, name)
}

// DeleteRole removes a role; admin and user are protected
func (r *Repository) DeleteRole(ctx context.Context, name string) error {
	if name == AdminRole || name == "user" {
		return ErrBuiltinRole
	}
	res, err := r.db.DB().ExecContext(ctx, `DELETE FROM roles WHERE name = ?`, name)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// GetCollectionPermission returns the role-default row, or nil when absent
func (r *Repository) GetCollectionPermission(ctx context.Context, collectionID, roleID int64) (*CollectionPermission, error) {
	var p CollectionPermission
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT id, collection_id, role_id, can_create, can_read, can_update, can_delete, can_list
		 FROM collection_permissions WHERE collection_id = ? AND role_id = ?`,
		collectionID, roleID).
		Scan(&p.ID, &p.CollectionID, &p.RoleID, &p.Create, &p.Read, &p.Update, &p.Delete, &p.List)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SetCollectionPermission upserts the role-default row for (collection, role)
func (r *Repository) SetCollectionPermission(ctx context.Context, collectionID, roleID int64, set PermissionSet) error {
	_, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO collection_permissions (collection_id, role_id, can_create, can_read, can_update, can_delete, can_list)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection_id, role_id) DO UPDATE SET
		   can_create = excluded.can_create,
		   can_read = excluded.can_read,
		   can_update = excluded.can_update,
		   can_delete = excluded.can_delete,
		   can_list = excluded.can_list,
		   updated_at = CURRENT_TIMESTAMP`,
		collectionID, roleID, set.Create, set.Read, set.Update, set.Delete, set.List)
	return err
}

// ListCollectionPermissions returns every role-default row for a collection
func (r *Repository) ListCollectionPermissions(ctx context.Context, collectionID int64) ([]CollectionPermission, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT id, collection_id, role_id, can_create, can_read, can_update, can_delete, can_list
		 FROM collection_permissions WHERE collection_id = ?`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []CollectionPermission
	for rows.Next() {
		var p CollectionPermission
		if err := rows.Scan(&p.ID, &p.CollectionID, &p.RoleID, &p.Create, &p.Read, &p.Update, &p.Delete, &p.List); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetUserOverride returns the user override row, or nil when absent
func (r *Repository) GetUserOverride(ctx context.Context, userID, collectionID int64) (*UserOverride, error) {
	var (
		o                                      UserOverride
		create, read, update, deleteFlag, list *bool
	)
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT id, user_id, collection_id, can_create, can_read, can_update, can_delete, can_list
		 FROM user_collection_permissions WHERE user_id = ? AND collection_id = ?`,
		userID, collectionID).
		Scan(&o.ID, &o.UserID, &o.CollectionID, &create, &read, &update, &deleteFlag, &list)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	o.OverrideSet = OverrideSet{
		Create: TriFrom(create),
		Read:   TriFrom(read),
		Update: TriFrom(update),
		Delete: TriFrom(deleteFlag),
		List:   TriFrom(list),
	}
	return &o, nil
}

// SetUserOverride upserts the tri-state override for (user, collection)
func (r *Repository) SetUserOverride(ctx context.Context, userID, collectionID int64, set OverrideSet) error {
	_, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO user_collection_permissions (user_id, collection_id, can_create, can_read, can_update, can_delete, can_list)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, collection_id) DO UPDATE SET
		   can_create = excluded.can_create,
		   can_read = excluded.can_read,
		   can_update = excluded.can_update,
		   can_delete = excluded.can_delete,
		   can_list = excluded.can_list,
		   updated_at = CURRENT_TIMESTAMP`,
		userID, collectionID,
		set.Create.Ptr(), set.Read.Ptr(), set.Update.Ptr(), set.Delete.Ptr(), set.List.Ptr())
	return err
}

// GetRecordPermission returns the record override row, or nil when absent
func (r *Repository) GetRecordPermission(ctx context.Context, collectionID, recordID, userID int64) (*RecordPermission, error) {
	var (
		p                        RecordPermission
		read, update, deleteFlag *bool
	)
	err := r.db.DB().QueryRowContext(ctx,
		`SELECT id, collection_id, record_id, user_id, can_read, can_update, can_delete
		 FROM record_permissions WHERE collection_id = ? AND record_id = ? AND user_id = ?`,
		collectionID, recordID, userID).
		Scan(&p.ID, &p.CollectionID, &p.RecordID, &p.UserID, &read, &update, &deleteFlag)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Read = TriFrom(read)
	p.Update = TriFrom(update)
	p.Delete = TriFrom(deleteFlag)
	return &p, nil
}

// SetRecordPermission upserts the override for (collection, record, user)
func (r *Repository) SetRecordPermission(ctx context.Context, collectionID, recordID, userID int64, read, update, del Tri) error {
	_, err := r.db.DB().ExecContext(ctx,
		`INSERT INTO record_permissions (collection_id, record_id, user_id, can_read, can_update, can_delete)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection_id, record_id, user_id) DO UPDATE SET
		   can_read = excluded.can_read,
		   can_update = excluded.can_update,
		   can_delete = excluded.can_delete,
		   updated_at = CURRENT_TIMESTAMP`,
		collectionID, recordID, userID, read.Ptr(), update.Ptr(), del.Ptr())
	return err
}

// ListRecordPermissions returns every per-user override on one record
func (r *Repository) ListRecordPermissions(ctx context.Context, collectionID, recordID int64) ([]RecordPermission, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT id, collection_id, record_id, user_id, can_read, can_update, can_delete
		 FROM record_permissions WHERE collection_id = ? AND record_id = ?`,
		collectionID, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []RecordPermission
	for rows.Next() {
		var (
			p                        RecordPermission
			read, update, deleteFlag *bool
		)
		if err := rows.Scan(&p.ID, &p.CollectionID, &p.RecordID, &p.UserID, &read, &update, &deleteFlag); err != nil {
			return nil, err
		}
		p.Read = TriFrom(read)
		p.Update = TriFrom(update)
		p.Delete = TriFrom(deleteFlag)
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// DeleteRecordPermission removes one user's override on a record
func (r *Repository) DeleteRecordPermission(ctx context.Context, collectionID, recordID, userID int64) error {
	_, err := r.db.DB().ExecContext(ctx,
		`DELETE FROM record_permissions WHERE collection_id = ? AND record_id = ? AND user_id = ?`,
		collectionID, recordID, userID)
	return err
}

// AccessibleCollectionIDs returns the union of collections whose role-default
// row has any flag true and collections with any true user override.
func (r *Repository) AccessibleCollectionIDs(ctx context.Context, userID int64, roleName string) ([]int64, error) {
	rows, err := r.db.DB().QueryContext(ctx,
		`SELECT cp.collection_id FROM collection_permissions cp
		   JOIN roles ro ON ro.id = cp.role_id
		  WHERE ro.name = ?
		    AND (cp.can_create OR cp.can_read OR cp.can_update OR cp.can_delete OR cp.can_list)
		 UNION
		 SELECT ucp.collection_id FROM user_collection_permissions ucp
		  WHERE ucp.user_id = ?
		    AND (ucp.can_create = 1 OR ucp.can_read = 1 OR ucp.can_update = 1 OR ucp.can_delete = 1 OR ucp.can_list = 1)`,
		roleName, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
