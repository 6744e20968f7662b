package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/db"
)

// Store reads and writes users, memberships and module access rows
type Store struct {
	q db.Querier
}

// NewStore creates a new RBAC store
func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// WithQuerier returns a store bound to q, typically a transaction
func (s *Store) WithQuerier(q db.Querier) *Store {
	return &Store{q: q}
}

// GetUser returns the user or nil when it does not exist
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	query := `SELECT id, system_role, is_active FROM users WHERE id = $1`

	var u User
	if err := sqlscan.Get(ctx, s.q, &u, query, userID); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ProjectExists reports whether a non-deleted project exists
func (s *Store) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	query := `SELECT COUNT(*) FROM projects WHERE id = $1 AND deleted_at IS NULL`

	var n int
	if err := s.q.QueryRowContext(ctx, query, projectID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check project: %w", err)
	}
	return n > 0, nil
}

// GetMembership returns the active membership or nil
func (s *Store) GetMembership(ctx context.Context, projectID, userID string) (*Membership, error) {
	query := `
		SELECT pm.project_id, pm.user_id, pm.role
		FROM project_members pm
		JOIN projects p ON p.id = pm.project_id
		WHERE pm.project_id = $1 AND pm.user_id = $2 AND pm.is_active = $3 AND p.deleted_at IS NULL
	`

	var m Membership
	if err := sqlscan.Get(ctx, s.q, &m, query, projectID, userID, true); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// GetModuleAccess returns the module row of an active member of a live
// project, or nil when the row, the membership or the project is missing.
func (s *Store) GetModuleAccess(ctx context.Context, userID, projectID string, module Module) (*ModuleAccess, error) {
	query := `
		SELECT uma.module, uma.can_view, uma.can_edit, uma.can_upload, uma.can_request
		FROM user_module_access uma
		JOIN project_members pm ON pm.project_id = uma.project_id AND pm.user_id = uma.user_id
		JOIN projects p ON p.id = uma.project_id
		WHERE uma.user_id = $1 AND uma.project_id = $2 AND uma.module = $3 AND pm.is_active = $4
		  AND p.deleted_at IS NULL
	`

	var access ModuleAccess
	if err := sqlscan.Get(ctx, s.q, &access, query, userID, projectID, string(module), true); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get module access: %w", err)
	}
	return &access, nil
}

// ListModuleAccess returns every module row of a user in a project
func (s *Store) ListModuleAccess(ctx context.Context, userID, projectID string) ([]ModuleAccess, error) {
	query := `
		SELECT module, can_view, can_edit, can_upload, can_request
		FROM user_module_access
		WHERE user_id = $1 AND project_id = $2
		ORDER BY module
	`

	var rows []ModuleAccess
	if err := sqlscan.Select(ctx, s.q, &rows, query, userID, projectID); err != nil {
		return nil, fmt.Errorf("failed to list module access: %w", err)
	}
	return rows, nil
}

// UpsertModuleAccess creates or replaces one module row
func (s *Store) UpsertModuleAccess(ctx context.Context, userID, projectID string, access ModuleAccess, now time.Time) error {
	query := `
		INSERT INTO user_module_access (id, user_id, project_id, module, can_view, can_edit, can_upload, can_request, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, project_id, module) DO UPDATE SET
			can_view = excluded.can_view,
			can_edit = excluded.can_edit,
			can_upload = excluded.can_upload,
			can_request = excluded.can_request,
			updated_at = excluded.updated_at
	`

	_, err := s.q.ExecContext(ctx, query,
		uuid.NewString(), userID, projectID, string(access.Module),
		access.CanView, access.CanEdit, access.CanUpload, access.CanRequest,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert module access: %w", err)
	}
	return nil
}

// ListAllProjectIDs returns every non-deleted project
func (s *Store) ListAllProjectIDs(ctx context.Context) ([]string, error) {
	query := `SELECT id FROM projects WHERE deleted_at IS NULL ORDER BY created_at, id`

	var ids []string
	if err := sqlscan.Select(ctx, s.q, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return ids, nil
}

// ListMemberProjectIDs returns the non-deleted projects a user is an active member of
func (s *Store) ListMemberProjectIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT p.id
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1 AND pm.is_active = $2 AND p.deleted_at IS NULL
		ORDER BY p.created_at, p.id
	`

	var ids []string
	if err := sqlscan.Select(ctx, s.q, &ids, query, userID, true); err != nil {
		return nil, fmt.Errorf("failed to list member projects: %w", err)
	}
	return ids, nil
}
