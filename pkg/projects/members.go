package projects

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/rbac"
)

var memberColumns = []string{
	"pm.id", "pm.project_id", "pm.user_id", "pm.role", "pm.is_active", "pm.created_at",
	"u.email", "u.name",
}

// ListMembers returns the active members of the project
func (s *Service) ListMembers(ctx context.Context, sc *rbac.SecurityContext) ([]*Member, error) {
	if sc == nil {
		return nil, apperr.Forbidden("Access denied")
	}
	query, args, err := psql.Select(memberColumns...).
		From("project_members pm").
		Join("users u ON u.id = pm.user_id").
		Where(sq.Eq{"pm.project_id": sc.ProjectID(), "pm.is_active": true}).
		OrderBy("pm.created_at", "pm.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	members := []*Member{}
	if err := sqlscan.Select(ctx, s.conn, &members, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

func (s *Service) getMember(ctx context.Context, q db.Querier, projectID, userID string) (*Member, error) {
	query, args, err := psql.Select(memberColumns...).
		From("project_members pm").
		Join("users u ON u.id = pm.user_id").
		Where(sq.Eq{"pm.project_id": projectID, "pm.user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var m Member
	if err := sqlscan.Get(ctx, q, &m, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// AddMember adds an existing user to the project. A previously removed
// member is reactivated with the new role.
func (s *Service) AddMember(ctx context.Context, sc *rbac.SecurityContext, userID string, role rbac.ProjectRole) (*Member, error) {
	if err := requireManager(sc); err != nil {
		return nil, err
	}
	if err := validateAssignableRole(role); err != nil {
		return nil, err
	}

	var member *Member
	err := db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		user, err := s.store.WithQuerier(tx).GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return apperr.NotFound("User")
		}

		existing, err := s.getMember(ctx, tx, sc.ProjectID(), userID)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsActive {
			return apperr.Conflict("member already exists")
		}

		if err := s.upsertMember(ctx, tx, sc.ProjectID(), userID, role); err != nil {
			return err
		}
		member, err = s.getMember(ctx, tx, sc.ProjectID(), userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionCreate,
		Entity:    "project_member",
		EntityID:  userID,
		Metadata:  map[string]interface{}{"role": string(role)},
	})
	return member, nil
}

// UpdateMemberRole changes a member's role and reseeds module access to the
// new role's defaults. The owner's role cannot be changed.
func (s *Service) UpdateMemberRole(ctx context.Context, sc *rbac.SecurityContext, userID string, role rbac.ProjectRole) (*Member, error) {
	if err := requireManager(sc); err != nil {
		return nil, err
	}
	if err := validateAssignableRole(role); err != nil {
		return nil, err
	}

	var (
		member   *Member
		previous rbac.ProjectRole
	)
	err := db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		existing, err := s.getMember(ctx, tx, sc.ProjectID(), userID)
		if err != nil {
			return err
		}
		if existing == nil || !existing.IsActive {
			return apperr.NotFound("Member")
		}
		if existing.Role == rbac.ProjectRoleOwner {
			return apperr.Conflict("The project owner's role cannot be changed")
		}
		previous = existing.Role

		if err := s.upsertMember(ctx, tx, sc.ProjectID(), userID, role); err != nil {
			return err
		}
		member, err = s.getMember(ctx, tx, sc.ProjectID(), userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionRoleChange,
		Entity:    "project_member",
		EntityID:  userID,
		Metadata:  map[string]interface{}{"from": string(previous), "to": string(role)},
	})
	return member, nil
}

// RemoveMember deactivates a membership. Module access rows stay but are
// ignored while the membership is inactive.
func (s *Service) RemoveMember(ctx context.Context, sc *rbac.SecurityContext, userID string) error {
	if err := requireManager(sc); err != nil {
		return err
	}

	existing, err := s.getMember(ctx, s.conn, sc.ProjectID(), userID)
	if err != nil {
		return err
	}
	if existing == nil || !existing.IsActive {
		return apperr.NotFound("Member")
	}
	if existing.Role == rbac.ProjectRoleOwner {
		return apperr.Conflict("The project owner cannot be removed")
	}

	query, args, err := psql.Update("project_members").
		Set("is_active", false).
		Set("updated_at", s.now()).
		Where(sq.Eq{"project_id": sc.ProjectID(), "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionDeactivate,
		Entity:    "project_member",
		EntityID:  userID,
	})
	return nil
}

// ModuleAccessInput sets the flags of one module
type ModuleAccessInput struct {
	Module     rbac.Module `json:"module" validate:"required"`
	CanView    bool        `json:"canView"`
	CanEdit    bool        `json:"canEdit"`
	CanUpload  bool        `json:"canUpload"`
	CanRequest bool        `json:"canRequest"`
}

// SetModuleAccess overrides module flags for an active member
func (s *Service) SetModuleAccess(ctx context.Context, sc *rbac.SecurityContext, userID string, inputs []ModuleAccessInput) ([]rbac.ModuleAccess, error) {
	if err := requireManager(sc); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, apperr.Validation("At least one module is required", map[string]string{"modules": "is required"})
	}
	for i, in := range inputs {
		m, err := rbac.ParseModule(string(in.Module))
		if err != nil {
			return nil, apperr.Validation("Unknown module", map[string]string{"module": string(in.Module)})
		}
		inputs[i].Module = m
	}

	var access []rbac.ModuleAccess
	err := db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		existing, err := s.getMember(ctx, tx, sc.ProjectID(), userID)
		if err != nil {
			return err
		}
		if existing == nil || !existing.IsActive {
			return apperr.NotFound("Member")
		}

		store := s.store.WithQuerier(tx)
		now := s.now()
		for _, in := range inputs {
			row := rbac.ModuleAccess{
				Module:     in.Module,
				CanView:    in.CanView || in.CanEdit,
				CanEdit:    in.CanEdit,
				CanUpload:  in.CanUpload,
				CanRequest: in.CanRequest,
			}
			if err := store.UpsertModuleAccess(ctx, userID, sc.ProjectID(), row, now); err != nil {
				return err
			}
		}
		access, err = store.ListModuleAccess(ctx, userID, sc.ProjectID())
		return err
	})
	if err != nil {
		return nil, err
	}

	modules := make([]string, 0, len(inputs))
	for _, in := range inputs {
		modules = append(modules, string(in.Module))
	}
	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionUpdate,
		Entity:    "module_access",
		EntityID:  userID,
		Metadata:  map[string]interface{}{"modules": modules},
	})
	return access, nil
}

// GetMemberAccess returns the module rows of an active member
func (s *Service) GetMemberAccess(ctx context.Context, sc *rbac.SecurityContext, userID string) ([]rbac.ModuleAccess, error) {
	if sc == nil {
		return nil, apperr.Forbidden("Access denied")
	}
	existing, err := s.getMember(ctx, s.conn, sc.ProjectID(), userID)
	if err != nil {
		return nil, err
	}
	if existing == nil || !existing.IsActive {
		return nil, apperr.NotFound("Member")
	}
	return s.store.ListModuleAccess(ctx, userID, sc.ProjectID())
}

// upsertMember inserts or reactivates a membership and reseeds its module
// access with the role's defaults.
func (s *Service) upsertMember(ctx context.Context, q db.Querier, projectID, userID string, role rbac.ProjectRole) error {
	now := s.now()
	query, args, err := psql.Insert("project_members").
		Columns("id", "project_id", "user_id", "role", "is_active", "created_at", "updated_at").
		Values(uuid.NewString(), projectID, userID, string(role), true, now, now).
		Suffix("ON CONFLICT (project_id, user_id) DO UPDATE SET role = excluded.role, is_active = excluded.is_active, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}

	store := s.store.WithQuerier(q)
	defaults := s.engine.Capabilities().DefaultAccess(role)
	seeded := make(map[rbac.Module]bool, len(defaults))
	for _, row := range defaults {
		seeded[row.Module] = true
		if err := store.UpsertModuleAccess(ctx, userID, projectID, row, now); err != nil {
			return err
		}
	}
	// Modules the role has no default for are cleared so a downgrade
	// removes access granted to the previous role.
	for _, m := range rbac.AllModules {
		if seeded[m] {
			continue
		}
		if err := store.UpsertModuleAccess(ctx, userID, projectID, rbac.ModuleAccess{Module: m}, now); err != nil {
			return err
		}
	}
	return nil
}

func validateAssignableRole(role rbac.ProjectRole) error {
	if !role.Valid() {
		return apperr.Validation("Invalid project role", map[string]string{"role": string(role)})
	}
	if role == rbac.ProjectRoleOwner {
		return apperr.Validation("A project has exactly one owner", map[string]string{"role": "OWNER cannot be assigned"})
	}
	return nil
}
