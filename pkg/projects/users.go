package projects

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultProjectName names the starter project of a new user
const DefaultProjectName = "My First Project"

var userColumns = []string{"id", "external_id", "email", "name", "system_role", "is_active", "created_at", "updated_at"}

var initGroup singleflight.Group

// GetUser returns a user by id
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.findUser(ctx, s.conn, sq.Eq{"id": userID})
}

func (s *Service) findUser(ctx context.Context, q db.Querier, where sq.Sqlizer) (*User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	var u User
	if err := sqlscan.Get(ctx, q, &u, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (s *Service) lookupUser(ctx context.Context, q db.Querier, where sq.Sqlizer) (*User, error) {
	u, err := s.findUser(ctx, q, where)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	return u, err
}

// EnsureUser returns the local user for a verified identity, creating it on
// first login. A user invited by email is linked to the identity's subject.
func (s *Service) EnsureUser(ctx context.Context, identity Identity) (*User, error) {
	if identity.ExternalID == "" {
		return nil, apperr.Unauthenticated("Token has no subject")
	}

	u, err := s.lookupUser(ctx, s.conn, sq.Eq{"external_id": identity.ExternalID})
	if err != nil || u != nil {
		return u, err
	}

	email := normalizeEmail(identity.Email)
	if email != "" {
		u, err = s.lookupUser(ctx, s.conn, sq.Eq{"email": email, "external_id": nil})
		if err != nil {
			return nil, err
		}
		if u != nil {
			query, args, err := psql.Update("users").
				Set("external_id", identity.ExternalID).
				Set("updated_at", s.now()).
				Where(sq.Eq{"id": u.ID}).ToSql()
			if err != nil {
				return nil, err
			}
			if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
				return nil, apperr.FromDB(fmt.Errorf("failed to link user: %w", err), "User")
			}
			ext := identity.ExternalID
			u.ExternalID = &ext
			return u, nil
		}
	} else {
		email = identity.ExternalID + "@users.invalid"
	}

	role := identity.SystemRole
	if !role.Valid() {
		role = rbac.SystemRoleViewer
	}
	ext := identity.ExternalID
	u, err = s.insertUser(ctx, s.conn, &ext, email, identity.Name, role)
	if apperr.Is(err, apperr.KindConflict) {
		// Concurrent first login of the same subject.
		return s.lookupUser(ctx, s.conn, sq.Eq{"external_id": identity.ExternalID})
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": u.ID, "system_role": u.SystemRole}).Info("Created user on first login")
	s.record(ctx, audit.Entry{UserID: u.ID, Action: audit.ActionCreate, Entity: "user", EntityID: u.ID})
	return u, nil
}

func (s *Service) insertUser(ctx context.Context, q db.Querier, externalID *string, email, name string, role rbac.SystemRole) (*User, error) {
	now := s.now()
	u := &User{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Email:      email,
		Name:       name,
		SystemRole: role,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.ExternalID, u.Email, u.Name, string(u.SystemRole), true, now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, apperr.FromDB(fmt.Errorf("failed to create user: %w", err), "User")
	}
	return u, nil
}

// InitializeUser gives a user with no memberships a starter project they
// own. Repeated calls return the existing state.
func (s *Service) InitializeUser(ctx context.Context, userID string) (*InitResult, error) {
	v, err, _ := initGroup.Do(userID, func() (interface{}, error) {
		return s.initializeUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*InitResult), nil
}

func (s *Service) initializeUser(ctx context.Context, userID string) (*InitResult, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.Forbidden("User is inactive")
	}

	result := &InitResult{User: user}
	err = db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		var n int
		query := `SELECT COUNT(*) FROM project_members WHERE user_id = $1`
		if err := tx.QueryRowContext(ctx, query, userID).Scan(&n); err != nil {
			return fmt.Errorf("failed to count memberships: %w", err)
		}
		if n > 0 {
			return nil
		}
		project, err := s.insertProject(ctx, tx, userID, ProjectInput{Name: DefaultProjectName})
		if err != nil {
			return err
		}
		result.Project = project
		result.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.record(ctx, audit.Entry{
			UserID:    userID,
			ProjectID: result.Project.ID,
			Action:    audit.ActionInitialize,
			Entity:    "user",
			EntityID:  userID,
		})
	}
	return result, nil
}

// Invite adds somebody to the project by email, creating the user when
// needed. The identity provider account is provisioned before the local
// transaction so a provider failure leaves no local rows.
func (s *Service) Invite(ctx context.Context, sc *rbac.SecurityContext, input InviteInput) (*InviteResult, error) {
	if err := requireManager(sc); err != nil {
		return nil, err
	}
	if err := validateAssignableRole(input.Role); err != nil {
		return nil, err
	}
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, apperr.Validation("Email is required", map[string]string{"email": "is required"})
	}

	existing, err := s.lookupUser(ctx, s.conn, sq.Eq{"email": email})
	if err != nil {
		return nil, err
	}

	var externalID *string
	if existing == nil && s.provisioner != nil {
		subject, err := s.provisioner.ProvisionUser(ctx, email, input.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to provision user: %w", err)
		}
		externalID = &subject
	}

	result := &InviteResult{}
	err = db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		user := existing
		if user == nil {
			user, err = s.insertUser(ctx, tx, externalID, email, input.Name, rbac.SystemRoleViewer)
			if err != nil {
				return err
			}
			result.UserCreated = true
		} else {
			member, err := s.getMember(ctx, tx, sc.ProjectID(), user.ID)
			if err != nil {
				return err
			}
			if member != nil && member.IsActive {
				return apperr.Conflict("member already exists")
			}
		}
		result.User = user

		if err := s.upsertMember(ctx, tx, sc.ProjectID(), user.ID, input.Role); err != nil {
			return err
		}
		result.Member, err = s.getMember(ctx, tx, sc.ProjectID(), user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionInvite,
		Entity:    "user",
		EntityID:  result.User.ID,
		Metadata: map[string]interface{}{
			"email":       email,
			"role":        string(input.Role),
			"userCreated": result.UserCreated,
		},
	})
	return result, nil
}

// SetSystemRole changes a user's system role. Only admins may do this.
func (s *Service) SetSystemRole(ctx context.Context, actorID, userID string, role rbac.SystemRole) (*User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("Invalid system role", map[string]string{"role": string(role)})
	}
	if actorID == userID && role != rbac.SystemRoleAdmin {
		return nil, apperr.Conflict("Admins cannot demote themselves")
	}

	before, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.setUser(ctx, userID, map[string]interface{}{"system_role": string(role)}); err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		UserID:   actorID,
		Action:   audit.ActionRoleChange,
		Entity:   "user",
		EntityID: userID,
		Metadata: map[string]interface{}{"from": string(before.SystemRole), "to": string(role)},
	})
	return s.GetUser(ctx, userID)
}

// DeactivateUser blocks a user everywhere. Memberships are kept so the user
// can be reactivated later.
func (s *Service) DeactivateUser(ctx context.Context, actorID, userID string) (*User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if actorID == userID {
		return nil, apperr.Conflict("Admins cannot deactivate themselves")
	}
	if err := s.setUser(ctx, userID, map[string]interface{}{"is_active": false}); err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		UserID:   actorID,
		Action:   audit.ActionDeactivate,
		Entity:   "user",
		EntityID: userID,
	})
	return s.GetUser(ctx, userID)
}

func (s *Service) setUser(ctx context.Context, userID string, set map[string]interface{}) error {
	set["updated_at"] = s.now()
	query, args, err := psql.Update("users").SetMap(set).Where(sq.Eq{"id": userID}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) error {
	actor, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if actor == nil || !actor.IsActive || actor.SystemRole != rbac.SystemRoleAdmin {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
