package projects

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var projectColumns = []string{
	"id", "name", "description", "status", "archived", "budget_total", "address",
	"start_date", "end_date", "owner_id", "created_at", "updated_at", "deleted_at",
}

// Provisioner creates the account at the identity provider before the local
// user row exists. It returns the provider's subject id.
type Provisioner interface {
	ProvisionUser(ctx context.Context, email, name string) (string, error)
}

// Service manages projects, members and users
type Service struct {
	conn        *sql.DB
	engine      *rbac.Engine
	store       *rbac.Store
	audit       audit.Logger
	logger      logrus.FieldLogger
	provisioner Provisioner
	now         func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithProvisioner makes Invite create accounts at the identity provider
func WithProvisioner(p Provisioner) Option {
	return func(s *Service) { s.provisioner = p }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new project service
func NewService(conn *sql.DB, engine *rbac.Engine, auditLogger audit.Logger, logger logrus.FieldLogger, opts ...Option) *Service {
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	s := &Service{
		conn:   conn,
		engine: engine,
		store:  engine.Store(),
		audit:  auditLogger,
		logger: logger.WithField("component", "projects"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProject creates a project owned by userID. The owner membership and
// its module access rows are written in the same transaction.
func (s *Service) CreateProject(ctx context.Context, userID string, input ProjectInput) (*Project, error) {
	if err := s.engine.Authorize(ctx, userID, "", rbac.NoModule, rbac.ActionWrite); err != nil {
		return nil, err
	}

	var project *Project
	err := db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		var err error
		project, err = s.insertProject(ctx, tx, userID, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		UserID:    userID,
		ProjectID: project.ID,
		Action:    audit.ActionCreate,
		Entity:    "project",
		EntityID:  project.ID,
		Metadata:  map[string]interface{}{"name": project.Name},
	})
	return project, nil
}

func (s *Service) insertProject(ctx context.Context, q db.Querier, ownerID string, input ProjectInput) (*Project, error) {
	if input.Name == "" {
		return nil, apperr.Validation("Project name is required", map[string]string{"name": "is required"})
	}
	status := input.Status
	if status == "" {
		status = StatusPlanning
	}

	now := s.now()
	p := &Project{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: input.Description,
		Status:      status,
		BudgetTotal: input.BudgetTotal,
		Address:     input.Address,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query, args, err := psql.Insert("projects").
		Columns("id", "name", "description", "status", "archived", "budget_total", "address",
			"start_date", "end_date", "owner_id", "created_at", "updated_at").
		Values(p.ID, p.Name, p.Description, p.Status, false, p.BudgetTotal.StringFixed(2), p.Address,
			p.StartDate, p.EndDate, p.OwnerID, now, now).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	if err := s.upsertMember(ctx, q, p.ID, ownerID, rbac.ProjectRoleOwner); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjects returns the projects visible to userID, newest first
func (s *Service) ListProjects(ctx context.Context, userID string, includeArchived bool, limit, offset uint64) ([]*Project, int64, error) {
	ids, err := s.engine.GetUserProjects(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []*Project{}, 0, nil
	}

	conds := sq.And{sq.Eq{"id": ids}, sq.Eq{"deleted_at": nil}}
	if !includeArchived {
		conds = append(conds, sq.Eq{"archived": false})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("projects").Where(conds).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := s.conn.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	builder := psql.Select(projectColumns...).From("projects").Where(conds).OrderBy("created_at DESC", "id")
	if limit > 0 {
		builder = builder.Limit(limit).Offset(offset)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, err
	}

	projects := []*Project{}
	if err := sqlscan.Select(ctx, s.conn, &projects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	for _, p := range projects {
		s.redact(ctx, userID, p)
	}
	return projects, total, nil
}

// GetProject returns the project the security context is bound to
func (s *Service) GetProject(ctx context.Context, sc *rbac.SecurityContext) (*Project, error) {
	if sc == nil {
		return nil, apperr.Forbidden("Access denied")
	}
	p, err := s.getProject(ctx, s.conn, sc.ProjectID())
	if err != nil {
		return nil, err
	}
	if !sc.CanViewFinancials() {
		p.BudgetTotal = decimal.Zero
	}
	return p, nil
}

func (s *Service) getProject(ctx context.Context, q db.Querier, projectID string) (*Project, error) {
	query, args, err := psql.Select(projectColumns...).From("projects").
		Where(sq.Eq{"id": projectID, "deleted_at": nil}).ToSql()
	if err != nil {
		return nil, err
	}
	var p Project
	if err := sqlscan.Get(ctx, q, &p, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return nil, apperr.NotFound("Project")
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ProjectPatch updates a project. Nil fields are left alone.
type ProjectPatch struct {
	Name        *string          `json:"name" db:"name" validate:"omitempty,max=200"`
	Description *string          `json:"description" db:"description" validate:"omitempty,max=2000"`
	Status      *string          `json:"status" db:"status" validate:"omitempty,oneof=PLANNING ACTIVE ON_HOLD COMPLETED"`
	BudgetTotal *decimal.Decimal `json:"budgetTotal" db:"budget_total"`
	Address     *string          `json:"address" db:"address"`
	StartDate   *time.Time       `json:"startDate" db:"start_date"`
	EndDate     *time.Time       `json:"endDate" db:"end_date"`
}

func (p ProjectPatch) changes() map[string]interface{} {
	set := map[string]interface{}{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.BudgetTotal != nil {
		set["budget_total"] = p.BudgetTotal.StringFixed(2)
	}
	if p.Address != nil {
		set["address"] = *p.Address
	}
	if p.StartDate != nil {
		set["start_date"] = p.StartDate.UTC()
	}
	if p.EndDate != nil {
		set["end_date"] = p.EndDate.UTC()
	}
	return set
}

// UpdateProject applies patch. Only managers may update project settings,
// and only financial roles may change the budget total.
func (s *Service) UpdateProject(ctx context.Context, sc *rbac.SecurityContext, patch ProjectPatch) (*Project, error) {
	if err := requireManager(sc); err != nil {
		return nil, err
	}
	if patch.BudgetTotal != nil && !sc.CanViewFinancials() {
		return nil, apperr.Forbidden("Budget total requires financial access")
	}
	if patch.Name != nil && *patch.Name == "" {
		return nil, apperr.Validation("Project name is required", map[string]string{"name": "is required"})
	}

	set := patch.changes()
	if len(set) > 0 {
		if err := s.setProject(ctx, sc.ProjectID(), set); err != nil {
			return nil, err
		}
		s.record(ctx, audit.Entry{
			UserID:    sc.UserID(),
			ProjectID: sc.ProjectID(),
			Action:    audit.ActionUpdate,
			Entity:    "project",
			EntityID:  sc.ProjectID(),
			Metadata:  map[string]interface{}{"fields": keys(set)},
		})
	}
	return s.GetProject(ctx, sc)
}

// ArchiveProject hides the project from default listings
func (s *Service) ArchiveProject(ctx context.Context, sc *rbac.SecurityContext, archived bool) (*Project, error) {
	if err := requireManager(sc); err != nil {
		return nil, err
	}
	if err := s.setProject(ctx, sc.ProjectID(), map[string]interface{}{"archived": archived}); err != nil {
		return nil, err
	}
	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionUpdate,
		Entity:    "project",
		EntityID:  sc.ProjectID(),
		Metadata:  map[string]interface{}{"archived": archived},
	})
	return s.GetProject(ctx, sc)
}

// DeleteProject soft deletes the project. Only the owner or an admin may.
func (s *Service) DeleteProject(ctx context.Context, sc *rbac.SecurityContext) error {
	if sc == nil {
		return apperr.Forbidden("Access denied")
	}
	if sc.ProjectRole() != rbac.ProjectRoleOwner && sc.SystemRole() != rbac.SystemRoleAdmin {
		return apperr.Forbidden("Only the project owner can delete a project")
	}
	if err := s.setProject(ctx, sc.ProjectID(), map[string]interface{}{"deleted_at": s.now()}); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		UserID:    sc.UserID(),
		ProjectID: sc.ProjectID(),
		Action:    audit.ActionDelete,
		Entity:    "project",
		EntityID:  sc.ProjectID(),
	})
	return nil
}

func (s *Service) setProject(ctx context.Context, projectID string, set map[string]interface{}) error {
	set["updated_at"] = s.now()
	query, args, err := psql.Update("projects").SetMap(set).
		Where(sq.Eq{"id": projectID, "deleted_at": nil}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("Project")
	}
	return nil
}

// redact zeroes the budget total for users without financial visibility
func (s *Service) redact(ctx context.Context, userID string, p *Project) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil || user == nil {
		p.BudgetTotal = decimal.Zero
		return
	}
	role, err := s.engine.GetUserProjectRole(ctx, userID, p.ID)
	if err != nil || !s.engine.Capabilities().CanViewFinancials(user.SystemRole, role) {
		p.BudgetTotal = decimal.Zero
	}
}

// record writes an audit entry after the data change has committed
func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": entry.Action,
			"entity": entry.Entity,
		}).Warn("Failed to write audit entry")
	}
}

func requireManager(sc *rbac.SecurityContext) error {
	if sc == nil {
		return apperr.Forbidden("Access denied")
	}
	if !sc.ProjectRole().Manages() {
		return apperr.Forbidden("Only project managers can change project settings")
	}
	return nil
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
