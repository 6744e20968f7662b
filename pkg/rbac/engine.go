package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Engine evaluates module access and records every decision
type Engine struct {
	store   *Store
	caps    *Capabilities
	audit   audit.Logger
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// Option configures an Engine
type Option func(*Engine)

// WithCapabilities replaces the embedded capability table
func WithCapabilities(caps *Capabilities) Option {
	return func(e *Engine) { e.caps = caps }
}

// WithMetrics enables decision and audit failure counters
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a policy engine. auditLogger must not share a
// transaction with the request; decisions are written on their own.
func NewEngine(q db.Querier, auditLogger audit.Logger, logger logrus.FieldLogger, opts ...Option) *Engine {
	if auditLogger == nil {
		auditLogger = audit.NoOpLogger{}
	}
	e := &Engine{
		store:  NewStore(q),
		caps:   DefaultCapabilities(),
		audit:  auditLogger,
		logger: logger.WithField("component", "rbac"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Capabilities returns the table in use
func (e *Engine) Capabilities() *Capabilities {
	return e.caps
}

// Store returns the underlying store
func (e *Engine) Store() *Store {
	return e.store
}

// AssertModuleAccess returns nil when the user may perform action on module
// in the project, an authorization error when not. It has no side effects.
func (e *Engine) AssertModuleAccess(ctx context.Context, userID, projectID string, module Module, action Action) error {
	d, err := e.decide(ctx, userID, projectID, module, action)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return apperr.Forbidden(d.Reason)
	}
	return nil
}

// Check evaluates and logs a decision. Evaluation failures deny.
func (e *Engine) Check(ctx context.Context, userID, projectID string, module Module, action Action) Decision {
	d, err := e.decide(ctx, userID, projectID, module, action)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"project_id": projectID,
			"module":     module.String(),
		}).Error("Policy evaluation failed")
		d = deny("policy evaluation failed")
	}
	e.LogPolicyDecision(ctx, userID, projectID, module, action, d.Allowed, d.Reason)
	return d
}

// Authorize asserts access and logs the decision. Infrastructure errors are
// returned as is so they surface as 500s rather than 403s.
func (e *Engine) Authorize(ctx context.Context, userID, projectID string, module Module, action Action) error {
	d, err := e.decide(ctx, userID, projectID, module, action)
	if err != nil {
		return err
	}
	e.LogPolicyDecision(ctx, userID, projectID, module, action, d.Allowed, d.Reason)
	if !d.Allowed {
		return apperr.Forbidden(d.Reason)
	}
	return nil
}

func (e *Engine) decide(ctx context.Context, userID, projectID string, module Module, action Action) (Decision, error) {
	if !action.Valid() {
		return deny(fmt.Sprintf("unknown action %q", action)), nil
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if user == nil {
		return deny("unknown user"), nil
	}
	if !user.IsActive {
		return deny("user is inactive"), nil
	}

	if module == NoModule {
		if e.caps.AllowsNullModule(user.SystemRole, action) {
			return allow("system role " + string(user.SystemRole)), nil
		}
		return deny(fmt.Sprintf("system role %s may not %s", user.SystemRole, action)), nil
	}

	if projectID == "" {
		return deny("no project selected"), nil
	}

	if e.caps.System(user.SystemRole).Bypass {
		exists, err := e.store.ProjectExists(ctx, projectID)
		if err != nil {
			return Decision{}, err
		}
		if !exists {
			return deny("project not found"), nil
		}
		return allow("system role " + string(user.SystemRole)), nil
	}

	access, err := e.store.GetModuleAccess(ctx, userID, projectID, module)
	if err != nil {
		return Decision{}, err
	}
	if access == nil {
		return deny(fmt.Sprintf("no access to %s", module)), nil
	}
	if !access.Allows(action) {
		return deny(fmt.Sprintf("no %s access to %s", action, module)), nil
	}
	return allow("module access"), nil
}

// LogPolicyDecision appends one audit row for the decision. It never fails;
// write errors are logged and counted.
func (e *Engine) LogPolicyDecision(ctx context.Context, userID, projectID string, module Module, action Action, allowed bool, reason string) {
	outcome, auditAction := "deny", audit.ActionPolicyDeny
	if allowed {
		outcome, auditAction = "allow", audit.ActionPolicyAllow
	}
	if e.metrics != nil {
		e.metrics.PolicyDecisionsTotal.WithLabelValues(module.String(), string(action), outcome).Inc()
	}

	err := e.audit.Log(ctx, audit.Entry{
		UserID:    userID,
		ProjectID: projectID,
		Action:    auditAction,
		Entity:    "module",
		EntityID:  module.String(),
		Metadata: map[string]interface{}{
			"action": string(action),
			"reason": reason,
		},
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.AuditWriteFailuresTotal.Inc()
		}
		e.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"project_id": projectID,
			"module":     module.String(),
			"allowed":    allowed,
		}).Warn("Failed to write policy decision")
	}
}

// GetUserProjectRole returns the effective project role, nil without an
// active membership. Bypass roles resolve to their configured role.
func (e *Engine) GetUserProjectRole(ctx context.Context, userID, projectID string) (*ProjectRole, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, nil
	}

	membership, err := e.store.GetMembership(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if membership != nil {
		role := membership.Role
		return &role, nil
	}

	sys := e.caps.System(user.SystemRole)
	if !sys.Bypass {
		return nil, nil
	}
	exists, err := e.store.ProjectExists(ctx, projectID)
	if err != nil || !exists {
		return nil, err
	}
	role := sys.BypassProjectRole
	return &role, nil
}

// GetUserProjects returns the ids of the projects the user may see
func (e *Engine) GetUserProjects(ctx context.Context, userID string) ([]string, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return []string{}, nil
	}
	if e.caps.System(user.SystemRole).Bypass {
		return e.store.ListAllProjectIDs(ctx)
	}
	return e.store.ListMemberProjectIDs(ctx, userID)
}

// GetRateLimitTier returns the advisory tier of a user
func (e *Engine) GetRateLimitTier(ctx context.Context, userID string) (RateLimitTier, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return TierLow, err
	}
	if user == nil || !user.IsActive {
		return TierLow, nil
	}
	return e.caps.RateLimitTier(user.SystemRole), nil
}

// CreateSecurityContext validates membership and freezes the user's
// authority in the project.
func (e *Engine) CreateSecurityContext(ctx context.Context, userID, projectID string) (*SecurityContext, error) {
	if projectID == "" {
		return nil, apperr.Validation("Project id is required", map[string]string{"projectId": "is required"})
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, apperr.Forbidden("Access denied")
	}

	sys := e.caps.System(user.SystemRole)
	exists, err := e.store.ProjectExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		if sys.Bypass {
			return nil, apperr.NotFound("Project")
		}
		return nil, apperr.Forbidden("Access denied")
	}

	membership, err := e.store.GetMembership(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	var role ProjectRole
	switch {
	case membership != nil:
		role = membership.Role
	case sys.Bypass:
		role = sys.BypassProjectRole
	default:
		return nil, apperr.Forbidden("Not a member of this project")
	}

	var access []ModuleAccess
	if sys.Bypass {
		access = FullAccess()
	} else {
		access, err = e.store.ListModuleAccess(ctx, userID, projectID)
		if err != nil {
			return nil, err
		}
	}

	return NewSecurityContext(userID, projectID, user.SystemRole, role,
		e.caps.CanViewFinancials(user.SystemRole, &role), access...), nil
}
