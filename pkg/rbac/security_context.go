package rbac

import (
	"context"

	"github.com/platinummonkey/groundwork/pkg/contextkeys"
)

// SecurityContext is the resolved authority of one user inside one project.
// It is immutable once built.
type SecurityContext struct {
	userID      string
	projectID   string
	systemRole  SystemRole
	projectRole ProjectRole
	financials  bool
	access      map[Module]ModuleAccess
}

// NewSecurityContext builds a context from already validated parts. Most
// callers want Engine.CreateSecurityContext instead.
func NewSecurityContext(userID, projectID string, systemRole SystemRole, projectRole ProjectRole, financials bool, access ...ModuleAccess) *SecurityContext {
	m := make(map[Module]ModuleAccess, len(access))
	for _, a := range access {
		m[a.Module] = a
	}
	return &SecurityContext{
		userID:      userID,
		projectID:   projectID,
		systemRole:  systemRole,
		projectRole: projectRole,
		financials:  financials,
		access:      m,
	}
}

func (sc *SecurityContext) UserID() string           { return sc.userID }
func (sc *SecurityContext) ProjectID() string        { return sc.projectID }
func (sc *SecurityContext) SystemRole() SystemRole   { return sc.systemRole }
func (sc *SecurityContext) ProjectRole() ProjectRole { return sc.projectRole }
func (sc *SecurityContext) CanViewFinancials() bool  { return sc.financials }

// Can reports whether the context holds the flag for action on module
func (sc *SecurityContext) Can(module Module, action Action) bool {
	a, ok := sc.access[module]
	return ok && a.Allows(action)
}

// Access returns a copy of the module rows
func (sc *SecurityContext) Access() []ModuleAccess {
	rows := make([]ModuleAccess, 0, len(sc.access))
	for _, m := range AllModules {
		if a, ok := sc.access[m]; ok {
			rows = append(rows, a)
		}
	}
	return rows
}

// WithSecurityContext stores sc in ctx
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return contextkeys.WithSecurityContext(ctx, sc)
}

// SecurityContextFrom returns the context stored by WithSecurityContext
func SecurityContextFrom(ctx context.Context) (*SecurityContext, bool) {
	sc, ok := ctx.Value(contextkeys.SecurityContextKey).(*SecurityContext)
	return sc, ok && sc != nil
}
