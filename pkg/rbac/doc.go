// Package rbac decides who may do what inside a project.
//
// # Overview
//
// Every user carries a coarse system role (ADMIN, STAFF, CONTRACTOR, VIEWER).
// Inside a project a user additionally holds a project role through an active
// membership row, and a set of per-module flags in user_module_access:
//
//	canView    - read
//	canEdit    - write
//	canUpload  - upload
//	canRequest - request
//
// # Capability table
//
// The role to capability mapping lives in capabilities.yaml, embedded into the
// binary. It supplies the ADMIN/STAFF overrides, the financial visibility of
// each role, the rate limit tier of each system role and the default module
// rows seeded when somebody joins a project.
//
// # Engine
//
// The Engine answers four questions:
//
//	AssertModuleAccess  - may user U perform action A on module M of project P
//	GetUserProjectRole  - which project role does U effectively hold in P
//	GetUserProjects     - which projects may U see
//	GetRateLimitTier    - how much traffic may U send
//
// and logs every decision to the audit trail with LogPolicyDecision. Audit
// failures never fail the request; they are logged and counted.
//
// # Security context
//
// CreateSecurityContext validates membership once and returns an immutable
// SecurityContext. The scoped repositories only accept a SecurityContext, so
// data access cannot happen without one.
//
// # Usage
//
//	engine := rbac.NewEngine(conn, auditLogger, logger, rbac.WithMetrics(metrics))
//	if err := engine.Authorize(ctx, userID, projectID, rbac.ModuleBudget, rbac.ActionRead); err != nil {
//		return err
//	}
//	sc, err := engine.CreateSecurityContext(ctx, userID, projectID)
package rbac
