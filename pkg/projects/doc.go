// Package projects manages projects, their members and the users behind
// them.
//
// # Overview
//
// A project is the tenant boundary. Every member holds a project role and a
// set of module access rows seeded from the rbac capability table when the
// member joins or changes role.
//
// # Users
//
// Users are created on first verified login (EnsureUser), by invitation
// (Invite) or by InitializeUser, which is the one place a brand new user
// gets a starter project. Users are never deleted, only deactivated.
//
// # Usage Example
//
//	svc := projects.NewService(conn, engine, auditLogger, logger)
//	project, err := svc.CreateProject(ctx, userID, projects.ProjectInput{Name: "Riverside Duplex"})
//	member, err := svc.AddMember(ctx, actorID, project.ID, userID, rbac.ProjectRoleContractor)
//
// Multi-step writes (project creation, invites, membership changes) run in a
// single transaction and are audited after commit.
package projects
