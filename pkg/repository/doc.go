// Package repository provides project scoped data access.
//
// Every repository is built from an rbac.SecurityContext and closes over its
// project id. Reads filter on it, inserts set it and updates can neither
// change it nor the row id, so a handler cannot reach another project's rows
// even when the request body names them. Rows outside the project are
// reported as not found.
//
// The budget repository redacts cost fields after the query when the context
// lacks financial visibility.
//
//	repos, err := repository.New(conn, sc)
//	tasks, total, err := repos.Tasks.FindMany(ctx, repository.TaskFilter{Status: "TODO"}, page)
package repository
