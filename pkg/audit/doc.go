// Package audit records the append-only audit trail: one row per mutation
// and one row per policy decision.
//
// Writers only insert. Nothing in this package updates or deletes rows; the
// admin API reads them through Store.Search and Export.
//
//	logger := audit.NewDBLogger(db)
//	err := logger.Log(ctx, audit.Entry{
//		UserID:    userID,
//		ProjectID: projectID,
//		Action:    audit.ActionCreate,
//		Entity:    "Task",
//		EntityID:  task.ID,
//	})
package audit
