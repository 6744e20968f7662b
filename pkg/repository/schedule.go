package repository

import (
	"context"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/rbac"
)

// contractorVisibleStatuses are the event statuses shown to contractors
var contractorVisibleStatuses = []string{EventStatusRequested, EventStatusApproved, EventStatusCompleted}

// ScheduleFilter narrows a schedule list
type ScheduleFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
}

// ScheduleRepository reads and writes schedule events of one project
type ScheduleRepository struct {
	t  *table[ScheduleEvent]
	sc *rbac.SecurityContext
}

func newScheduleRepository(s scope) *ScheduleRepository {
	return &ScheduleRepository{
		t: newTable[ScheduleEvent](s, "schedule_events", "Schedule event",
			"title", "description", "start_at", "end_at", "status", "location"),
		sc: s.sc,
	}
}

// requester reports whether the context may only request events
func (r *ScheduleRepository) requester() bool {
	return r.sc.ProjectRole() == rbac.ProjectRoleContractor || !r.sc.Can(rbac.ModuleSchedule, rbac.ActionWrite)
}

// FindMany lists events by start time. Contractors only see requested,
// approved and completed events.
func (r *ScheduleRepository) FindMany(ctx context.Context, filter ScheduleFilter, page Page) ([]*ScheduleEvent, int64, error) {
	where := sq.And{}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"start_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.Lt{"start_at": *filter.To})
	}
	if r.sc.ProjectRole() == rbac.ProjectRoleContractor {
		where = append(where, sq.Eq{"status": contractorVisibleStatuses})
	}
	return r.t.findMany(ctx, where, "start_at", page)
}

// FindByID returns one event. Events a contractor cannot list are reported
// as not found.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*ScheduleEvent, error) {
	event, err := r.t.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.sc.ProjectRole() == rbac.ProjectRoleContractor && !slices.Contains(contractorVisibleStatuses, event.Status) {
		return nil, apperr.NotFound(r.t.entity)
	}
	return event, nil
}

// Create inserts an event. Requesters always create REQUESTED events
// attributed to themselves.
func (r *ScheduleRepository) Create(ctx context.Context, event *ScheduleEvent) error {
	if !event.EndAt.After(event.StartAt) {
		return apperr.Validation("Invalid schedule event", map[string]string{"endAt": "must be after startAt"})
	}
	event.ApprovedBy = nil
	if r.requester() {
		userID := r.sc.UserID()
		event.Status = EventStatusRequested
		event.RequestedBy = &userID
	} else if event.Status == "" {
		event.Status = EventStatusScheduled
	}
	_, err := r.t.insert(ctx, event)
	return err
}

// Update applies changes
func (r *ScheduleRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*ScheduleEvent, error) {
	return r.t.update(ctx, id, changes)
}

// Delete removes one event
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

// BulkApproveSchedule approves every event in ids in one transaction. Any
// id outside the project aborts the whole batch.
func (r *Repositories) BulkApproveSchedule(ctx context.Context, ids []string) ([]*ScheduleEvent, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("No event ids given", map[string]string{"ids": "is required"})
	}

	approver := r.scope.sc.UserID()
	var out []*ScheduleEvent
	err := r.Tx(ctx, func(tx *Repositories) error {
		found, err := tx.Schedule.t.existingIDs(ctx, ids)
		if err != nil {
			return err
		}
		if miss := missing(ids, found); len(miss) > 0 {
			return apperr.NotFound("Schedule event").WithDetail("missingIds", miss)
		}
		for _, id := range ids {
			if err := tx.Schedule.t.set(ctx, id, map[string]interface{}{
				"status":      EventStatusApproved,
				"approved_by": approver,
			}); err != nil {
				return err
			}
		}
		out, err = tx.Schedule.t.findAll(ctx, sq.Eq{"id": ids}, "start_at")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
