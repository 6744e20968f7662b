package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
)

func (s *Server) registerScheduleRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/schedule", s.module(rbac.ModuleSchedule, rbac.ActionRead, s.listSchedule)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/schedule", s.anyModule(rbac.ModuleSchedule, s.createScheduleEvent, rbac.ActionWrite, rbac.ActionRequest)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/schedule/bulk-approve", s.module(rbac.ModuleSchedule, rbac.ActionWrite, s.bulkApproveSchedule)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/schedule/{id}", s.module(rbac.ModuleSchedule, rbac.ActionRead, s.getScheduleEvent)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/schedule/{id}", s.module(rbac.ModuleSchedule, rbac.ActionWrite, s.updateScheduleEvent)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/schedule/{id}", s.module(rbac.ModuleSchedule, rbac.ActionWrite, s.deleteScheduleEvent)).Methods(http.MethodDelete)
}

type scheduleEventRequest struct {
	Title       string    `json:"title" validate:"required,max=300"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"startAt" validate:"required"`
	EndAt       time.Time `json:"endAt" validate:"required"`
	Status      string    `json:"status" validate:"omitempty,oneof=REQUESTED SCHEDULED APPROVED COMPLETED CANCELLED"`
	Location    string    `json:"location"`
}

type scheduleEventPatch struct {
	Title       *string    `json:"title" db:"title" validate:"omitempty,min=1,max=300"`
	Description *string    `json:"description" db:"description"`
	StartAt     *time.Time `json:"startAt" db:"start_at"`
	EndAt       *time.Time `json:"endAt" db:"end_at"`
	Status      *string    `json:"status" db:"status" validate:"omitempty,oneof=REQUESTED SCHEDULED APPROVED COMPLETED CANCELLED"`
	Location    *string    `json:"location" db:"location"`
}

// parseTimeQuery reads an optional RFC 3339 query parameter
func parseTimeQuery(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.Validation("Invalid query parameter", map[string]string{key: "must be an RFC 3339 timestamp"})
	}
	t = t.UTC()
	return &t, nil
}

// listSchedule lists events, optionally between ?from= and ?to=.
// Contractors only see requested, approved and completed events.
func (s *Server) listSchedule(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	filter := repository.ScheduleFilter{Status: httputil.ParseQueryString(r, "status", "")}
	if filter.From, err = parseTimeQuery(r, "from"); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if filter.To, err = parseTimeQuery(r, "to"); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	events, total, err := repos.Schedule.FindMany(r.Context(), filter, bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, events, httputil.NewPagination(page, total))
}

func (s *Server) getScheduleEvent(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	event, err := repos.Schedule.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, event)
}

// createScheduleEvent creates an event. Requesters, contractors included,
// always get a REQUESTED event whatever status they send.
func (s *Server) createScheduleEvent(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req scheduleEventRequest
	if !decode(w, r, &req) {
		return
	}
	event := &repository.ScheduleEvent{
		Title:       req.Title,
		Description: req.Description,
		StartAt:     req.StartAt.UTC(),
		EndAt:       req.EndAt.UTC(),
		Status:      req.Status,
		Location:    req.Location,
	}
	if err := repos.Schedule.Create(r.Context(), event); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "schedule_event", event.ID, map[string]interface{}{"status": event.Status})
	httputil.WriteCreated(w, event)
}

func (s *Server) updateScheduleEvent(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch scheduleEventPatch
	if !decode(w, r, &patch) {
		return
	}
	if patch.StartAt != nil && patch.EndAt != nil && !patch.EndAt.After(*patch.StartAt) {
		httputil.WriteError(w, r, apperr.Validation("Invalid schedule event", map[string]string{"endAt": "must be after startAt"}))
		return
	}
	changes := repository.Changes(&patch)
	event, err := repos.Schedule.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "schedule_event", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, event)
}

func (s *Server) deleteScheduleEvent(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Schedule.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "schedule_event", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Schedule event deleted", nil)
}

func (s *Server) bulkApproveSchedule(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := repos.BulkApproveSchedule(r.Context(), req.IDs)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionApprove, "schedule_event", "", map[string]interface{}{"ids": req.IDs})
	httputil.WriteSuccess(w, events)
}
