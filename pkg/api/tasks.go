package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
)

func (s *Server) registerTaskRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/tasks", s.module(rbac.ModuleTasks, rbac.ActionRead, s.listTasks)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/tasks", s.module(rbac.ModuleTasks, rbac.ActionWrite, s.createTask)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/tasks/bulk-delete", s.module(rbac.ModuleTasks, rbac.ActionWrite, s.bulkDeleteTasks)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/tasks/{id}", s.module(rbac.ModuleTasks, rbac.ActionRead, s.getTask)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/tasks/{id}", s.module(rbac.ModuleTasks, rbac.ActionWrite, s.updateTask)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/tasks/{id}", s.module(rbac.ModuleTasks, rbac.ActionWrite, s.deleteTask)).Methods(http.MethodDelete)
}

type taskRequest struct {
	Title       string     `json:"title" validate:"required,max=300"`
	Description string     `json:"description"`
	Status      string     `json:"status" validate:"omitempty,oneof=TODO IN_PROGRESS BLOCKED DONE"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssigneeID  *string    `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
}

type taskPatch struct {
	Title       *string    `json:"title" db:"title" validate:"omitempty,min=1,max=300"`
	Description *string    `json:"description" db:"description"`
	Status      *string    `json:"status" db:"status" validate:"omitempty,oneof=TODO IN_PROGRESS BLOCKED DONE"`
	Priority    *string    `json:"priority" db:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssigneeID  *string    `json:"assigneeId" db:"assignee_id"`
	DueDate     *time.Time `json:"dueDate" db:"due_date"`
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	filter := repository.TaskFilter{
		Status:     httputil.ParseQueryString(r, "status", ""),
		AssigneeID: httputil.ParseQueryString(r, "assigneeId", ""),
	}
	tasks, total, err := repos.Tasks.FindMany(r.Context(), filter, bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, tasks, httputil.NewPagination(page, total))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	task, err := repos.Tasks.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req taskRequest
	if !decode(w, r, &req) {
		return
	}
	sc := repos.SecurityContext()
	task := &repository.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		CreatedBy:   sc.UserID(),
	}
	if err := repos.Tasks.Create(r.Context(), task); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionCreate, "task", task.ID, nil)
	httputil.WriteCreated(w, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch taskPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	task, err := repos.Tasks.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "task", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, task)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Tasks.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "task", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Task deleted", nil)
}

type idsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

// bulkDeleteTasks deletes every listed task or none. Unknown ids are
// reported together with TASKS_NOT_FOUND.
func (s *Server) bulkDeleteTasks(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req idsRequest
	if !decode(w, r, &req) {
		return
	}
	deleted, err := repos.BulkDeleteTasks(r.Context(), req.IDs)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionBulkDelete, "task", "", map[string]interface{}{"ids": req.IDs})
	httputil.WriteSuccess(w, map[string]interface{}{"deleted": deleted})
}
