package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/middleware"
	"github.com/platinummonkey/groundwork/pkg/rbac"
)

func (s *Server) registerUserRoutes(router *mux.Router) {
	router.HandleFunc("/me", s.getMe).Methods(http.MethodGet)
	router.HandleFunc("/users/init", s.initializeUser).Methods(http.MethodPost)
}

func (s *Server) registerAdminRoutes(router *mux.Router) {
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireSystemRole(rbac.SystemRoleAdmin))
	admin.HandleFunc("/users/{userId}/role", s.setSystemRole).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{userId}/deactivate", s.deactivateUser).Methods(http.MethodPatch)
	admin.HandleFunc("/audit", s.searchAudit).Methods(http.MethodGet)
	admin.HandleFunc("/audit/export", s.exportAudit).Methods(http.MethodGet)
}

// getMe returns the authenticated user
func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, user)
}

// initializeUser gives a new user a starter project. Repeated calls are
// no-ops.
func (s *Server) initializeUser(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	result, err := s.projects.InitializeUser(r.Context(), user.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if result.Created {
		httputil.WriteCreated(w, result)
		return
	}
	httputil.WriteSuccess(w, result)
}

type systemRoleRequest struct {
	Role rbac.SystemRole `json:"role" validate:"required,oneof=ADMIN STAFF CONTRACTOR VIEWER"`
}

func (s *Server) setSystemRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req systemRoleRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := s.projects.SetSystemRole(r.Context(), actor.ID, userID, req.Role)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	user, err := s.projects.DeactivateUser(r.Context(), actor.ID, userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// auditFilter reads the audit query parameters
func auditFilter(r *http.Request) (audit.SearchFilter, error) {
	q := r.URL.Query()
	filter := audit.SearchFilter{
		UserID:    q.Get("userId"),
		ProjectID: q.Get("projectId"),
		Action:    q.Get("action"),
		Entity:    q.Get("entity"),
		EntityID:  q.Get("entityId"),
	}
	for key, dest := range map[string]**time.Time{"from": &filter.StartTime, "to": &filter.EndTime} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperr.Validation("Invalid query parameter", map[string]string{key: "must be an RFC 3339 timestamp"})
		}
		t = t.UTC()
		*dest = &t
	}
	return filter, nil
}

func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	filter.Limit = page.Limit
	filter.Offset = int(page.Offset())

	records, total, err := s.auditStore.Search(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, records, httputil.NewPagination(page, total))
}

func (s *Server) exportAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatCSV)))
	switch format {
	case audit.ExportFormatCSV, audit.ExportFormatJSON, audit.ExportFormatNDJSON:
	default:
		httputil.WriteError(w, r, apperr.Validation("Invalid query parameter", map[string]string{"format": "must be one of: csv json ndjson"}))
		return
	}

	body, err := s.auditStore.Export(r.Context(), filter, format)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=audit."+string(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
