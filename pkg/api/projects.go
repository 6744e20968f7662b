package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/projects"
	"github.com/platinummonkey/groundwork/pkg/rbac"
)

func (s *Server) registerProjectRoutes(router *mux.Router) {
	router.HandleFunc("/projects", s.createProject).Methods(http.MethodPost)
	router.HandleFunc("/projects", s.listProjects).Methods(http.MethodGet)

	member := s.engine.RequireMember
	router.Handle("/projects/{projectId}", member(http.HandlerFunc(s.getProject))).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}", member(http.HandlerFunc(s.updateProject))).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/archive", member(http.HandlerFunc(s.archiveProject))).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}", member(http.HandlerFunc(s.deleteProject))).Methods(http.MethodDelete)

	read := s.engine.RequireModule(rbac.ModuleTeam, rbac.ActionRead)
	write := s.engine.RequireModule(rbac.ModuleTeam, rbac.ActionWrite)
	router.Handle("/projects/{projectId}/members", read(http.HandlerFunc(s.listMembers))).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/members", write(http.HandlerFunc(s.addMember))).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/members/{userId}", write(http.HandlerFunc(s.updateMember))).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/members/{userId}", write(http.HandlerFunc(s.removeMember))).Methods(http.MethodDelete)
	router.Handle("/projects/{projectId}/members/{userId}/access", read(http.HandlerFunc(s.getMemberAccess))).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/members/{userId}/access", write(http.HandlerFunc(s.setMemberAccess))).Methods(http.MethodPut)
	router.Handle("/projects/{projectId}/invite", write(http.HandlerFunc(s.invite))).Methods(http.MethodPost)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input projects.ProjectInput
	if !decode(w, r, &input) {
		return
	}
	project, err := s.projects.CreateProject(r.Context(), user.ID, input)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// listProjects lists the projects visible to the caller. Archived projects
// are included with ?includeArchived=true.
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	includeArchived, err := httputil.ParseQueryBool(r, "includeArchived", false)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	list, total, err := s.projects.ListProjects(r.Context(), user.ID, includeArchived, uint64(page.Limit), page.Offset())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, list, httputil.NewPagination(page, total))
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.projects.GetProject(r.Context(), securityContext(r))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var patch projects.ProjectPatch
	if !decode(w, r, &patch) {
		return
	}
	project, err := s.projects.UpdateProject(r.Context(), securityContext(r), patch)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

type archiveRequest struct {
	Archived *bool `json:"archived" validate:"required"`
}

func (s *Server) archiveProject(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if !decode(w, r, &req) {
		return
	}
	project, err := s.projects.ArchiveProject(r.Context(), securityContext(r), *req.Archived)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.DeleteProject(r.Context(), securityContext(r)); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Project deleted", nil)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.projects.ListMembers(r.Context(), securityContext(r))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type addMemberRequest struct {
	UserID string           `json:"userId" validate:"required"`
	Role   rbac.ProjectRole `json:"role" validate:"required,oneof=MANAGER MEMBER CONTRACTOR VIEWER"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if !decode(w, r, &req) {
		return
	}
	member, err := s.projects.AddMember(r.Context(), securityContext(r), req.UserID, req.Role)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, member)
}

type memberRoleRequest struct {
	Role rbac.ProjectRole `json:"role" validate:"required,oneof=MANAGER MEMBER CONTRACTOR VIEWER"`
}

func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req memberRoleRequest
	if !decode(w, r, &req) {
		return
	}
	member, err := s.projects.UpdateMemberRole(r.Context(), securityContext(r), userID, req.Role)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	if err := s.projects.RemoveMember(r.Context(), securityContext(r), userID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteMessage(w, http.StatusOK, "Member removed", nil)
}

func (s *Server) getMemberAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	access, err := s.projects.GetMemberAccess(r.Context(), securityContext(r), userID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, access)
}

type memberAccessRequest struct {
	Modules []projects.ModuleAccessInput `json:"modules" validate:"required,min=1,dive"`
}

func (s *Server) setMemberAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req memberAccessRequest
	if !decode(w, r, &req) {
		return
	}
	access, err := s.projects.SetModuleAccess(r.Context(), securityContext(r), userID, req.Modules)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, access)
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request) {
	var input projects.InviteInput
	if !decode(w, r, &input) {
		return
	}
	result, err := s.projects.Invite(r.Context(), securityContext(r), input)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, result)
}
