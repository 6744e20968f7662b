package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/observability"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/platinummonkey/groundwork/pkg/storage"
)

func (s *Server) registerDocumentRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/documents", s.module(rbac.ModuleDocuments, rbac.ActionRead, s.listDocuments)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/documents", s.module(rbac.ModuleDocuments, rbac.ActionUpload, s.createDocument)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/documents/{id}", s.module(rbac.ModuleDocuments, rbac.ActionRead, s.getDocument)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/documents/{id}", s.module(rbac.ModuleDocuments, rbac.ActionWrite, s.renameDocument)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/documents/{id}", s.module(rbac.ModuleDocuments, rbac.ActionWrite, s.deleteDocument)).Methods(http.MethodDelete)
	router.Handle("/projects/{projectId}/documents/{id}/download", s.module(rbac.ModuleDocuments, rbac.ActionRead, s.downloadDocument)).Methods(http.MethodGet)
}

// storageAvailable answers 503 when no object store is configured
func (s *Server) storageAvailable(w http.ResponseWriter) bool {
	if s.documents == nil {
		httputil.WriteErrorMessage(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Document storage is not configured")
		return false
	}
	return true
}

type documentRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"gte=0"`
}

// documentUpload is the created document with the URL to PUT its bytes to
type documentUpload struct {
	Document *repository.Document      `json:"document"`
	Upload   *storage.PresignedRequest `json:"upload"`
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	docs, total, err := repos.Documents.FindMany(r.Context(), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, docs, httputil.NewPagination(page, total))
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := repos.Documents.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// createDocument stores metadata and returns a presigned upload. The upload
// is signed before the row is written so a storage failure leaves nothing
// behind.
func (s *Server) createDocument(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	if !s.storageAvailable(w) {
		return
	}
	var req documentRequest
	if !decode(w, r, &req) {
		return
	}
	sc := repos.SecurityContext()
	doc := &repository.Document{
		ID:          uuid.NewString(),
		Name:        req.Name,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		UploadedBy:  sc.UserID(),
	}
	if doc.ContentType == "" {
		doc.ContentType = "application/octet-stream"
	}
	doc.StorageKey = storage.ObjectKey(sc.ProjectID(), doc.ID, doc.Name)

	upload, err := s.documents.PresignUpload(r.Context(), doc.StorageKey, doc.ContentType)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := repos.Documents.Create(r.Context(), doc); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionCreate, "document", doc.ID, map[string]interface{}{"name": doc.Name})
	httputil.WriteCreated(w, documentUpload{Document: doc, Upload: upload})
}

func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	if !s.storageAvailable(w) {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := repos.Documents.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	download, err := s.documents.PresignDownload(r.Context(), doc.StorageKey, doc.Name)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, download)
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (s *Server) renameDocument(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req renameRequest
	if !decode(w, r, &req) {
		return
	}
	doc, err := repos.Documents.Rename(r.Context(), id, req.Name)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "document", id, map[string]interface{}{"name": req.Name})
	httputil.WriteSuccess(w, doc)
}

// deleteDocument removes the row, then the object. An object that fails to
// delete is logged and left for the bucket lifecycle.
func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	doc, err := repos.Documents.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := repos.Documents.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if s.documents != nil {
		if err := s.documents.DeleteObject(r.Context(), doc.StorageKey); err != nil {
			observability.LoggerFromContext(r.Context()).WithError(err).WithField("key", doc.StorageKey).Warn("Failed to delete document object")
		}
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "document", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Document deleted", nil)
}
