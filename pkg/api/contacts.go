package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
)

func (s *Server) registerContactRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/contacts", s.module(rbac.ModuleContacts, rbac.ActionRead, s.listContacts)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/contacts", s.module(rbac.ModuleContacts, rbac.ActionWrite, s.createContact)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/contacts/{id}", s.module(rbac.ModuleContacts, rbac.ActionRead, s.getContact)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/contacts/{id}", s.module(rbac.ModuleContacts, rbac.ActionWrite, s.updateContact)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/contacts/{id}", s.module(rbac.ModuleContacts, rbac.ActionWrite, s.deleteContact)).Methods(http.MethodDelete)

	router.Handle("/projects/{projectId}/vendors", s.module(rbac.ModuleVendors, rbac.ActionRead, s.listVendors)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/vendors", s.module(rbac.ModuleVendors, rbac.ActionWrite, s.createVendor)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/vendors/{id}", s.module(rbac.ModuleVendors, rbac.ActionRead, s.getVendor)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/vendors/{id}", s.module(rbac.ModuleVendors, rbac.ActionWrite, s.updateVendor)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/vendors/{id}", s.module(rbac.ModuleVendors, rbac.ActionWrite, s.deleteVendor)).Methods(http.MethodDelete)
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Company string `json:"company" validate:"max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Trade   string `json:"trade" validate:"max=100"`
	Type    string `json:"type" validate:"omitempty,oneof=CLIENT CONTRACTOR SUPPLIER CONSULTANT OTHER"`
	Notes   string `json:"notes"`
}

type contactPatch struct {
	Name    *string `json:"name" db:"name" validate:"omitempty,min=1,max=200"`
	Company *string `json:"company" db:"company" validate:"omitempty,max=200"`
	Email   *string `json:"email" db:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" db:"phone" validate:"omitempty,max=50"`
	Trade   *string `json:"trade" db:"trade" validate:"omitempty,max=100"`
	Type    *string `json:"type" db:"type" validate:"omitempty,oneof=CLIENT CONTRACTOR SUPPLIER CONSULTANT OTHER"`
	Notes   *string `json:"notes" db:"notes"`
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	contacts, total, err := repos.Contacts.FindMany(r.Context(), httputil.ParseQueryString(r, "type", ""), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, contacts, httputil.NewPagination(page, total))
}

func (s *Server) getContact(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	contact, err := repos.Contacts.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contact)
}

func (s *Server) createContact(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req contactRequest
	if !decode(w, r, &req) {
		return
	}
	contact := &repository.Contact{
		Name:    req.Name,
		Company: req.Company,
		Email:   req.Email,
		Phone:   req.Phone,
		Trade:   req.Trade,
		Type:    req.Type,
		Notes:   req.Notes,
	}
	if err := repos.Contacts.Create(r.Context(), contact); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "contact", contact.ID, nil)
	httputil.WriteCreated(w, contact)
}

func (s *Server) updateContact(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch contactPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	contact, err := repos.Contacts.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "contact", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, contact)
}

func (s *Server) deleteContact(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Contacts.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "contact", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Contact deleted", nil)
}

type vendorRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Email     string  `json:"email" validate:"omitempty,email"`
	Phone     string  `json:"phone" validate:"max=50"`
	Trade     string  `json:"trade" validate:"max=100"`
	ContactID *string `json:"contactId"`
}

type vendorPatch struct {
	Name  *string `json:"name" db:"name" validate:"omitempty,min=1,max=200"`
	Email *string `json:"email" db:"email" validate:"omitempty,email"`
	Phone *string `json:"phone" db:"phone" validate:"omitempty,max=50"`
	Trade *string `json:"trade" db:"trade" validate:"omitempty,max=100"`
}

func (s *Server) listVendors(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	vendors, total, err := repos.Vendors.FindMany(r.Context(), httputil.ParseQueryString(r, "trade", ""), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, vendors, httputil.NewPagination(page, total))
}

func (s *Server) getVendor(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	vendor, err := repos.Vendors.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, vendor)
}

func (s *Server) createVendor(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req vendorRequest
	if !decode(w, r, &req) {
		return
	}
	vendor := &repository.Vendor{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Trade:     req.Trade,
		ContactID: req.ContactID,
	}
	if err := repos.Vendors.Create(r.Context(), vendor); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "vendor", vendor.ID, nil)
	httputil.WriteCreated(w, vendor)
}

func (s *Server) updateVendor(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch vendorPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	vendor, err := repos.Vendors.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "vendor", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, vendor)
}

func (s *Server) deleteVendor(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Vendors.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "vendor", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Vendor deleted", nil)
}
