package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/shopspring/decimal"
)

func (s *Server) registerProcurementRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/procurement", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.listProcurement)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/procurement", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.createProcurement)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/procurement/{id}", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.getProcurement)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/procurement/{id}", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.updateProcurement)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/procurement/{id}", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.deleteProcurement)).Methods(http.MethodDelete)

	router.Handle("/projects/{projectId}/purchase-orders", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.listPurchaseOrders)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/purchase-orders", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.createPurchaseOrder)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/purchase-orders/{id}", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.getPurchaseOrder)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/purchase-orders/{id}", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.updatePurchaseOrder)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/purchase-orders/{id}", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.deletePurchaseOrder)).Methods(http.MethodDelete)
	router.Handle("/projects/{projectId}/purchase-orders/{id}/status", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.transitionPurchaseOrder)).Methods(http.MethodPost)
}

type procurementRequest struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit" validate:"max=20"`
	Status       string          `json:"status" validate:"omitempty,oneof=PLANNED REQUESTED ORDERED DELIVERED CANCELLED"`
	BudgetItemID *string         `json:"budgetItemId"`
	VendorID     *string         `json:"vendorId"`
	NeededBy     *time.Time      `json:"neededBy"`
}

type procurementPatch struct {
	Name         *string          `json:"name" db:"name" validate:"omitempty,min=1,max=200"`
	Description  *string          `json:"description" db:"description"`
	Quantity     *decimal.Decimal `json:"quantity" db:"quantity"`
	Unit         *string          `json:"unit" db:"unit" validate:"omitempty,max=20"`
	Status       *string          `json:"status" db:"status" validate:"omitempty,oneof=PLANNED REQUESTED ORDERED DELIVERED CANCELLED"`
	BudgetItemID *string          `json:"budgetItemId" db:"budget_item_id"`
	VendorID     *string          `json:"vendorId" db:"vendor_id"`
	NeededBy     *time.Time       `json:"neededBy" db:"needed_by"`
}

func (s *Server) listProcurement(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	items, total, err := repos.Procurement.FindMany(r.Context(), httputil.ParseQueryString(r, "status", ""), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, items, httputil.NewPagination(page, total))
}

func (s *Server) getProcurement(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := repos.Procurement.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

func (s *Server) createProcurement(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req procurementRequest
	if !decode(w, r, &req) {
		return
	}
	item := &repository.Procurement{
		Name:         req.Name,
		Description:  req.Description,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		Status:       req.Status,
		BudgetItemID: req.BudgetItemID,
		VendorID:     req.VendorID,
		NeededBy:     req.NeededBy,
	}
	if err := repos.Procurement.Create(r.Context(), item); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "procurement", item.ID, nil)
	httputil.WriteCreated(w, item)
}

func (s *Server) updateProcurement(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch procurementPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	item, err := repos.Procurement.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "procurement", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, item)
}

func (s *Server) deleteProcurement(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Procurement.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "procurement", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Procurement item deleted", nil)
}

type purchaseOrderRequest struct {
	Number       string          `json:"number" validate:"required,max=50"`
	VendorID     string          `json:"vendorId" validate:"required"`
	BudgetItemID *string         `json:"budgetItemId"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
}

type purchaseOrderPatch struct {
	Number      *string          `json:"number" db:"number" validate:"omitempty,min=1,max=50"`
	Description *string          `json:"description" db:"description"`
	Amount      *decimal.Decimal `json:"amount" db:"amount"`
}

func (s *Server) listPurchaseOrders(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	orders, total, err := repos.PurchaseOrders.FindMany(r.Context(), httputil.ParseQueryString(r, "status", ""), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, orders, httputil.NewPagination(page, total))
}

func (s *Server) getPurchaseOrder(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	po, err := repos.PurchaseOrders.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, po)
}

func (s *Server) createPurchaseOrder(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req purchaseOrderRequest
	if !decode(w, r, &req) {
		return
	}
	po := &repository.PurchaseOrder{
		Number:       req.Number,
		VendorID:     req.VendorID,
		BudgetItemID: req.BudgetItemID,
		Description:  req.Description,
		Amount:       req.Amount,
	}
	if err := repos.PurchaseOrders.Create(r.Context(), po); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionCreate, "purchase_order", po.ID, map[string]interface{}{"number": po.Number})
	httputil.WriteCreated(w, po)
}

func (s *Server) updatePurchaseOrder(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch purchaseOrderPatch
	if !decode(w, r, &patch) {
		return
	}
	changes := repository.Changes(&patch)
	po, err := repos.PurchaseOrders.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "purchase_order", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, po)
}

func (s *Server) deletePurchaseOrder(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.PurchaseOrders.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "purchase_order", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Purchase order deleted", nil)
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=DRAFT ISSUED PARTIALLY_PAID PAID CANCELLED"`
}

// transitionPurchaseOrder moves an order along DRAFT, ISSUED,
// PARTIALLY_PAID and PAID, or cancels it. Invalid moves are conflicts.
func (s *Server) transitionPurchaseOrder(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !decode(w, r, &req) {
		return
	}
	po, err := repos.TransitionPurchaseOrder(r.Context(), id, req.Status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionUpdate, "purchase_order", id, map[string]interface{}{"status": req.Status})
	httputil.WriteSuccess(w, po)
}
