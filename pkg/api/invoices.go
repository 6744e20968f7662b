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

func (s *Server) registerInvoiceRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/invoices", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.listInvoices)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/invoices", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.createInvoice)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/invoices/{id}", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.getInvoice)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/invoices/{id}", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.updateInvoice)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/invoices/{id}", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.deleteInvoice)).Methods(http.MethodDelete)
	router.Handle("/projects/{projectId}/invoices/{id}/payments", s.module(rbac.ModuleProcurement, rbac.ActionRead, s.listPayments)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/invoices/{id}/payments", s.module(rbac.ModuleProcurement, rbac.ActionWrite, s.recordPayment)).Methods(http.MethodPost)
}

type invoiceRequest struct {
	Number          string          `json:"number" validate:"required,max=50"`
	VendorID        string          `json:"vendorId" validate:"required"`
	PurchaseOrderID *string         `json:"purchaseOrderId"`
	Amount          decimal.Decimal `json:"amount"`
	DueDate         *time.Time      `json:"dueDate"`
	IssuedAt        *time.Time      `json:"issuedAt"`
}

type invoicePatch struct {
	Number  *string          `json:"number" db:"number" validate:"omitempty,min=1,max=50"`
	Amount  *decimal.Decimal `json:"amount" db:"amount"`
	DueDate *time.Time       `json:"dueDate" db:"due_date"`
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	invoices, total, err := repos.Invoices.FindMany(r.Context(), httputil.ParseQueryString(r, "status", ""), bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, invoices, httputil.NewPagination(page, total))
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	inv, err := repos.Invoices.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req invoiceRequest
	if !decode(w, r, &req) {
		return
	}
	sc := repos.SecurityContext()
	if err := requireFinancials(sc); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	inv := &repository.Invoice{
		Number:          req.Number,
		VendorID:        req.VendorID,
		PurchaseOrderID: req.PurchaseOrderID,
		Amount:          req.Amount,
		DueDate:         req.DueDate,
	}
	if req.IssuedAt != nil {
		inv.IssuedAt = req.IssuedAt.UTC()
	}
	if err := repos.Invoices.Create(r.Context(), inv); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionCreate, "invoice", inv.ID, map[string]interface{}{"number": inv.Number})
	httputil.WriteCreated(w, inv)
}

func (s *Server) updateInvoice(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch invoicePatch
	if !decode(w, r, &patch) {
		return
	}
	sc := repos.SecurityContext()
	if patch.Amount != nil {
		if err := requireFinancials(sc); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	changes := repository.Changes(&patch)
	inv, err := repos.Invoices.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionUpdate, "invoice", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, inv)
}

func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Invoices.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "invoice", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Invoice deleted", nil)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := repos.Invoices.FindByID(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	payments, err := repos.Payments.FindByInvoice(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, payments)
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"omitempty,oneof=CHECK ACH WIRE CARD CASH OTHER"`
	Reference string          `json:"reference" validate:"max=100"`
	PaidAt    *time.Time      `json:"paidAt"`
}

// recordPayment pays an invoice. The invoice, its purchase order and the
// linked budget item are updated together or not at all.
func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}
	sc := repos.SecurityContext()
	if err := requireFinancials(sc); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	result, err := repos.RecordPayment(r.Context(), repository.PaymentInput{
		InvoiceID: id,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		PaidAt:    req.PaidAt,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionPayment, "invoice", id, map[string]interface{}{
		"paymentId": result.Payment.ID,
		"amount":    result.Payment.Amount.StringFixed(2),
		"status":    result.Invoice.Status,
	})
	httputil.WriteCreated(w, result)
}
