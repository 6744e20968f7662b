package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/audit"
	"github.com/platinummonkey/groundwork/pkg/httputil"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/platinummonkey/groundwork/pkg/repository"
	"github.com/shopspring/decimal"
)

func (s *Server) registerBudgetRoutes(router *mux.Router) {
	router.Handle("/projects/{projectId}/budget", s.module(rbac.ModuleBudget, rbac.ActionRead, s.listBudget)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/budget", s.module(rbac.ModuleBudget, rbac.ActionWrite, s.createBudgetItem)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/budget/summary", s.module(rbac.ModuleBudget, rbac.ActionRead, s.budgetSummary)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/budget/bulk", s.module(rbac.ModuleBudget, rbac.ActionWrite, s.bulkUpsertBudget)).Methods(http.MethodPost)
	router.Handle("/projects/{projectId}/budget/{id}", s.module(rbac.ModuleBudget, rbac.ActionRead, s.getBudgetItem)).Methods(http.MethodGet)
	router.Handle("/projects/{projectId}/budget/{id}", s.module(rbac.ModuleBudget, rbac.ActionWrite, s.updateBudgetItem)).Methods(http.MethodPatch)
	router.Handle("/projects/{projectId}/budget/{id}", s.module(rbac.ModuleBudget, rbac.ActionWrite, s.deleteBudgetItem)).Methods(http.MethodDelete)
}

type budgetItemRequest struct {
	Category    string          `json:"category" validate:"required,max=100"`
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit" validate:"max=20"`
	UnitCost    decimal.Decimal `json:"unitCost"`
	EstTotal    decimal.Decimal `json:"estTotal"`
	Notes       string          `json:"notes"`
}

func (req budgetItemRequest) item() repository.BudgetItem {
	return repository.BudgetItem{
		Category:    req.Category,
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		UnitCost:    req.UnitCost,
		EstTotal:    req.EstTotal,
		Notes:       req.Notes,
	}
}

func (req budgetItemRequest) hasCosts() bool {
	return !req.UnitCost.IsZero() || !req.EstTotal.IsZero()
}

type budgetPatch struct {
	Category       *string          `json:"category" db:"category" validate:"omitempty,min=1,max=100"`
	Description    *string          `json:"description" db:"description" validate:"omitempty,max=500"`
	Quantity       *decimal.Decimal `json:"quantity" db:"quantity"`
	Unit           *string          `json:"unit" db:"unit" validate:"omitempty,max=20"`
	UnitCost       *decimal.Decimal `json:"unitCost" db:"unit_cost"`
	EstTotal       *decimal.Decimal `json:"estTotal" db:"est_total"`
	CommittedTotal *decimal.Decimal `json:"committedTotal" db:"committed_total"`
	Notes          *string          `json:"notes" db:"notes"`
}

func (p budgetPatch) hasCosts() bool {
	return p.UnitCost != nil || p.EstTotal != nil || p.CommittedTotal != nil
}

// requireFinancials rejects cost writes from contexts that cannot see costs
func requireFinancials(sc *rbac.SecurityContext) error {
	if sc == nil || !sc.CanViewFinancials() {
		return apperr.Forbidden("Cost fields require financial access")
	}
	return nil
}

func (s *Server) listBudget(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	page, bounds, err := listPage(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	filter := repository.BudgetFilter{Category: httputil.ParseQueryString(r, "category", "")}
	items, total, err := repos.Budget.FindMany(r.Context(), filter, bounds)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WritePaginated(w, items, httputil.NewPagination(page, total))
}

func (s *Server) getBudgetItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := repos.Budget.FindByID(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

func (s *Server) createBudgetItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req budgetItemRequest
	if !decode(w, r, &req) {
		return
	}
	sc := repos.SecurityContext()
	if req.hasCosts() {
		if err := requireFinancials(sc); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	item := req.item()
	if err := repos.Budget.Create(r.Context(), &item); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionCreate, "budget_item", item.ID, map[string]interface{}{"category": item.Category})
	httputil.WriteCreated(w, item)
}

func (s *Server) updateBudgetItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var patch budgetPatch
	if !decode(w, r, &patch) {
		return
	}
	sc := repos.SecurityContext()
	if patch.hasCosts() {
		if err := requireFinancials(sc); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
	}
	changes := repository.Changes(&patch)
	item, err := repos.Budget.Update(r.Context(), id, changes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionUpdate, "budget_item", id, map[string]interface{}{"fields": fieldNames(changes)})
	httputil.WriteSuccess(w, item)
}

func (s *Server) deleteBudgetItem(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := repos.Budget.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, repos.SecurityContext(), audit.ActionDelete, "budget_item", id, nil)
	httputil.WriteMessage(w, http.StatusOK, "Budget item deleted", nil)
}

// budgetUpsertEntry is one element of a bulk upsert. Entries with an id
// patch that item; the rest create new items.
type budgetUpsertEntry struct {
	ID string `json:"id"`
	budgetPatch
}

type bulkBudgetRequest struct {
	Items []budgetUpsertEntry `json:"items" validate:"required,min=1,max=500,dive"`
}

// bulkUpsertBudget applies every entry in one transaction
func (s *Server) bulkUpsertBudget(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	var req bulkBudgetRequest
	if !decode(w, r, &req) {
		return
	}
	sc := repos.SecurityContext()

	entries := make([]repository.BudgetUpsert, 0, len(req.Items))
	for i, in := range req.Items {
		if in.hasCosts() {
			if err := requireFinancials(sc); err != nil {
				httputil.WriteError(w, r, err)
				return
			}
		}
		if in.ID != "" {
			entries = append(entries, repository.BudgetUpsert{ID: in.ID, Changes: repository.Changes(&in.budgetPatch)})
			continue
		}
		if in.Category == nil || *in.Category == "" || in.Description == nil {
			httputil.WriteError(w, r, apperr.Validation("Invalid budget item", map[string]string{
				"items": "new item " + strconv.Itoa(i) + " needs category and description",
			}))
			return
		}
		entries = append(entries, repository.BudgetUpsert{Item: in.newItem()})
	}

	items, err := repos.BulkUpsertBudget(r.Context(), entries)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	s.record(r, sc, audit.ActionBulkUpsert, "budget_item", "", map[string]interface{}{"count": len(items)})
	httputil.WriteSuccess(w, items)
}

func (p budgetPatch) newItem() repository.BudgetItem {
	item := repository.BudgetItem{Category: deref(p.Category), Description: deref(p.Description), Unit: deref(p.Unit), Notes: deref(p.Notes)}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.UnitCost != nil {
		item.UnitCost = *p.UnitCost
	}
	if p.EstTotal != nil {
		item.EstTotal = *p.EstTotal
	}
	if p.CommittedTotal != nil {
		item.CommittedTotal = *p.CommittedTotal
	}
	return item
}

// budgetSummary totals the budget by category with variance severity.
// Contexts without financial visibility only get item counts.
func (s *Server) budgetSummary(w http.ResponseWriter, r *http.Request, repos *repository.Repositories) {
	summary, err := repos.Budget.Summary(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, summary)
}
