package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/shopspring/decimal"
)

// ProcurementRepository reads and writes procurement items of one project
type ProcurementRepository struct {
	t       *table[Procurement]
	budget  *table[BudgetItem]
	vendors *table[Vendor]
}

func newProcurementRepository(s scope) *ProcurementRepository {
	return &ProcurementRepository{
		t: newTable[Procurement](s, "procurements", "Procurement item",
			"name", "description", "quantity", "unit", "status", "budget_item_id", "vendor_id", "needed_by"),
		budget:  newTable[BudgetItem](s, "budget_items", "Budget item"),
		vendors: newTable[Vendor](s, "vendors", "Vendor"),
	}
}

func (r *ProcurementRepository) checkRefs(ctx context.Context, budgetItemID, vendorID *string) error {
	if budgetItemID != nil {
		if _, err := r.budget.findByID(ctx, *budgetItemID); err != nil {
			return err
		}
	}
	if vendorID != nil {
		if _, err := r.vendors.findByID(ctx, *vendorID); err != nil {
			return err
		}
	}
	return nil
}

// FindMany lists procurement items by need date
func (r *ProcurementRepository) FindMany(ctx context.Context, status string, page Page) ([]*Procurement, int64, error) {
	var where sq.Sqlizer
	if status != "" {
		where = sq.Eq{"status": status}
	}
	return r.t.findMany(ctx, where, "needed_by", page)
}

// FindByID returns one procurement item
func (r *ProcurementRepository) FindByID(ctx context.Context, id string) (*Procurement, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a procurement item
func (r *ProcurementRepository) Create(ctx context.Context, p *Procurement) error {
	if err := r.checkRefs(ctx, p.BudgetItemID, p.VendorID); err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = "PLANNED"
	}
	_, err := r.t.insert(ctx, p)
	return err
}

// Update applies changes. Re-linked budget items and vendors must belong to
// the project.
func (r *ProcurementRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*Procurement, error) {
	budgetItemID, _ := changes["budget_item_id"].(string)
	vendorID, _ := changes["vendor_id"].(string)
	if err := r.checkRefs(ctx, optional(budgetItemID), optional(vendorID)); err != nil {
		return nil, err
	}
	return r.t.update(ctx, id, changes)
}

// Delete removes one procurement item
func (r *ProcurementRepository) Delete(ctx context.Context, id string) error {
	return r.t.delete(ctx, id)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// poTransitions lists the allowed purchase order status changes
var poTransitions = map[string][]string{
	POStatusDraft:         {POStatusIssued, POStatusCancelled},
	POStatusIssued:        {POStatusPartiallyPaid, POStatusPaid, POStatusCancelled},
	POStatusPartiallyPaid: {POStatusPaid},
}

// CanTransition reports whether a purchase order may move from one status to another
func CanTransition(from, to string) bool {
	for _, allowed := range poTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PurchaseOrderRepository reads and writes purchase orders of one project
type PurchaseOrderRepository struct {
	t       *table[PurchaseOrder]
	budget  *BudgetRepository
	vendors *table[Vendor]
}

func newPurchaseOrderRepository(s scope) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{
		t: newTable[PurchaseOrder](s, "purchase_orders", "Purchase order",
			"number", "description", "amount"),
		budget:  newBudgetRepository(s),
		vendors: newTable[Vendor](s, "vendors", "Vendor"),
	}
}

// FindMany lists purchase orders by number
func (r *PurchaseOrderRepository) FindMany(ctx context.Context, status string, page Page) ([]*PurchaseOrder, int64, error) {
	var where sq.Sqlizer
	if status != "" {
		where = sq.Eq{"status": status}
	}
	return r.t.findMany(ctx, where, "number", page)
}

// FindByID returns one purchase order
func (r *PurchaseOrderRepository) FindByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a DRAFT purchase order
func (r *PurchaseOrderRepository) Create(ctx context.Context, po *PurchaseOrder) error {
	if _, err := r.vendors.findByID(ctx, po.VendorID); err != nil {
		return err
	}
	if po.BudgetItemID != nil {
		if _, err := r.budget.t.findByID(ctx, *po.BudgetItemID); err != nil {
			return err
		}
	}
	if po.Amount.IsNegative() {
		return apperr.Validation("Invalid purchase order", map[string]string{"amount": "must not be negative"})
	}
	po.Status = POStatusDraft
	po.PaidAmount = decimal.Zero
	po.IssuedAt = nil
	_, err := r.t.insert(ctx, po)
	return err
}

// Update applies changes. Amounts are frozen once the order is issued.
func (r *PurchaseOrderRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*PurchaseOrder, error) {
	if _, ok := changes["amount"]; ok {
		po, err := r.t.findByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if po.Status != POStatusDraft {
			return nil, apperr.Conflict(fmt.Sprintf("Cannot change the amount of a %s purchase order", po.Status))
		}
	}
	return r.t.update(ctx, id, changes)
}

// Delete removes a DRAFT or CANCELLED purchase order
func (r *PurchaseOrderRepository) Delete(ctx context.Context, id string) error {
	po, err := r.t.findByID(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft && po.Status != POStatusCancelled {
		return apperr.Conflict(fmt.Sprintf("Cannot delete a %s purchase order", po.Status))
	}
	return r.t.delete(ctx, id)
}

// TransitionPurchaseOrder moves a purchase order to status. Issuing commits
// the amount to the linked budget item and cancelling an issued order
// releases it, in the same transaction.
func (r *Repositories) TransitionPurchaseOrder(ctx context.Context, id, status string) (*PurchaseOrder, error) {
	var out *PurchaseOrder
	err := r.Tx(ctx, func(tx *Repositories) error {
		po, err := tx.PurchaseOrders.t.findForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(po.Status, status) {
			return apperr.Conflict(fmt.Sprintf("Cannot move purchase order from %s to %s", po.Status, status))
		}

		values := map[string]interface{}{"status": status}
		if status == POStatusIssued {
			values["issued_at"] = tx.scope.now()
		}
		if err := tx.PurchaseOrders.t.set(ctx, id, values); err != nil {
			return err
		}

		if po.BudgetItemID != nil {
			switch {
			case status == POStatusIssued:
				err = tx.PurchaseOrders.budget.addCommitted(ctx, *po.BudgetItemID, po.Amount)
			case status == POStatusCancelled && po.Status == POStatusIssued:
				err = tx.PurchaseOrders.budget.addCommitted(ctx, *po.BudgetItemID, po.Amount.Neg())
			}
			if err != nil {
				return err
			}
		}

		out, err = tx.PurchaseOrders.t.findByID(ctx, id)
		return err
	})
	return out, err
}

// paymentStatus derives the status of a partly or fully paid document
func paymentStatus(amount, paid decimal.Decimal, partial, full string) string {
	if paid.GreaterThanOrEqual(amount) {
		return full
	}
	return partial
}

// applyPayment adds amount to a purchase order's paid amount
func (r *PurchaseOrderRepository) applyPayment(ctx context.Context, id string, amount decimal.Decimal) error {
	po, err := r.t.findForUpdate(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != POStatusIssued && po.Status != POStatusPartiallyPaid {
		return apperr.Conflict(fmt.Sprintf("Cannot pay against a %s purchase order", po.Status))
	}
	paid := po.PaidAmount.Add(amount)
	return r.t.set(ctx, id, map[string]interface{}{
		"paid_amount": paid,
		"status":      paymentStatus(po.Amount, paid, POStatusPartiallyPaid, POStatusPaid),
	})
}
