package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/shopspring/decimal"
)

// InvoiceRepository reads and writes invoices of one project
type InvoiceRepository struct {
	t       *table[Invoice]
	vendors *table[Vendor]
	pos     *table[PurchaseOrder]
}

func newInvoiceRepository(s scope) *InvoiceRepository {
	return &InvoiceRepository{
		t:       newTable[Invoice](s, "invoices", "Invoice", "number", "amount", "due_date"),
		vendors: newTable[Vendor](s, "vendors", "Vendor"),
		pos:     newTable[PurchaseOrder](s, "purchase_orders", "Purchase order"),
	}
}

// FindMany lists invoices by due date
func (r *InvoiceRepository) FindMany(ctx context.Context, status string, page Page) ([]*Invoice, int64, error) {
	var where sq.Sqlizer
	if status != "" {
		where = sq.Eq{"status": status}
	}
	return r.t.findMany(ctx, where, "due_date", page)
}

// FindByID returns one invoice
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*Invoice, error) {
	return r.t.findByID(ctx, id)
}

// Create inserts a PENDING invoice. A linked purchase order must belong to
// the same vendor.
func (r *InvoiceRepository) Create(ctx context.Context, inv *Invoice) error {
	if _, err := r.vendors.findByID(ctx, inv.VendorID); err != nil {
		return err
	}
	if inv.PurchaseOrderID != nil {
		po, err := r.pos.findByID(ctx, *inv.PurchaseOrderID)
		if err != nil {
			return err
		}
		if po.VendorID != inv.VendorID {
			return apperr.Validation("Invalid invoice", map[string]string{"purchaseOrderId": "belongs to a different vendor"})
		}
	}
	if !inv.Amount.IsPositive() {
		return apperr.Validation("Invalid invoice", map[string]string{"amount": "must be greater than 0"})
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = r.t.now()
	}
	inv.Status = InvoiceStatusPending
	inv.PaidAmount = decimal.Zero
	_, err := r.t.insert(ctx, inv)
	return err
}

// Update applies changes to an unpaid invoice
func (r *InvoiceRepository) Update(ctx context.Context, id string, changes map[string]interface{}) (*Invoice, error) {
	inv, err := r.t.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.PaidAmount.IsZero() {
		return nil, apperr.Conflict("Cannot edit an invoice with recorded payments")
	}
	return r.t.update(ctx, id, changes)
}

// Delete removes an invoice without payments
func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	inv, err := r.t.findByID(ctx, id)
	if err != nil {
		return err
	}
	if !inv.PaidAmount.IsZero() {
		return apperr.Conflict("Cannot delete an invoice with recorded payments")
	}
	return r.t.delete(ctx, id)
}

// PaymentRepository reads payments of one project. Payments are written
// only by RecordPayment.
type PaymentRepository struct {
	t *table[Payment]
}

func newPaymentRepository(s scope) *PaymentRepository {
	return &PaymentRepository{t: newTable[Payment](s, "payments", "Payment")}
}

// FindByInvoice lists the payments of one invoice, oldest first
func (r *PaymentRepository) FindByInvoice(ctx context.Context, invoiceID string) ([]*Payment, error) {
	return r.t.findAll(ctx, sq.Eq{"invoice_id": invoiceID}, "paid_at")
}

// PaymentInput describes a payment to record
type PaymentInput struct {
	InvoiceID string
	Amount    decimal.Decimal
	Method    string
	Reference string
	PaidAt    *time.Time
}

// PaymentResult is the state after a recorded payment
type PaymentResult struct {
	Payment       *Payment       `json:"payment"`
	Invoice       *Invoice       `json:"invoice"`
	PurchaseOrder *PurchaseOrder `json:"purchaseOrder,omitempty"`
}

// RecordPayment records a payment and rolls it up into the invoice, its
// purchase order and the order's budget item in one transaction. Any failed
// step leaves all of them unchanged.
func (r *Repositories) RecordPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if !in.Amount.IsPositive() {
		return nil, apperr.Validation("Invalid payment", map[string]string{"amount": "must be greater than 0"})
	}

	result := &PaymentResult{}
	err := r.Tx(ctx, func(tx *Repositories) error {
		// The invoice lock serializes payments so the balance check and
		// the paid total see every committed payment.
		inv, err := tx.Invoices.t.findForUpdate(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		outstanding := inv.Amount.Sub(inv.PaidAmount)
		if in.Amount.GreaterThan(outstanding) {
			return apperr.Validation("Invalid payment", map[string]string{
				"amount": fmt.Sprintf("exceeds the outstanding balance of %s", outstanding.StringFixed(2)),
			})
		}

		now := tx.scope.now()
		paidAt := now
		if in.PaidAt != nil {
			paidAt = in.PaidAt.UTC()
		}
		payment := &Payment{
			InvoiceID:  inv.ID,
			Amount:     in.Amount,
			Method:     in.Method,
			Reference:  in.Reference,
			PaidAt:     paidAt,
			RecordedBy: tx.scope.sc.UserID(),
		}
		if _, err := tx.Payments.t.insert(ctx, payment); err != nil {
			return err
		}
		result.Payment = payment

		paid := inv.PaidAmount.Add(in.Amount)
		if err := tx.Invoices.t.set(ctx, inv.ID, map[string]interface{}{
			"paid_amount": paid,
			"status":      paymentStatus(inv.Amount, paid, InvoiceStatusPartiallyPaid, InvoiceStatusPaid),
		}); err != nil {
			return err
		}

		if inv.PurchaseOrderID != nil {
			if err := tx.PurchaseOrders.applyPayment(ctx, *inv.PurchaseOrderID, in.Amount); err != nil {
				return err
			}
			po, err := tx.PurchaseOrders.t.findByID(ctx, *inv.PurchaseOrderID)
			if err != nil {
				return err
			}
			if po.BudgetItemID != nil {
				if err := tx.Budget.addPaid(ctx, *po.BudgetItemID, in.Amount); err != nil {
					return err
				}
			}
			result.PurchaseOrder = po
		}

		result.Invoice, err = tx.Invoices.t.findByID(ctx, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
