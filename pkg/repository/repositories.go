package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/platinummonkey/groundwork/pkg/rbac"
)

type scope struct {
	q         db.Querier
	sc        *rbac.SecurityContext
	projectID string
	// lockRows is set on databases with row locks (SELECT ... FOR UPDATE).
	lockRows bool
	now      func() time.Time
}

// Repositories groups every scoped repository of one security context
type Repositories struct {
	conn  *sql.DB
	scope scope

	Tasks          *TaskRepository
	Budget         *BudgetRepository
	Contacts       *ContactRepository
	Schedule       *ScheduleRepository
	Procurement    *ProcurementRepository
	PurchaseOrders *PurchaseOrderRepository
	Rfps           *RfpRepository
	RfpItems       *RfpItemRepository
	BidInvitations *BidInvitationRepository
	Bids           *BidRepository
	Vendors        *VendorRepository
	Invoices       *InvoiceRepository
	Payments       *PaymentRepository
	Documents      *DocumentRepository
}

// Option configures Repositories
type Option func(*scope)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *scope) { s.now = now }
}

// New builds the repositories for sc. It fails closed without a context.
func New(conn *sql.DB, sc *rbac.SecurityContext, opts ...Option) (*Repositories, error) {
	if sc == nil || sc.ProjectID() == "" {
		return nil, apperr.Forbidden("Access denied")
	}
	s := scope{
		q:         conn,
		sc:        sc,
		projectID: sc.ProjectID(),
		lockRows:  db.DialectOf(conn) == db.DialectPostgres,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&s)
	}
	return build(conn, s), nil
}

func build(conn *sql.DB, s scope) *Repositories {
	return &Repositories{
		conn:           conn,
		scope:          s,
		Tasks:          newTaskRepository(s),
		Budget:         newBudgetRepository(s),
		Contacts:       newContactRepository(s),
		Schedule:       newScheduleRepository(s),
		Procurement:    newProcurementRepository(s),
		PurchaseOrders: newPurchaseOrderRepository(s),
		Rfps:           newRfpRepository(s),
		RfpItems:       newRfpItemRepository(s),
		BidInvitations: newBidInvitationRepository(s),
		Bids:           newBidRepository(s),
		Vendors:        newVendorRepository(s),
		Invoices:       newInvoiceRepository(s),
		Payments:       newPaymentRepository(s),
		Documents:      newDocumentRepository(s),
	}
}

// SecurityContext returns the context the repositories were built from
func (r *Repositories) SecurityContext() *rbac.SecurityContext {
	return r.scope.sc
}

// Tx runs fn with repositories bound to one transaction. Nested calls reuse
// the open transaction.
func (r *Repositories) Tx(ctx context.Context, fn func(tx *Repositories) error) error {
	if r.conn == nil {
		return fn(r)
	}
	return db.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		s := r.scope
		s.q = tx
		return fn(build(nil, s))
	})
}
