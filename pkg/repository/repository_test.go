package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/platinummonkey/groundwork/pkg/apperr"
	"github.com/platinummonkey/groundwork/pkg/db/dbtest"
	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dec = decimal.RequireFromString

type fixture struct {
	conn    *sql.DB
	owner   string
	project string
	other   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	owner := dbtest.SeedUser(t, conn, "owner@example.com", "STAFF")
	return &fixture{
		conn:    conn,
		owner:   owner,
		project: dbtest.SeedProject(t, conn, "Riverside Duplex", owner),
		other:   dbtest.SeedProject(t, conn, "Harbor Office", owner),
	}
}

func (f *fixture) repos(t *testing.T, projectID string, role rbac.ProjectRole, financials bool, access ...rbac.ModuleAccess) *Repositories {
	t.Helper()
	if access == nil {
		access = rbac.FullAccess()
	}
	sc := rbac.NewSecurityContext(f.owner, projectID, rbac.SystemRoleStaff, role, financials, access...)
	repos, err := New(f.conn, sc, WithClock(func() time.Time { return dbtest.Now }))
	require.NoError(t, err)
	return repos
}

func (f *fixture) manager(t *testing.T) *Repositories {
	return f.repos(t, f.project, rbac.ProjectRoleManager, true)
}

func TestNew_FailsClosed(t *testing.T) {
	_, err := New(nil, nil)
	assert.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestScoping_CreateOverridesForeignProjectID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)

	task := &Task{ProjectID: f.other, Title: "Frame walls", CreatedBy: f.owner}
	require.NoError(t, repos.Tasks.Create(ctx, task))
	assert.Equal(t, f.project, task.ProjectID)
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "tasks", "project_id = $1", f.project))
	assert.Zero(t, dbtest.Count(t, f.conn, "tasks", "project_id = $1", f.other))

	updated, err := repos.Tasks.Update(ctx, task.ID, map[string]interface{}{
		"project_id": f.other,
		"id":         "hijacked",
		"title":      "Frame exterior walls",
	})
	require.NoError(t, err)
	assert.Equal(t, f.project, updated.ProjectID)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, "Frame exterior walls", updated.Title)
}

func TestScoping_OtherProjectRowsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := &Task{Title: "Pour slab", CreatedBy: f.owner}
	require.NoError(t, f.manager(t).Tasks.Create(ctx, task))

	foreign := f.repos(t, f.other, rbac.ProjectRoleManager, true)

	_, err := foreign.Tasks.FindByID(ctx, task.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = foreign.Tasks.Update(ctx, task.ID, map[string]interface{}{"title": "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.True(t, apperr.Is(foreign.Tasks.Delete(ctx, task.ID), apperr.KindNotFound))

	tasks, total, err := foreign.Tasks.FindMany(ctx, TaskFilter{}, Page{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Zero(t, total)
}

func TestTasks_FilterPageAndCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)

	assignee := f.owner
	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, repos.Tasks.Create(ctx, &Task{Title: title, CreatedBy: f.owner, AssigneeID: &assignee}))
	}
	require.NoError(t, repos.Tasks.Create(ctx, &Task{Title: "d", CreatedBy: f.owner, Status: TaskStatusBlocked}))

	page, total, err := repos.Tasks.FindMany(ctx, TaskFilter{AssigneeID: f.owner}, Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	blocked, _, err := repos.Tasks.FindMany(ctx, TaskFilter{Status: TaskStatusBlocked}, Page{})
	require.NoError(t, err)
	require.Len(t, blocked, 1)

	done, err := repos.Tasks.Update(ctx, blocked[0].ID, Changes(struct {
		Status *string `db:"status"`
	}{Status: strPtr(TaskStatusDone)}))
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
}

func TestBulkDeleteTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)

	a := &Task{Title: "a", CreatedBy: f.owner}
	b := &Task{Title: "b", CreatedBy: f.owner}
	require.NoError(t, repos.Tasks.Create(ctx, a))
	require.NoError(t, repos.Tasks.Create(ctx, b))

	foreign := &Task{Title: "elsewhere", CreatedBy: f.owner}
	require.NoError(t, f.repos(t, f.other, rbac.ProjectRoleManager, true).Tasks.Create(ctx, foreign))

	_, err := repos.BulkDeleteTasks(ctx, []string{a.ID, "missing-2", foreign.ID, "missing-1"})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "TASKS_NOT_FOUND", appErr.ResponseCode())
	assert.ElementsMatch(t, []string{"missing-1", "missing-2", foreign.ID}, appErr.Details["missingIds"])
	assert.Equal(t, 2, dbtest.Count(t, f.conn, "tasks", "project_id = $1", f.project), "nothing deleted")

	n, err := repos.BulkDeleteTasks(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "tasks", ""))
}

func seedBudget(t *testing.T, repos *Repositories) *BudgetItem {
	t.Helper()
	item := &BudgetItem{
		Category:       "Concrete",
		Description:    "Foundation",
		Quantity:       dec("40"),
		Unit:           "m3",
		UnitCost:       dec("150"),
		CommittedTotal: dec("7000"),
	}
	require.NoError(t, repos.Budget.Create(context.Background(), item))
	return item
}

func TestBudget_Redaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := seedBudget(t, f.manager(t))

	admin := f.repos(t, f.project, rbac.ProjectRoleManager, true)
	items, _, err := admin.Budget.FindMany(ctx, BudgetFilter{}, Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].EstTotal.Equal(dec("6000")))
	assert.True(t, items[0].UnitCost.Equal(dec("150")))
	assert.True(t, items[0].Variance.Equal(dec("1000")))

	contractor := f.repos(t, f.project, rbac.ProjectRoleContractor, false)
	items, _, err = contractor.Budget.FindMany(ctx, BudgetFilter{}, Page{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	got := items[0]
	for _, v := range []decimal.Decimal{got.UnitCost, got.EstTotal, got.CommittedTotal, got.PaidTotal, got.Variance} {
		assert.True(t, v.IsZero())
	}
	assert.True(t, got.Quantity.Equal(dec("40")))
	assert.Equal(t, "m3", got.Unit)
	assert.Equal(t, "Foundation", got.Description)

	detail, err := contractor.Budget.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, detail.EstTotal.IsZero())

	summary, err := contractor.Budget.Summary(ctx)
	require.NoError(t, err)
	assert.True(t, summary.Redacted)
	assert.True(t, summary.Estimated.IsZero())
	assert.Equal(t, 1, summary.Items)
}

// seedBids creates an RFP with one submitted bid per amount
func seedBids(t *testing.T, repos *Repositories, amounts ...string) (*Rfp, []*Bid) {
	t.Helper()
	ctx := context.Background()
	rfp := &Rfp{Title: "Site concrete"}
	require.NoError(t, repos.Rfps.Create(ctx, rfp))

	var bids []*Bid
	for i, amount := range amounts {
		contact := &Contact{Name: "Bidder", Company: "Bidder " + string(rune('A'+i))}
		require.NoError(t, repos.Contacts.Create(ctx, contact))
		invited, err := repos.InviteContacts(ctx, rfp.ID, []string{contact.ID})
		require.NoError(t, err)
		require.Len(t, invited.Invited, 1)

		bid := &Bid{Amount: dec(amount)}
		require.NoError(t, repos.SubmitBid(ctx, invited.Invited[0].ID, bid))
		bids = append(bids, bid)
	}
	return rfp, bids
}

func TestBids_Redaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rfp, bids := seedBids(t, f.manager(t), "5000", "4000")

	manager := f.manager(t)
	listed, err := manager.Bids.FindByRfp(ctx, rfp.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].Amount.Equal(dec("4000")))
	assert.True(t, listed[1].Amount.Equal(dec("5000")))

	contractor := f.repos(t, f.project, rbac.ProjectRoleContractor, false,
		rbac.ModuleAccess{Module: rbac.ModuleBidding, CanView: true})
	listed, err = contractor.Bids.FindByRfp(ctx, rfp.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, bid := range listed {
		assert.True(t, bid.Amount.IsZero(), bid.ID)
		assert.Equal(t, rfp.ID, bid.RfpID)
	}

	detail, err := contractor.Bids.FindByID(ctx, bids[0].ID)
	require.NoError(t, err)
	assert.True(t, detail.Amount.IsZero())
	assert.Equal(t, BidStatusSubmitted, detail.Status)
}

func TestSubmitBid_OncePerInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	_, bids := seedBids(t, repos, "5000")
	require.NotNil(t, bids[0].InvitationID)

	retry := &Bid{Amount: dec("4800")}
	err := repos.SubmitBid(ctx, *bids[0].InvitationID, retry)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "bids", ""))

	stored, err := repos.Bids.FindByID(ctx, bids[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(dec("5000")), "first bid kept")

	_, err = f.conn.Exec(`INSERT INTO bids (id, project_id, rfp_id, vendor_id, invitation_id, amount, status, submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8)`,
		"dup", f.project, stored.RfpID, stored.VendorID, *stored.InvitationID, "1", BidStatusSubmitted, dbtest.Now)
	assert.Error(t, err, "one bid row per invitation")
}

func TestPaymentReadsLockRows(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	sc := rbac.NewSecurityContext("u1", "p1", rbac.SystemRoleStaff, rbac.ProjectRoleManager, true, rbac.FullAccess()...)
	s := scope{q: conn, sc: sc, projectID: "p1", lockRows: true, now: func() time.Time { return dbtest.Now }}

	mock.ExpectQuery(`SELECT .+ FROM invoices WHERE \(project_id = \$1 AND id = \$2\) FOR UPDATE`).
		WithArgs("p1", "inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id"}).AddRow("inv-1", "p1"))
	inv, err := newInvoiceRepository(s).t.findForUpdate(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", inv.ID)

	mock.ExpectQuery(`SELECT .+ FROM invoices WHERE \(project_id = \$1 AND id = \$2\)$`).
		WithArgs("p1", "inv-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id"}).AddRow("inv-1", "p1"))
	s.lockRows = false
	_, err = newInvoiceRepository(s).t.findForUpdate(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBudget_SummarySeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	seedBudget(t, repos)
	require.NoError(t, repos.Budget.Create(ctx, &BudgetItem{Category: "Framing", EstTotal: dec("1000"), CommittedTotal: dec("1050")}))

	summary, err := repos.Budget.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Categories, 2)
	assert.Equal(t, "Concrete", summary.Categories[0].Category)
	assert.Equal(t, rbac.SeverityMedium, summary.Categories[0].Severity)
	assert.Equal(t, rbac.SeverityNone, summary.Categories[1].Severity)
	assert.True(t, summary.Estimated.Equal(dec("7000")))
	assert.True(t, summary.Committed.Equal(dec("8050")))
	assert.Equal(t, rbac.SeverityMedium, summary.Severity)
}

func TestBulkUpsertBudget_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	existing := seedBudget(t, repos)

	_, err := repos.BulkUpsertBudget(ctx, []BudgetUpsert{
		{Item: BudgetItem{Category: "Roofing", EstTotal: dec("500")}},
		{ID: existing.ID, Changes: map[string]interface{}{"notes": "rebid"}},
		{ID: "missing", Changes: map[string]interface{}{"notes": "x"}},
	})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 1, dbtest.Count(t, f.conn, "budget_items", ""))
	assert.Zero(t, dbtest.Count(t, f.conn, "budget_items", "notes = $1", "rebid"))

	out, err := repos.BulkUpsertBudget(ctx, []BudgetUpsert{
		{Item: BudgetItem{Category: "Roofing", EstTotal: dec("500")}},
		{ID: existing.ID, Changes: map[string]interface{}{"notes": "rebid"}},
	})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 2, dbtest.Count(t, f.conn, "budget_items", ""))
}

func TestSchedule_ContractorRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := dbtest.Now.Add(24 * time.Hour)

	contractor := f.repos(t, f.project, rbac.ProjectRoleContractor, false,
		rbac.ModuleAccess{Module: rbac.ModuleSchedule, CanView: true, CanRequest: true})

	event := &ScheduleEvent{Title: "Crane lift", StartAt: start, EndAt: start.Add(time.Hour), Status: EventStatusApproved}
	require.NoError(t, contractor.Schedule.Create(ctx, event))
	assert.Equal(t, EventStatusRequested, event.Status)
	require.NotNil(t, event.RequestedBy)
	assert.Equal(t, f.owner, *event.RequestedBy)

	manager := f.manager(t)
	hidden := &ScheduleEvent{Title: "Inspection", StartAt: start, EndAt: start.Add(time.Hour)}
	require.NoError(t, manager.Schedule.Create(ctx, hidden))
	assert.Equal(t, EventStatusScheduled, hidden.Status)

	visible, _, err := contractor.Schedule.FindMany(ctx, ScheduleFilter{}, Page{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, event.ID, visible[0].ID)

	_, err = contractor.Schedule.FindByID(ctx, hidden.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unlisted events stay hidden by id")
	got, err := contractor.Schedule.FindByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusRequested, got.Status)
	got, err = manager.Schedule.FindByID(ctx, hidden.ID)
	require.NoError(t, err)
	assert.Equal(t, EventStatusScheduled, got.Status)

	bad := &ScheduleEvent{Title: "x", StartAt: start, EndAt: start}
	assert.True(t, apperr.Is(manager.Schedule.Create(ctx, bad), apperr.KindValidation))
}

func TestBulkApproveSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	start := dbtest.Now

	a := &ScheduleEvent{Title: "a", StartAt: start, EndAt: start.Add(time.Hour)}
	b := &ScheduleEvent{Title: "b", StartAt: start, EndAt: start.Add(time.Hour)}
	require.NoError(t, repos.Schedule.Create(ctx, a))
	require.NoError(t, repos.Schedule.Create(ctx, b))

	_, err := repos.BulkApproveSchedule(ctx, []string{a.ID, "nope"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, dbtest.Count(t, f.conn, "schedule_events", "status = $1", EventStatusApproved))

	approved, err := repos.BulkApproveSchedule(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, approved, 2)
	for _, e := range approved {
		assert.Equal(t, EventStatusApproved, e.Status)
		require.NotNil(t, e.ApprovedBy)
	}
}

type purchasing struct {
	vendor *Vendor
	budget *BudgetItem
	po     *PurchaseOrder
	inv    *Invoice
}

func seedPurchasing(t *testing.T, repos *Repositories) purchasing {
	t.Helper()
	ctx := context.Background()

	vendor := &Vendor{Name: "Acme Concrete"}
	require.NoError(t, repos.Vendors.Create(ctx, vendor))
	budget := seedBudget(t, repos)

	po := &PurchaseOrder{Number: "PO-1", VendorID: vendor.ID, BudgetItemID: &budget.ID, Amount: dec("1000")}
	require.NoError(t, repos.PurchaseOrders.Create(ctx, po))
	_, err := repos.TransitionPurchaseOrder(ctx, po.ID, POStatusIssued)
	require.NoError(t, err)

	inv := &Invoice{Number: "INV-1", VendorID: vendor.ID, PurchaseOrderID: &po.ID, Amount: dec("1000")}
	require.NoError(t, repos.Invoices.Create(ctx, inv))
	return purchasing{vendor: vendor, budget: budget, po: po, inv: inv}
}

func TestPurchaseOrderTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	p := seedPurchasing(t, repos)

	issued, err := repos.PurchaseOrders.FindByID(ctx, p.po.ID)
	require.NoError(t, err)
	assert.Equal(t, POStatusIssued, issued.Status)
	require.NotNil(t, issued.IssuedAt)

	budget, err := repos.Budget.FindByID(ctx, p.budget.ID)
	require.NoError(t, err)
	assert.True(t, budget.CommittedTotal.Equal(dec("8000")), "issuing commits the amount")

	_, err = repos.TransitionPurchaseOrder(ctx, p.po.ID, POStatusDraft)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = repos.PurchaseOrders.Update(ctx, p.po.ID, map[string]interface{}{"amount": dec("5")})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	assert.True(t, CanTransition(POStatusDraft, POStatusCancelled))
	assert.False(t, CanTransition(POStatusPaid, POStatusCancelled))
	assert.False(t, CanTransition(POStatusPartiallyPaid, POStatusCancelled))
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	p := seedPurchasing(t, repos)

	res, err := repos.RecordPayment(ctx, PaymentInput{InvoiceID: p.inv.ID, Amount: dec("400"), Method: "ACH"})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPartiallyPaid, res.Invoice.Status)
	assert.True(t, res.Invoice.PaidAmount.Equal(dec("400")))
	require.NotNil(t, res.PurchaseOrder)
	assert.Equal(t, POStatusPartiallyPaid, res.PurchaseOrder.Status)

	budget, err := repos.Budget.FindByID(ctx, p.budget.ID)
	require.NoError(t, err)
	assert.True(t, budget.PaidTotal.Equal(dec("400")))

	_, err = repos.RecordPayment(ctx, PaymentInput{InvoiceID: p.inv.ID, Amount: dec("601")})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "overpayment")

	res, err = repos.RecordPayment(ctx, PaymentInput{InvoiceID: p.inv.ID, Amount: dec("600")})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, POStatusPaid, res.PurchaseOrder.Status)

	payments, err := repos.Payments.FindByInvoice(ctx, p.inv.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestRecordPayment_BudgetFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)
	p := seedPurchasing(t, repos)

	_, err := f.conn.Exec(`CREATE TRIGGER budget_locked BEFORE UPDATE ON budget_items
		BEGIN SELECT RAISE(ABORT, 'budget locked'); END`)
	require.NoError(t, err)

	_, err = repos.RecordPayment(ctx, PaymentInput{InvoiceID: p.inv.ID, Amount: dec("250")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget locked")

	inv, err := repos.Invoices.FindByID(ctx, p.inv.ID)
	require.NoError(t, err)
	assert.True(t, inv.PaidAmount.IsZero())
	assert.Equal(t, InvoiceStatusPending, inv.Status)

	po, err := repos.PurchaseOrders.FindByID(ctx, p.po.ID)
	require.NoError(t, err)
	assert.True(t, po.PaidAmount.IsZero())
	assert.Equal(t, POStatusIssued, po.Status)

	assert.Zero(t, dbtest.Count(t, f.conn, "payments", ""))
}

func TestInvoice_CrossProjectReferencesRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	foreignVendor := &Vendor{Name: "Elsewhere Ltd"}
	require.NoError(t, f.repos(t, f.other, rbac.ProjectRoleManager, true).Vendors.Create(ctx, foreignVendor))

	err := f.manager(t).Invoices.Create(ctx, &Invoice{Number: "X", VendorID: foreignVendor.ID, Amount: dec("1")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestBidding_InviteIsIdempotentAndAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)

	rfp := &Rfp{Title: "Site concrete"}
	require.NoError(t, repos.Rfps.Create(ctx, rfp))
	require.NoError(t, repos.RfpItems.Create(ctx, &RfpItem{RfpID: rfp.ID, Description: "Slab", Quantity: dec("40")}))

	c1 := &Contact{Name: "Dana", Company: "Acme Concrete"}
	c2 := &Contact{Name: "Lee", Company: "Bedrock Inc"}
	require.NoError(t, repos.Contacts.Create(ctx, c1))
	require.NoError(t, repos.Contacts.Create(ctx, c2))

	first, err := repos.InviteContacts(ctx, rfp.ID, []string{c1.ID, "ghost", c2.ID})
	require.NoError(t, err)
	assert.Len(t, first.Invited, 2)
	assert.Equal(t, "Contact not found", first.Errors["ghost"])

	second, err := repos.InviteContacts(ctx, rfp.ID, []string{c1.ID})
	require.NoError(t, err)
	assert.Empty(t, second.Invited)
	require.Len(t, second.AlreadyInvited, 1)
	assert.Equal(t, first.Invited[0].ID, second.AlreadyInvited[0].ID)
	assert.Equal(t, 2, dbtest.Count(t, f.conn, "bid_invitations", ""))
	assert.Equal(t, 2, dbtest.Count(t, f.conn, "vendors", ""), "vendors reused per contact")

	low := &Bid{Amount: dec("5000")}
	high := &Bid{Amount: dec("6500")}
	require.NoError(t, repos.SubmitBid(ctx, first.Invited[0].ID, low))
	require.NoError(t, repos.SubmitBid(ctx, first.Invited[1].ID, high))

	awarded, err := repos.AwardBid(ctx, rfp.ID, low.ID)
	require.NoError(t, err)
	assert.Equal(t, RfpStatusAwarded, awarded.Status)
	require.NotNil(t, awarded.AwardedBidID)
	assert.Equal(t, low.ID, *awarded.AwardedBidID)

	bids, err := repos.Bids.FindByRfp(ctx, rfp.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, BidStatusAccepted, bids[0].Status)
	assert.Equal(t, BidStatusRejected, bids[1].Status)

	_, err = repos.AwardBid(ctx, rfp.ID, high.ID)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, _, err = repos.BidInvitations.Invite(ctx, rfp.ID, low.VendorID, nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "awarded RFPs take no invitations")
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repos := f.manager(t)

	doc := &Document{Name: "plans.pdf", StorageKey: "projects/p/plans.pdf", UploadedBy: f.owner, SizeBytes: 1024}
	require.NoError(t, repos.Documents.Create(ctx, doc))
	assert.Equal(t, "application/octet-stream", doc.ContentType)

	renamed, err := repos.Documents.Rename(ctx, doc.ID, "plans-rev2.pdf")
	require.NoError(t, err)
	assert.Equal(t, "plans-rev2.pdf", renamed.Name)

	dup := &Document{Name: "copy", StorageKey: doc.StorageKey, UploadedBy: f.owner}
	assert.True(t, apperr.Is(repos.Documents.Create(ctx, dup), apperr.KindConflict))
}

func TestChanges(t *testing.T) {
	title := "New"
	patch := struct {
		Title  *string `db:"title"`
		Status *string `db:"status"`
		Note   *string
	}{Title: &title}

	assert.Equal(t, map[string]interface{}{"title": "New"}, Changes(patch))
	assert.Empty(t, Changes(42))
}

func strPtr(s string) *string { return &s }
