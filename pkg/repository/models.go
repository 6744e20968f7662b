package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// Task statuses
const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusBlocked    = "BLOCKED"
	TaskStatusDone       = "DONE"
)

// Task is a unit of site work
type Task struct {
	ID          string     `db:"id" json:"id"`
	ProjectID   string     `db:"project_id" json:"projectId"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Status      string     `db:"status" json:"status"`
	Priority    string     `db:"priority" json:"priority"`
	AssigneeID  *string    `db:"assignee_id" json:"assigneeId,omitempty"`
	DueDate     *time.Time `db:"due_date" json:"dueDate,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedBy   string     `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// BudgetItem is one line of the project budget. Variance is derived, not
// stored.
type BudgetItem struct {
	ID             string          `db:"id" json:"id"`
	ProjectID      string          `db:"project_id" json:"projectId"`
	Category       string          `db:"category" json:"category"`
	Description    string          `db:"description" json:"description"`
	Quantity       decimal.Decimal `db:"quantity" json:"quantity"`
	Unit           string          `db:"unit" json:"unit"`
	UnitCost       decimal.Decimal `db:"unit_cost" json:"unitCost"`
	EstTotal       decimal.Decimal `db:"est_total" json:"estTotal"`
	CommittedTotal decimal.Decimal `db:"committed_total" json:"committedTotal"`
	PaidTotal      decimal.Decimal `db:"paid_total" json:"paidTotal"`
	Variance       decimal.Decimal `db:"-" json:"variance"`
	Notes          string          `db:"notes" json:"notes"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Contact is a person or company the project works with
type Contact struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"projectId"`
	Name      string    `db:"name" json:"name"`
	Company   string    `db:"company" json:"company"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Trade     string    `db:"trade" json:"trade"`
	Type      string    `db:"type" json:"type"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Schedule event statuses
const (
	EventStatusRequested = "REQUESTED"
	EventStatusScheduled = "SCHEDULED"
	EventStatusApproved  = "APPROVED"
	EventStatusCompleted = "COMPLETED"
	EventStatusCancelled = "CANCELLED"
)

// ScheduleEvent is a dated item on the project calendar
type ScheduleEvent struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"projectId"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	StartAt     time.Time `db:"start_at" json:"startAt"`
	EndAt       time.Time `db:"end_at" json:"endAt"`
	Status      string    `db:"status" json:"status"`
	Location    string    `db:"location" json:"location"`
	RequestedBy *string   `db:"requested_by" json:"requestedBy,omitempty"`
	ApprovedBy  *string   `db:"approved_by" json:"approvedBy,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Document is the metadata of a stored file
type Document struct {
	ID          string    `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"projectId"`
	Name        string    `db:"name" json:"name"`
	ContentType string    `db:"content_type" json:"contentType"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	StorageKey  string    `db:"storage_key" json:"storageKey"`
	UploadedBy  string    `db:"uploaded_by" json:"uploadedBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Vendor is a supplier or subcontractor
type Vendor struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"projectId"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Trade     string    `db:"trade" json:"trade"`
	ContactID *string   `db:"contact_id" json:"contactId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Procurement is a material or service the project needs to buy
type Procurement struct {
	ID           string          `db:"id" json:"id"`
	ProjectID    string          `db:"project_id" json:"projectId"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	Unit         string          `db:"unit" json:"unit"`
	Status       string          `db:"status" json:"status"`
	BudgetItemID *string         `db:"budget_item_id" json:"budgetItemId,omitempty"`
	VendorID     *string         `db:"vendor_id" json:"vendorId,omitempty"`
	NeededBy     *time.Time      `db:"needed_by" json:"neededBy,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// Purchase order statuses
const (
	POStatusDraft         = "DRAFT"
	POStatusIssued        = "ISSUED"
	POStatusPartiallyPaid = "PARTIALLY_PAID"
	POStatusPaid          = "PAID"
	POStatusCancelled     = "CANCELLED"
)

// PurchaseOrder commits budget to a vendor
type PurchaseOrder struct {
	ID           string          `db:"id" json:"id"`
	ProjectID    string          `db:"project_id" json:"projectId"`
	Number       string          `db:"number" json:"number"`
	VendorID     string          `db:"vendor_id" json:"vendorId"`
	BudgetItemID *string         `db:"budget_item_id" json:"budgetItemId,omitempty"`
	Description  string          `db:"description" json:"description"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	PaidAmount   decimal.Decimal `db:"paid_amount" json:"paidAmount"`
	Status       string          `db:"status" json:"status"`
	IssuedAt     *time.Time      `db:"issued_at" json:"issuedAt,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// RFP statuses
const (
	RfpStatusDraft   = "DRAFT"
	RfpStatusOpen    = "OPEN"
	RfpStatusClosed  = "CLOSED"
	RfpStatusAwarded = "AWARDED"
)

// Rfp is a request for proposals sent to vendors
type Rfp struct {
	ID           string     `db:"id" json:"id"`
	ProjectID    string     `db:"project_id" json:"projectId"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	Status       string     `db:"status" json:"status"`
	DueDate      *time.Time `db:"due_date" json:"dueDate,omitempty"`
	AwardedBidID *string    `db:"awarded_bid_id" json:"awardedBidId,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// RfpItem is one line of an RFP
type RfpItem struct {
	ID          string          `db:"id" json:"id"`
	ProjectID   string          `db:"project_id" json:"projectId"`
	RfpID       string          `db:"rfp_id" json:"rfpId"`
	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	Unit        string          `db:"unit" json:"unit"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// Invitation statuses
const (
	InvitationStatusInvited   = "INVITED"
	InvitationStatusSubmitted = "SUBMITTED"
	InvitationStatusDeclined  = "DECLINED"
)

// BidInvitation invites one vendor to bid on an RFP
type BidInvitation struct {
	ID          string     `db:"id" json:"id"`
	ProjectID   string     `db:"project_id" json:"projectId"`
	RfpID       string     `db:"rfp_id" json:"rfpId"`
	VendorID    string     `db:"vendor_id" json:"vendorId"`
	ContactID   *string    `db:"contact_id" json:"contactId,omitempty"`
	Status      string     `db:"status" json:"status"`
	InvitedAt   time.Time  `db:"invited_at" json:"invitedAt"`
	RespondedAt *time.Time `db:"responded_at" json:"respondedAt,omitempty"`
}

// Bid statuses
const (
	BidStatusSubmitted = "SUBMITTED"
	BidStatusAccepted  = "ACCEPTED"
	BidStatusRejected  = "REJECTED"
)

// Bid is a vendor's price for an RFP
type Bid struct {
	ID           string          `db:"id" json:"id"`
	ProjectID    string          `db:"project_id" json:"projectId"`
	RfpID        string          `db:"rfp_id" json:"rfpId"`
	VendorID     string          `db:"vendor_id" json:"vendorId"`
	InvitationID *string         `db:"invitation_id" json:"invitationId,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Notes        string          `db:"notes" json:"notes"`
	Status       string          `db:"status" json:"status"`
	SubmittedAt  time.Time       `db:"submitted_at" json:"submittedAt"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// Invoice statuses
const (
	InvoiceStatusPending       = "PENDING"
	InvoiceStatusPartiallyPaid = "PARTIALLY_PAID"
	InvoiceStatusPaid          = "PAID"
	InvoiceStatusOverdue       = "OVERDUE"
)

// Invoice is a vendor's bill
type Invoice struct {
	ID              string          `db:"id" json:"id"`
	ProjectID       string          `db:"project_id" json:"projectId"`
	Number          string          `db:"number" json:"number"`
	VendorID        string          `db:"vendor_id" json:"vendorId"`
	PurchaseOrderID *string         `db:"purchase_order_id" json:"purchaseOrderId,omitempty"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	PaidAmount      decimal.Decimal `db:"paid_amount" json:"paidAmount"`
	Status          string          `db:"status" json:"status"`
	DueDate         *time.Time      `db:"due_date" json:"dueDate,omitempty"`
	IssuedAt        time.Time       `db:"issued_at" json:"issuedAt"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// Payment is money paid against an invoice
type Payment struct {
	ID         string          `db:"id" json:"id"`
	ProjectID  string          `db:"project_id" json:"projectId"`
	InvoiceID  string          `db:"invoice_id" json:"invoiceId"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     string          `db:"method" json:"method"`
	Reference  string          `db:"reference" json:"reference"`
	PaidAt     time.Time       `db:"paid_at" json:"paidAt"`
	RecordedBy string          `db:"recorded_by" json:"recordedBy"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}
