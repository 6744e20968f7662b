package audit

import (
	"encoding/json"
	"time"
)

// Action constants
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionBulkDelete = "bulk_delete"
	ActionBulkUpsert = "bulk_upsert"
	ActionApprove    = "approve"
	ActionInvite     = "invite"
	ActionAward      = "award"
	ActionPayment    = "payment.record"
	ActionRoleChange = "role.change"
	ActionDeactivate = "deactivate"
	ActionInitialize = "user.initialize"
	ActionWebhook    = "webhook.receive"

	ActionPolicyAllow = "policy.allow"
	ActionPolicyDeny  = "policy.deny"
)

// Entry is one audit record to write
type Entry struct {
	UserID    string
	ProjectID string
	Action    string
	Entity    string
	EntityID  string
	Metadata  map[string]interface{}
}

// Record is a persisted audit row
type Record struct {
	ID           string          `db:"id" json:"id"`
	UserID       *string         `db:"user_id" json:"userId,omitempty"`
	ProjectID    *string         `db:"project_id" json:"projectId,omitempty"`
	Action       string          `db:"action" json:"action"`
	Entity       string          `db:"entity" json:"entity"`
	EntityID     string          `db:"entity_id" json:"entityId"`
	MetadataJSON string          `db:"metadata" json:"-"`
	Metadata     json.RawMessage `db:"-" json:"metadata"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// SearchFilter narrows an audit search. Zero values are ignored.
type SearchFilter struct {
	UserID    string
	ProjectID string
	Action    string
	Entity    string
	EntityID  string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// ExportFormat is the encoding used by Export
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatNDJSON ExportFormat = "ndjson"
	ExportFormatCSV    ExportFormat = "csv"
)
