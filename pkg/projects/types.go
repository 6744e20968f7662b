package projects

import (
	"time"

	"github.com/platinummonkey/groundwork/pkg/rbac"
	"github.com/shopspring/decimal"
)

// Project statuses
const (
	StatusPlanning  = "PLANNING"
	StatusActive    = "ACTIVE"
	StatusOnHold    = "ON_HOLD"
	StatusCompleted = "COMPLETED"
)

// Project is the tenant boundary
type Project struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Status      string          `db:"status" json:"status"`
	Archived    bool            `db:"archived" json:"archived"`
	BudgetTotal decimal.Decimal `db:"budget_total" json:"budgetTotal"`
	Address     string          `db:"address" json:"address"`
	StartDate   *time.Time      `db:"start_date" json:"startDate,omitempty"`
	EndDate     *time.Time      `db:"end_date" json:"endDate,omitempty"`
	OwnerID     string          `db:"owner_id" json:"ownerId"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
	DeletedAt   *time.Time      `db:"deleted_at" json:"-"`
}

// ProjectInput creates a project
type ProjectInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Status      string          `json:"status" validate:"omitempty,oneof=PLANNING ACTIVE ON_HOLD COMPLETED"`
	BudgetTotal decimal.Decimal `json:"budgetTotal"`
	Address     string          `json:"address"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
}

// User is an application user
type User struct {
	ID         string          `db:"id" json:"id"`
	ExternalID *string         `db:"external_id" json:"externalId,omitempty"`
	Email      string          `db:"email" json:"email"`
	Name       string          `db:"name" json:"name"`
	SystemRole rbac.SystemRole `db:"system_role" json:"systemRole"`
	IsActive   bool            `db:"is_active" json:"isActive"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

// Member is an active project member with user details
type Member struct {
	ID        string           `db:"id" json:"id"`
	ProjectID string           `db:"project_id" json:"projectId"`
	UserID    string           `db:"user_id" json:"userId"`
	Role      rbac.ProjectRole `db:"role" json:"role"`
	IsActive  bool             `db:"is_active" json:"isActive"`
	Email     string           `db:"email" json:"email"`
	Name      string           `db:"name" json:"name"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// Identity is what the identity provider tells us about a user
type Identity struct {
	ExternalID string
	Email      string
	Name       string
	SystemRole rbac.SystemRole
}

// InviteInput invites somebody by email
type InviteInput struct {
	Email string           `json:"email" validate:"required,email"`
	Name  string           `json:"name" validate:"max=200"`
	Role  rbac.ProjectRole `json:"role" validate:"required,oneof=MANAGER MEMBER CONTRACTOR VIEWER"`
}

// InviteResult reports an invitation
type InviteResult struct {
	User        *User   `json:"user"`
	Member      *Member `json:"member"`
	UserCreated bool    `json:"userCreated"`
}

// InitResult reports InitializeUser
type InitResult struct {
	User    *User    `json:"user"`
	Project *Project `json:"project,omitempty"`
	Created bool     `json:"created"`
}
