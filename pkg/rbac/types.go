package rbac

import (
	"fmt"
	"strings"
)

// SystemRole is the coarse, application wide role of a user
type SystemRole string

const (
	SystemRoleAdmin      SystemRole = "ADMIN"
	SystemRoleStaff      SystemRole = "STAFF"
	SystemRoleContractor SystemRole = "CONTRACTOR"
	SystemRoleViewer     SystemRole = "VIEWER"
)

// Valid reports whether r is a known system role
func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleAdmin, SystemRoleStaff, SystemRoleContractor, SystemRoleViewer:
		return true
	}
	return false
}

// ProjectRole is the role a user holds inside one project
type ProjectRole string

const (
	ProjectRoleOwner      ProjectRole = "OWNER"
	ProjectRoleManager    ProjectRole = "MANAGER"
	ProjectRoleMember     ProjectRole = "MEMBER"
	ProjectRoleContractor ProjectRole = "CONTRACTOR"
	ProjectRoleViewer     ProjectRole = "VIEWER"
)

// Valid reports whether r is a known project role
func (r ProjectRole) Valid() bool {
	switch r {
	case ProjectRoleOwner, ProjectRoleManager, ProjectRoleMember, ProjectRoleContractor, ProjectRoleViewer:
		return true
	}
	return false
}

// Manages reports whether the role may administer members and settings
func (r ProjectRole) Manages() bool {
	return r == ProjectRoleOwner || r == ProjectRoleManager
}

// Module is a functional area of a project
type Module string

const (
	ModuleTasks       Module = "TASKS"
	ModuleBudget      Module = "BUDGET"
	ModuleSchedule    Module = "SCHEDULE"
	ModuleContacts    Module = "CONTACTS"
	ModuleProcurement Module = "PROCUREMENT"
	ModuleBidding     Module = "BIDDING"
	ModuleVendors     Module = "VENDORS"
	ModuleDocuments   Module = "DOCUMENTS"
	ModuleTeam        Module = "TEAM"

	// NoModule marks checks that are not tied to a module, such as project
	// creation. Only the system role is consulted.
	NoModule Module = ""
)

// AllModules lists every module in display order
var AllModules = []Module{
	ModuleTasks,
	ModuleBudget,
	ModuleSchedule,
	ModuleContacts,
	ModuleProcurement,
	ModuleBidding,
	ModuleVendors,
	ModuleDocuments,
	ModuleTeam,
}

// ParseModule parses a module name case-insensitively
func ParseModule(s string) (Module, error) {
	m := Module(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllModules {
		if m == known {
			return m, nil
		}
	}
	return NoModule, fmt.Errorf("unknown module: %q", s)
}

func (m Module) String() string {
	if m == NoModule {
		return "none"
	}
	return string(m)
}

// Action is an operation on a module
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionUpload  Action = "upload"
	ActionRequest Action = "request"
)

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	switch a {
	case ActionRead, ActionWrite, ActionUpload, ActionRequest:
		return true
	}
	return false
}

// RateLimitTier is an advisory traffic class
type RateLimitTier string

const (
	TierHigh     RateLimitTier = "high"
	TierStandard RateLimitTier = "standard"
	TierLow      RateLimitTier = "low"
)

// Decision is the outcome of a policy check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// ModuleAccess is one user_module_access row
type ModuleAccess struct {
	Module     Module `json:"module" db:"module"`
	CanView    bool   `json:"canView" db:"can_view"`
	CanEdit    bool   `json:"canEdit" db:"can_edit"`
	CanUpload  bool   `json:"canUpload" db:"can_upload"`
	CanRequest bool   `json:"canRequest" db:"can_request"`
}

// Allows maps an action to its flag
func (m ModuleAccess) Allows(action Action) bool {
	switch action {
	case ActionRead:
		return m.CanView
	case ActionWrite:
		return m.CanEdit
	case ActionUpload:
		return m.CanUpload
	case ActionRequest:
		return m.CanRequest
	}
	return false
}

// User is the subset of a user row the engine needs
type User struct {
	ID         string     `db:"id"`
	SystemRole SystemRole `db:"system_role"`
	IsActive   bool       `db:"is_active"`
}

// Membership is an active project_members row
type Membership struct {
	ProjectID string      `db:"project_id"`
	UserID    string      `db:"user_id"`
	Role      ProjectRole `db:"role"`
}
