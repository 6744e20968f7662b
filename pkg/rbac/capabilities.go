package rbac

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed capabilities.yaml
var embeddedCapabilities []byte

var defaultCapabilities = mustLoadCapabilities(embeddedCapabilities)

// Flags is one set of module permissions
type Flags struct {
	View    bool `yaml:"view"`
	Edit    bool `yaml:"edit"`
	Upload  bool `yaml:"upload"`
	Request bool `yaml:"request"`
}

func (f Flags) access(m Module) ModuleAccess {
	return ModuleAccess{Module: m, CanView: f.View, CanEdit: f.Edit, CanUpload: f.Upload, CanRequest: f.Request}
}

// SystemCapability is what a system role grants on its own
type SystemCapability struct {
	Bypass            bool          `yaml:"bypass"`
	BypassProjectRole ProjectRole   `yaml:"bypassProjectRole"`
	Financials        bool          `yaml:"financials"`
	HideFinancials    bool          `yaml:"hideFinancials"`
	RateLimitTier     RateLimitTier `yaml:"rateLimitTier"`
	NullModule        []Action      `yaml:"nullModule"`
}

// ProjectCapability is what a project role grants by default
type ProjectCapability struct {
	Financials bool             `yaml:"financials"`
	AllModules *Flags           `yaml:"allModules"`
	Modules    map[Module]Flags `yaml:"modules"`
}

// Capabilities is the parsed capability table
type Capabilities struct {
	SystemRoles  map[SystemRole]SystemCapability   `yaml:"systemRoles"`
	ProjectRoles map[ProjectRole]ProjectCapability `yaml:"projectRoles"`
}

// DefaultCapabilities returns the embedded table
func DefaultCapabilities() *Capabilities {
	return defaultCapabilities
}

// LoadCapabilities parses and validates a capability table
func LoadCapabilities(data []byte) (*Capabilities, error) {
	var caps Capabilities
	if err := yaml.Unmarshal(data, &caps); err != nil {
		return nil, fmt.Errorf("failed to parse capabilities: %w", err)
	}

	for role, sc := range caps.SystemRoles {
		if !role.Valid() {
			return nil, fmt.Errorf("unknown system role %q in capabilities", role)
		}
		if sc.Financials && sc.HideFinancials {
			return nil, fmt.Errorf("system role %s both grants and hides financials", role)
		}
		if sc.Bypass && !sc.BypassProjectRole.Valid() {
			return nil, fmt.Errorf("system role %s bypasses membership without a valid bypassProjectRole", role)
		}
		for _, a := range sc.NullModule {
			if !a.Valid() {
				return nil, fmt.Errorf("unknown action %q for system role %s", a, role)
			}
		}
	}
	for role, pc := range caps.ProjectRoles {
		if !role.Valid() {
			return nil, fmt.Errorf("unknown project role %q in capabilities", role)
		}
		for m := range pc.Modules {
			if _, err := ParseModule(string(m)); err != nil {
				return nil, fmt.Errorf("project role %s: %w", role, err)
			}
		}
	}
	return &caps, nil
}

func mustLoadCapabilities(data []byte) *Capabilities {
	caps, err := LoadCapabilities(data)
	if err != nil {
		panic(err)
	}
	return caps
}

// System returns the capability of a system role, zero for unknown roles
func (c *Capabilities) System(role SystemRole) SystemCapability {
	return c.SystemRoles[role]
}

// AllowsNullModule reports whether role may perform action on NoModule
func (c *Capabilities) AllowsNullModule(role SystemRole, action Action) bool {
	for _, a := range c.System(role).NullModule {
		if a == action {
			return true
		}
	}
	return false
}

// DefaultAccess returns the module rows seeded for a new member with role
func (c *Capabilities) DefaultAccess(role ProjectRole) []ModuleAccess {
	pc, ok := c.ProjectRoles[role]
	if !ok {
		return nil
	}
	rows := make([]ModuleAccess, 0, len(AllModules))
	for _, m := range AllModules {
		if pc.AllModules != nil {
			rows = append(rows, pc.AllModules.access(m))
			continue
		}
		if f, ok := pc.Modules[m]; ok {
			rows = append(rows, f.access(m))
		}
	}
	return rows
}

// FullAccess returns every flag on every module
func FullAccess() []ModuleAccess {
	rows := make([]ModuleAccess, 0, len(AllModules))
	for _, m := range AllModules {
		rows = append(rows, Flags{View: true, Edit: true, Upload: true, Request: true}.access(m))
	}
	return rows
}

// CanViewFinancials reports financial visibility. A nil project role means
// no membership. A system role hiding financials wins over any project role.
func (c *Capabilities) CanViewFinancials(system SystemRole, project *ProjectRole) bool {
	sys := c.System(system)
	if sys.HideFinancials {
		return false
	}
	if sys.Financials {
		return true
	}
	if project == nil {
		return false
	}
	return c.ProjectRoles[*project].Financials
}

// RateLimitTier returns the tier for a system role, TierLow when unset
func (c *Capabilities) RateLimitTier(role SystemRole) RateLimitTier {
	if tier := c.System(role).RateLimitTier; tier != "" {
		return tier
	}
	return TierLow
}
