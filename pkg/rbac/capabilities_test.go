package rbac

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities()

	assert.True(t, caps.System(SystemRoleAdmin).Bypass)
	assert.True(t, caps.System(SystemRoleStaff).Bypass)
	assert.False(t, caps.System(SystemRoleContractor).Bypass)

	assert.Len(t, caps.DefaultAccess(ProjectRoleOwner), len(AllModules))
	for _, row := range caps.DefaultAccess(ProjectRoleOwner) {
		assert.True(t, row.CanEdit, row.Module)
	}

	contractor := caps.DefaultAccess(ProjectRoleContractor)
	for _, row := range contractor {
		assert.False(t, row.CanEdit, "contractors never edit %s by default", row.Module)
	}
	assert.Nil(t, caps.DefaultAccess("GUEST"))
}

func TestCanViewFinancials(t *testing.T) {
	caps := DefaultCapabilities()
	role := func(r ProjectRole) *ProjectRole { return &r }

	assert.True(t, caps.CanViewFinancials(SystemRoleAdmin, nil))
	assert.True(t, caps.CanViewFinancials(SystemRoleViewer, role(ProjectRoleOwner)))
	assert.True(t, caps.CanViewFinancials(SystemRoleViewer, role(ProjectRoleMember)))
	assert.False(t, caps.CanViewFinancials(SystemRoleContractor, role(ProjectRoleContractor)))
	assert.False(t, caps.CanViewFinancials(SystemRoleViewer, role(ProjectRoleViewer)))
	assert.False(t, caps.CanViewFinancials(SystemRoleContractor, nil))

	assert.False(t, caps.CanViewFinancials(SystemRoleContractor, role(ProjectRoleMember)), "contractors never see costs")
	assert.False(t, caps.CanViewFinancials(SystemRoleContractor, role(ProjectRoleManager)))
}

func TestLoadCapabilities_Rejects(t *testing.T) {
	_, err := LoadCapabilities([]byte("systemRoles:\n  ROOT: {bypass: true}\n"))
	assert.Error(t, err)

	_, err = LoadCapabilities([]byte("systemRoles:\n  ADMIN: {bypass: true}\n"))
	assert.Error(t, err, "bypass without a project role")

	_, err = LoadCapabilities([]byte("systemRoles:\n  STAFF: {financials: true, hideFinancials: true}\n"))
	assert.Error(t, err, "financials both granted and hidden")

	_, err = LoadCapabilities([]byte("projectRoles:\n  MEMBER:\n    modules:\n      PAYROLL: {view: true}\n"))
	assert.Error(t, err)

	caps, err := LoadCapabilities([]byte("systemRoles:\n  VIEWER: {nullModule: [read]}\n"))
	require.NoError(t, err)
	assert.Equal(t, TierLow, caps.RateLimitTier(SystemRoleViewer))
}

func TestParseModule(t *testing.T) {
	m, err := ParseModule(" budget ")
	require.NoError(t, err)
	assert.Equal(t, ModuleBudget, m)

	_, err = ParseModule("payroll")
	assert.Error(t, err)
	assert.Equal(t, "none", NoModule.String())
}

func TestVarianceSeverity(t *testing.T) {
	d := decimal.RequireFromString
	assert.Equal(t, SeverityNone, VarianceSeverity(d("100"), d("90")))
	assert.Equal(t, SeverityNone, VarianceSeverity(d("100"), d("110")))
	assert.Equal(t, SeverityMedium, VarianceSeverity(d("100"), d("115")))
	assert.Equal(t, SeverityHigh, VarianceSeverity(d("100"), d("121")))
	assert.Equal(t, SeverityHigh, VarianceSeverity(d("0"), d("5")))
	assert.Equal(t, SeverityNone, VarianceSeverity(d("0"), d("0")))
}
