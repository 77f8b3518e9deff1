package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/stretchr/testify/assert"
)

func elected(full bool, perms ...MenuCode) ElectedOfficial {
	return ElectedOfficial{
		Official:    &models.ElectedOfficial{TenantID: uuid.New(), HasFullAccess: full},
		Permissions: perms,
	}
}

func TestHasMenuAccess_FullAccessIsMonotonic(t *testing.T) {
	p := elected(true)
	for _, code := range AllMenuCodes {
		assert.True(t, HasMenuAccess(p, code), code)
	}
}

func TestHasMenuAccess_RestrictedElectedOfficial(t *testing.T) {
	p := elected(false, MenuIdeas)

	assert.True(t, HasMenuAccess(p, MenuIdeas))
	for _, code := range AllMenuCodes {
		if code == MenuIdeas {
			continue
		}
		assert.False(t, HasMenuAccess(p, code), code)
	}
	assert.False(t, HasMenuAccess(p, MenuCode("UNMAPPED")))
}

func TestHasMenuAccess_AdminKinds(t *testing.T) {
	tenantID := uuid.New()
	user := &models.AdminUser{TenantID: &tenantID}
	principals := []Principal{SuperAdmin{User: user}, TenantAdmin{User: user}, AssociationAdmin{User: user}}

	for _, p := range principals {
		for _, code := range AllMenuCodes {
			assert.True(t, HasMenuAccess(p, code), "%s %s", p.Kind(), code)
		}
	}
	assert.False(t, HasMenuAccess(Anonymous{}, MenuDashboard))
}

func TestCanAccessTenant(t *testing.T) {
	tenantID := uuid.New()
	other := uuid.New()
	admin := TenantAdmin{User: &models.AdminUser{TenantID: &tenantID}}

	assert.True(t, CanAccessTenant(admin, tenantID))
	assert.False(t, CanAccessTenant(admin, other))
	assert.True(t, CanAccessTenant(SuperAdmin{User: &models.AdminUser{}}, other))
	assert.False(t, CanAccessTenant(Anonymous{}, tenantID))
}

func TestParseMenuCodes(t *testing.T) {
	codes, invalid := ParseMenuCodes([]string{"ideas", "IDEAS", "billing", "nope"})
	assert.Equal(t, []MenuCode{MenuIdeas, MenuBilling}, codes)
	assert.Equal(t, []string{"nope"}, invalid)
}

func TestContext(t *testing.T) {
	assert.Equal(t, KindAnonymous, FromContext(context.Background()).Kind())

	p := elected(false, MenuEvents)
	ctx := WithPrincipal(context.Background(), p)
	assert.Equal(t, KindElectedOfficial, FromContext(ctx).Kind())
}
