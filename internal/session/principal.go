// Package session models who is acting on a request. Each request carries
// exactly one principal kind.
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/voxpopulous/internal/database/models"
)

type Kind string

const (
	KindSuperAdmin       Kind = "super_admin"
	KindTenantAdmin      Kind = "tenant_admin"
	KindElectedOfficial  Kind = "elected_official"
	KindAssociationAdmin Kind = "association_admin"
	KindAnonymous        Kind = "anonymous"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSuperAdmin, KindTenantAdmin, KindElectedOfficial, KindAssociationAdmin:
		return true
	}
	return false
}

// Principal is implemented only by the variants in this package.
type Principal interface {
	Kind() Kind
	SubjectID() uuid.UUID
	// TenantID is nil for super admins and anonymous callers.
	TenantID() *uuid.UUID
	Email() string
	isPrincipal()
}

type SuperAdmin struct {
	User *models.AdminUser
}

type TenantAdmin struct {
	User *models.AdminUser
}

type AssociationAdmin struct {
	User *models.AdminUser
}

type ElectedOfficial struct {
	Official    *models.ElectedOfficial
	Permissions []MenuCode
}

type Anonymous struct{}

func (SuperAdmin) Kind() Kind             { return KindSuperAdmin }
func (p SuperAdmin) SubjectID() uuid.UUID { return p.User.ID }
func (SuperAdmin) TenantID() *uuid.UUID   { return nil }
func (p SuperAdmin) Email() string        { return p.User.Email }
func (SuperAdmin) isPrincipal()           {}

func (TenantAdmin) Kind() Kind             { return KindTenantAdmin }
func (p TenantAdmin) SubjectID() uuid.UUID { return p.User.ID }
func (p TenantAdmin) TenantID() *uuid.UUID { return p.User.TenantID }
func (p TenantAdmin) Email() string        { return p.User.Email }
func (TenantAdmin) isPrincipal()           {}

func (AssociationAdmin) Kind() Kind             { return KindAssociationAdmin }
func (p AssociationAdmin) SubjectID() uuid.UUID { return p.User.ID }
func (p AssociationAdmin) TenantID() *uuid.UUID { return p.User.TenantID }
func (p AssociationAdmin) Email() string        { return p.User.Email }
func (AssociationAdmin) isPrincipal()           {}

func (ElectedOfficial) Kind() Kind             { return KindElectedOfficial }
func (p ElectedOfficial) SubjectID() uuid.UUID { return p.Official.ID }
func (p ElectedOfficial) TenantID() *uuid.UUID { return &p.Official.TenantID }
func (p ElectedOfficial) Email() string        { return p.Official.Email }
func (ElectedOfficial) isPrincipal()           {}

func (Anonymous) Kind() Kind           { return KindAnonymous }
func (Anonymous) SubjectID() uuid.UUID { return uuid.Nil }
func (Anonymous) TenantID() *uuid.UUID { return nil }
func (Anonymous) Email() string        { return "" }
func (Anonymous) isPrincipal()         {}

// HasMenuAccess reports whether p may open the menu. Admin kinds are only
// gated by entitlements, which are checked separately. A restricted elected
// official needs the code listed; anything else is denied.
func HasMenuAccess(p Principal, code MenuCode) bool {
	switch v := p.(type) {
	case SuperAdmin, TenantAdmin, AssociationAdmin:
		return true
	case ElectedOfficial:
		if v.Official.HasFullAccess {
			return true
		}
		for _, allowed := range v.Permissions {
			if allowed == code {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CanAccessTenant reports whether p acts inside tenantID. Super admins may
// act in any tenant.
func CanAccessTenant(p Principal, tenantID uuid.UUID) bool {
	if p.Kind() == KindSuperAdmin {
		return true
	}
	id := p.TenantID()
	return id != nil && *id == tenantID
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns Anonymous when no principal was attached.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(ctxKey{}).(Principal); ok && p != nil {
		return p
	}
	return Anonymous{}
}
