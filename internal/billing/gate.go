// Package billing derives the billing state shown to tenants and runs the
// addon purchase and status transition flows.
package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/tenant"
)

type BlockKind string

const (
	BlockNone                   BlockKind = "none"
	BlockLifecycleSuspended     BlockKind = "lifecycle_suspended"
	BlockBillingSuspended       BlockKind = "billing_suspended"
	BlockParentBillingSuspended BlockKind = "parent_billing_suspended"
)

const parentBlockedReason = "Le compte de la structure de rattachement est suspendu pour défaut de paiement."

// State is what the admin shell needs to render banners and what the write
// guard uses to reject mutations.
type State struct {
	AccountBlocked  bool                 `json:"account_blocked"`
	BlockReason     string               `json:"block_reason,omitempty"`
	Kind            BlockKind            `json:"kind"`
	ReadOnly        bool                 `json:"read_only"`
	ResolveURL      string               `json:"resolve_url,omitempty"`
	ManagedByParent bool                 `json:"managed_by_parent"`
	BillingStatus   models.BillingStatus `json:"billing_status"`
	TrialEndsAt     *time.Time           `json:"trial_ends_at,omitempty"`
}

type Gate struct {
	tenants           *tenant.Store
	defaultReason     string
	billingPagePath   string
	maxInheritedDepth int
}

func NewGate(tenants *tenant.Store, defaultReason, billingPagePath string) *Gate {
	return &Gate{
		tenants:           tenants,
		defaultReason:     defaultReason,
		billingPagePath:   billingPagePath,
		maxInheritedDepth: 4,
	}
}

// Resolve applies, in order: lifecycle suspension of the tenant itself, then
// non-payment of the tenant when it owns its billing, then non-payment
// inherited from the parent chain for child tenants.
func (g *Gate) Resolve(ctx context.Context, t *models.Tenant) (*State, error) {
	st := &State{
		Kind:            BlockNone,
		ManagedByParent: t.IsChild(),
		BillingStatus:   t.BillingStatus,
		TrialEndsAt:     t.TrialEndsAt,
	}

	if t.LifecycleStatus == models.LifecycleSuspended {
		st.Kind = BlockLifecycleSuspended
		st.ReadOnly = true
		st.BlockReason = g.defaultReason
		if t.SuspendedReason != nil && strings.TrimSpace(*t.SuspendedReason) != "" {
			st.BlockReason = *t.SuspendedReason
		}
		return st, nil
	}

	if !t.IsChild() {
		if t.BillingStatus.NonPayment() {
			st.AccountBlocked = true
			st.ReadOnly = true
			st.Kind = BlockBillingSuspended
			st.BlockReason = g.defaultReason
			st.ResolveURL = g.resolveURL(t)
		}
		return st, nil
	}

	blocked, err := g.parentBlocked(ctx, t, 0)
	if err != nil {
		return nil, err
	}
	if blocked {
		st.AccountBlocked = true
		st.ReadOnly = true
		st.Kind = BlockParentBillingSuspended
		st.BlockReason = parentBlockedReason
	}
	return st, nil
}

// parentBlocked walks up to the first tenant that owns its billing. The
// child's own billing status is never consulted.
func (g *Gate) parentBlocked(ctx context.Context, t *models.Tenant, depth int) (bool, error) {
	if depth >= g.maxInheritedDepth {
		return false, nil
	}
	parent, err := g.tenants.Parent(ctx, t)
	if errors.Is(err, tenant.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if parent == nil {
		return false, nil
	}
	if parent.IsChild() {
		return g.parentBlocked(ctx, parent, depth+1)
	}
	return parent.BillingStatus.NonPayment(), nil
}

func (g *Gate) resolveURL(t *models.Tenant) string {
	return "/" + t.Slug + g.billingPagePath
}
