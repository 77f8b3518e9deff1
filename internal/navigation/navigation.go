// Package navigation builds the admin menu. Each route carries its menu code
// and required feature, so gating never depends on parsing URL segments.
package navigation

import (
	"strings"

	"github.com/hugh/voxpopulous/internal/database/models"
	"github.com/hugh/voxpopulous/internal/entitlement"
	"github.com/hugh/voxpopulous/internal/session"
)

type LockReason string

const (
	LockNone             LockReason = ""
	LockUpgradeRequired  LockReason = "upgrade_required"
	LockPermissionDenied LockReason = "permission_denied"
	LockManagedByParent  LockReason = "billing_managed_by_parent"
)

var tooltips = map[LockReason]string{
	LockUpgradeRequired:  "Disponible avec une offre supérieure",
	LockPermissionDenied: "Accès non autorisé pour votre compte",
	LockManagedByParent:  "La facturation est gérée par la structure de rattachement",
}

func (r LockReason) Tooltip() string {
	return tooltips[r]
}

type Route struct {
	Menu        session.MenuCode
	Path        string
	Label       string
	Feature     entitlement.FeatureCode
	TenantTypes []models.TenantType
	OwnerOnly   bool
}

func (r Route) AppliesTo(t models.TenantType) bool {
	if len(r.TenantTypes) == 0 {
		return true
	}
	for _, tt := range r.TenantTypes {
		if tt == t {
			return true
		}
	}
	return false
}

const adminRoot = "/admin"

var territorial = []models.TenantType{models.TenantTypeMairie, models.TenantTypeEPCI}

// Routes is the admin route table, in display order.
var Routes = []Route{
	{Menu: session.MenuDashboard, Path: adminRoot, Label: "Tableau de bord"},
	{Menu: session.MenuIdeas, Path: "/admin/ideas", Label: "Boîte à idées", Feature: entitlement.FeatureIdeaBox},
	{Menu: session.MenuIncidents, Path: "/admin/incidents", Label: "Signalements", Feature: entitlement.FeatureIncidents},
	{Menu: session.MenuEvents, Path: "/admin/events", Label: "Événements", Feature: entitlement.FeatureEvents},
	{Menu: session.MenuAssociations, Path: "/admin/communes", Label: "Communes", TenantTypes: []models.TenantType{models.TenantTypeEPCI}},
	{Menu: session.MenuAssociations, Path: "/admin/associations", Label: "Associations", TenantTypes: territorial},
	{Menu: session.MenuElus, Path: "/admin/elus", Label: "Élus", TenantTypes: territorial},
	{Menu: session.MenuDomains, Path: "/admin/domains", Label: "Nom de domaine", Feature: entitlement.FeatureCustomDomain},
	{Menu: session.MenuPhotos, Path: "/admin/photos", Label: "Photos"},
	{Menu: session.MenuAdmins, Path: "/admin/admins", Label: "Administrateurs"},
	{Menu: session.MenuShare, Path: "/admin/share", Label: "Partager"},
	{Menu: session.MenuSettings, Path: "/admin/settings", Label: "Paramètres"},
	{Menu: session.MenuBilling, Path: "/admin/billing", Label: "Abonnement", OwnerOnly: true},
}

type Item struct {
	Menu       session.MenuCode `json:"menu"`
	Path       string           `json:"path"`
	Label      string           `json:"label"`
	Enabled    bool             `json:"enabled"`
	LockReason LockReason       `json:"lock_reason,omitempty"`
	Tooltip    string           `json:"tooltip,omitempty"`
}

// Build returns every route applicable to the tenant type. Locked routes
// stay in the list with the reason they are locked.
func Build(p session.Principal, t *models.Tenant, ent *entitlement.Entitlements) []Item {
	items := make([]Item, 0, len(Routes))
	for _, r := range Routes {
		if !r.AppliesTo(t.TenantType) {
			continue
		}
		items = append(items, evaluate(r, p, t, ent))
	}
	return items
}

// MustRoute returns the route registered for path and panics otherwise. It
// is used when wiring handlers so a typo fails at startup.
func MustRoute(path string) Route {
	for _, r := range Routes {
		if r.Path == path {
			return r
		}
	}
	panic("navigation: no route for " + path)
}

// Match finds the route for an admin path. The dashboard matches only the
// admin root; unknown paths return false.
func Match(path string) (Route, bool) {
	path = strings.TrimSuffix(path, "/")
	var best Route
	found := false
	for _, r := range Routes {
		if path == r.Path || (r.Path != adminRoot && strings.HasPrefix(path, r.Path+"/")) {
			if !found || len(r.Path) > len(best.Path) {
				best = r
				found = true
			}
		}
	}
	return best, found
}

// Check evaluates one path. Paths with no route are denied.
func Check(p session.Principal, t *models.Tenant, ent *entitlement.Entitlements, path string) Item {
	r, ok := Match(path)
	if !ok || !r.AppliesTo(t.TenantType) {
		return Item{
			Path:       path,
			LockReason: LockPermissionDenied,
			Tooltip:    LockPermissionDenied.Tooltip(),
		}
	}
	item := evaluate(r, p, t, ent)
	item.Path = path
	return item
}

func evaluate(r Route, p session.Principal, t *models.Tenant, ent *entitlement.Entitlements) Item {
	item := Item{Menu: r.Menu, Path: r.Path, Label: r.Label, Enabled: true}

	reason := LockNone
	switch {
	case r.OwnerOnly && t.IsChild():
		reason = LockManagedByParent
	case !session.HasMenuAccess(p, r.Menu):
		reason = LockPermissionDenied
	case r.Feature != "" && !ent.HasFeature(r.Feature):
		reason = LockUpgradeRequired
	}

	if reason != LockNone {
		item.Enabled = false
		item.LockReason = reason
		item.Tooltip = reason.Tooltip()
	}
	return item
}
