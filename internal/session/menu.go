package session

import "strings"

// MenuCode identifies an admin menu entry. The set is closed.
type MenuCode string

const (
	MenuDashboard    MenuCode = "DASHBOARD"
	MenuIdeas        MenuCode = "IDEAS"
	MenuIncidents    MenuCode = "INCIDENTS"
	MenuEvents       MenuCode = "EVENTS"
	MenuAssociations MenuCode = "ASSOCIATIONS"
	MenuElus         MenuCode = "ELUS"
	MenuDomains      MenuCode = "DOMAINS"
	MenuPhotos       MenuCode = "PHOTOS"
	MenuAdmins       MenuCode = "ADMINS"
	MenuShare        MenuCode = "SHARE"
	MenuSettings     MenuCode = "SETTINGS"
	MenuBilling      MenuCode = "BILLING"
)

var AllMenuCodes = []MenuCode{
	MenuDashboard, MenuIdeas, MenuIncidents, MenuEvents, MenuAssociations, MenuElus,
	MenuDomains, MenuPhotos, MenuAdmins, MenuShare, MenuSettings, MenuBilling,
}

func (c MenuCode) Valid() bool {
	for _, known := range AllMenuCodes {
		if c == known {
			return true
		}
	}
	return false
}

// ParseMenuCode accepts codes case-insensitively.
func ParseMenuCode(raw string) (MenuCode, bool) {
	c := MenuCode(strings.ToUpper(strings.TrimSpace(raw)))
	return c, c.Valid()
}

// ParseMenuCodes validates a permission list and drops duplicates.
func ParseMenuCodes(raw []string) ([]MenuCode, []string) {
	seen := make(map[MenuCode]bool, len(raw))
	codes := make([]MenuCode, 0, len(raw))
	var invalid []string
	for _, r := range raw {
		c, ok := ParseMenuCode(r)
		if !ok {
			invalid = append(invalid, r)
			continue
		}
		if !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	return codes, invalid
}
