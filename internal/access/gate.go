// Package access decides who may read and write member notes.
package access

import "github.com/foxseedlab/bonfire/internal/config"

// RoleCatalog names the roles that carry note privileges.
type RoleCatalog struct {
	ElevatedModerator string
	SecondTier        string
	TopAdmins         []string
}

func CatalogFromConfig(cfg *config.Config) RoleCatalog {
	return RoleCatalog{
		ElevatedModerator: cfg.RoleElevatedModerator,
		SecondTier:        cfg.RoleSecondTier,
		TopAdmins:         append([]string(nil), cfg.RoleTopAdmins...),
	}
}

// RoleSet is the set of roles an actor holds.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		if r != "" {
			s[r] = struct{}{}
		}
	}
	return s
}

func (s RoleSet) Has(role string) bool {
	if role == "" {
		return false
	}
	_, ok := s[role]
	return ok
}

type Gate struct {
	catalog RoleCatalog
}

func NewGate(catalog RoleCatalog) *Gate {
	return &Gate{catalog: catalog}
}

func (g *Gate) isTopAdmin(roles RoleSet) bool {
	for _, r := range g.catalog.TopAdmins {
		if roles.Has(r) {
			return true
		}
	}
	return false
}

// CanView reports whether roles may read the notes feed and whether note
// authors are shown to them.
func (g *Gate) CanView(roles RoleSet) (hasAccess, mayDeanonymize bool) {
	moderator := roles.Has(g.catalog.ElevatedModerator)
	switch {
	case g.isTopAdmin(roles):
		return true, true
	case moderator && roles.Has(g.catalog.SecondTier):
		return true, true
	case moderator:
		return true, false
	default:
		return false, false
	}
}

func (g *Gate) CanWriteNotes(roles RoleSet) bool {
	return roles.Has(g.catalog.ElevatedModerator)
}

func (g *Gate) CanRequestDashboardLink(roles RoleSet) bool {
	return roles.Has(g.catalog.SecondTier) || g.isTopAdmin(roles)
}
