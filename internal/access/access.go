// Package access maps a user's role and company grants to the set of
// verticals they may query. Resolution is a pure function of the request's
// principal; allowed sets are computed per request and never cached across
// users.
package access

import (
	"sort"
	"strings"

	"balancesheet-rag/internal/models"
)

// Principal is an authenticated user as seen by the core.
type Principal struct {
	Username  string
	Role      models.Role
	Companies []string
}

// Resolver computes allowed vertical sets from the static reference data:
// the vertical reference set and the company -> vertical grants.
type Resolver struct {
	companyVerticals map[string]models.VerticalSet
	reference        models.VerticalSet
}

// NewResolver builds a resolver from configuration. The reference set is
// every configured vertical plus group-wide.
func NewResolver(verticals map[string][]string, companies map[string][]string) *Resolver {
	reference := make(models.VerticalSet, 0, len(verticals)+1)
	for name := range verticals {
		reference = append(reference, models.Vertical(name))
	}
	reference = append(reference, models.VerticalGroupWide)
	sort.Slice(reference, func(i, j int) bool { return reference[i] < reference[j] })

	grants := make(map[string]models.VerticalSet, len(companies))
	for company, vs := range companies {
		set := make(models.VerticalSet, 0, len(vs))
		for _, v := range vs {
			set = append(set, models.Vertical(v))
		}
		grants[strings.ToLower(company)] = set
	}
	return &Resolver{companyVerticals: grants, reference: reference}
}

// Reference returns a copy of the full vertical reference set.
func (r *Resolver) Reference() models.VerticalSet {
	return append(models.VerticalSet(nil), r.reference...)
}

// AllowedVerticals resolves the verticals a principal may query.
// analyst and group_ceo see everything; ceo and top_management see exactly
// the verticals of their granted companies, nothing more, not even
// group-wide content. An empty membership list yields an empty set:
// absence of a grant means no access, never default access.
func (r *Resolver) AllowedVerticals(role models.Role, memberships []string) models.VerticalSet {
	switch role {
	case models.RoleAnalyst, models.RoleGroupCEO:
		return r.Reference()
	case models.RoleCEO, models.RoleTopManagement:
		if len(memberships) == 0 {
			return models.VerticalSet{}
		}
		allowed := models.VerticalSet{}
		for _, company := range memberships {
			for _, v := range r.companyVerticals[strings.ToLower(company)] {
				if !allowed.Contains(v) && r.reference.Contains(v) {
					allowed = append(allowed, v)
				}
			}
		}
		return allowed
	default:
		// Unknown roles fail closed.
		return models.VerticalSet{}
	}
}
