package models

// Vertical is an organizational partition (subsidiary, business unit, or
// group-wide) used as the unit of access control over document content.
// The reference set is static configuration; verticals behave as a flat
// tag set, not a hierarchy.
type Vertical string

// VerticalGroupWide is the fallback vertical for content that matches no
// configured business unit. Only the group-spanning roles (analyst,
// group_ceo) may read it; company-scoped roles are never granted it
// implicitly.
const VerticalGroupWide Vertical = "group-wide"

// VerticalSet is a small unordered collection of verticals with set
// semantics. Chunk vertical sets rarely exceed two or three entries, so a
// slice-backed representation is fine.
type VerticalSet []Vertical

// Contains reports whether v is a member of the set.
func (s VerticalSet) Contains(v Vertical) bool {
	for _, m := range s {
		if m == v {
			return true
		}
	}
	return false
}

// Intersects reports whether the two sets share at least one vertical.
func (s VerticalSet) Intersects(other VerticalSet) bool {
	for _, v := range s {
		if other.Contains(v) {
			return true
		}
	}
	return false
}

// Role is the organizational role driving vertical access.
type Role string

const (
	RoleAnalyst       Role = "analyst"
	RoleCEO           Role = "ceo"
	RoleGroupCEO      Role = "group_ceo"
	RoleTopManagement Role = "top_management"
)
