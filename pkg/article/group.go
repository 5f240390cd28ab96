// Package article groups resource identifiers into logical articles and
// resolves which member serves as canonical full text.
package article

import (
	"sort"

	"github.com/eunmann/aspect-iter/pkg/aspect"
)

// Group is the set of resources recognised as one logical article.
// Once emitted by an Engine it is owned by the caller and no longer mutated.
type Group struct {
	// Key is the canonical key shared by every member.
	Key string
	// Members maps each role to the resource that fills it.
	Members map[aspect.Role]string
	// Resources lists every distinct member identifier in stream order.
	Resources []string
	// FullText is the resolved canonical full-text resource, "" if none.
	FullText string
	// Metadata is the resource to extract bibliographic metadata from, "" if none.
	Metadata string

	derived map[aspect.Role][]aspect.Role
	seen    map[string]struct{}
}

func newGroup(key string, derived map[aspect.Role][]aspect.Role) *Group {
	return &Group{
		Key:     key,
		Members: make(map[aspect.Role]string),
		derived: derived,
		seen:    make(map[string]struct{}),
	}
}

// Role returns the resource filling role. A role with no direct member falls
// back to the first of its derived candidate roles that is present.
func (g *Group) Role(role aspect.Role) (string, bool) {
	if id, ok := g.Members[role]; ok {
		return id, true
	}
	for _, alt := range g.derived[role] {
		if id, ok := g.Members[alt]; ok {
			return id, true
		}
	}
	return "", false
}

// HasFullText reports whether a canonical full-text member was resolved.
func (g *Group) HasFullText() bool {
	return g.FullText != ""
}

// Roles returns the directly populated roles, sorted.
func (g *Group) Roles() []aspect.Role {
	roles := make([]aspect.Role, 0, len(g.Members))
	for r := range g.Members {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func (g *Group) addResource(id string) {
	if _, ok := g.seen[id]; ok {
		return
	}
	g.seen[id] = struct{}{}
	g.Resources = append(g.Resources, id)
}

// Resolve returns the member of the first role in priority that is present.
// ok is false when the group has no member for any priority role; such a
// group is still a valid record but must not be treated as full text.
func Resolve(g *Group, priority []aspect.Role) (id string, ok bool) {
	for _, role := range priority {
		if id, ok := g.Role(role); ok {
			return id, true
		}
	}
	return "", false
}
