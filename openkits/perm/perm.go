// Package perm resolves the permission nodes of players from the roles they hold.
package perm

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Wildcard grants every node.
const Wildcard = "*"

// Set is an immutable set of permission nodes. A node ending in ".*" grants every node below it, and a
// node prefixed with "-" denies a node that would otherwise be granted.
type Set struct {
	grant map[string]struct{}
	deny  map[string]struct{}
}

// NewSet returns a Set holding the nodes passed.
func NewSet(nodes ...string) Set {
	s := Set{grant: make(map[string]struct{}), deny: make(map[string]struct{})}
	for _, n := range nodes {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if deny, ok := strings.CutPrefix(n, "-"); ok {
			s.deny[deny] = struct{}{}
			continue
		}
		s.grant[n] = struct{}{}
	}
	return s
}

// Has reports whether the node is granted. Denials win over grants.
func (s Set) Has(node string) bool {
	node = strings.ToLower(strings.TrimSpace(node))
	if node == "" {
		return true
	}
	if match(s.deny, node) {
		return false
	}
	return match(s.grant, node)
}

// match reports whether node or one of its wildcard parents is in nodes.
func match(nodes map[string]struct{}, node string) bool {
	if len(nodes) == 0 {
		return false
	}
	if _, ok := nodes[Wildcard]; ok {
		return true
	}
	if _, ok := nodes[node]; ok {
		return true
	}
	for i := strings.LastIndexByte(node, '.'); i > 0; i = strings.LastIndexByte(node[:i], '.') {
		if _, ok := nodes[node[:i]+".*"]; ok {
			return true
		}
	}
	return false
}

// Union returns a Set holding the nodes of both sets.
func (s Set) Union(o Set) Set {
	return NewSet(append(s.Nodes(), o.Nodes()...)...)
}

// Nodes returns the nodes of the set, sorted, with denials prefixed by "-".
func (s Set) Nodes() []string {
	nodes := append(lo.Keys(s.grant), lo.Map(lo.Keys(s.deny), func(n string, _ int) string {
		return "-" + n
	})...)
	slices.Sort(nodes)
	return nodes
}

// Group is a set of permission nodes granted to the players holding a role.
type Group struct {
	Name string
	// RoleID is the identifier of the role returned by the roles service. An empty RoleID never
	// matches a role.
	RoleID      string
	Permissions []string
}

// Groups maps roles to permission groups.
type Groups struct {
	def    Group
	groups []Group
}

// NewGroups returns Groups that grant the default group to every player, on top of the groups whose
// role they hold.
func NewGroups(def Group, groups ...Group) Groups {
	return Groups{def: def, groups: groups}
}

// Default returns the set of the default group.
func (g Groups) Default() Set {
	return NewSet(g.def.Permissions...)
}

// Resolve returns the set granted to a player holding the roles passed, and the names of the groups
// matched, the default group first.
func (g Groups) Resolve(roles []string) (Set, []string) {
	nodes := slices.Clone(g.def.Permissions)
	names := []string{g.def.Name}
	for _, gr := range g.groups {
		if gr.RoleID == "" || !lo.Contains(roles, gr.RoleID) {
			continue
		}
		nodes = append(nodes, gr.Permissions...)
		names = append(names, gr.Name)
	}
	return NewSet(nodes...), names
}
