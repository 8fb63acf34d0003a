// Package session holds the state of online players: their permissions and the claimant the kit engine
// sees for them.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/df-mc/atomic"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/perm"
)

// Permissions holds the permission nodes of a player and the groups they were resolved from.
type Permissions struct {
	mu     sync.Mutex
	set    perm.Set
	groups []string

	lastFetch atomic.Value[time.Time]
}

// NewPermissions returns Permissions holding the set passed until the roles of the player are loaded.
func NewPermissions(initial perm.Set, groups ...string) *Permissions {
	p := &Permissions{set: initial, groups: groups}
	p.lastFetch.Store(time.Time{})
	return p
}

// Has reports whether the node is granted.
func (p *Permissions) Has(node string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.set.Has(node)
}

// Set replaces the nodes and groups of the player.
func (p *Permissions) Set(set perm.Set, groups []string) {
	p.mu.Lock()
	p.set, p.groups = set, groups
	p.mu.Unlock()
}

// Groups returns a copy of the names of the groups of the player.
func (p *Permissions) Groups() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.groups)
}

// LastFetch returns the last time the roles of the player were fetched.
func (p *Permissions) LastFetch() time.Time {
	return p.lastFetch.Load()
}

// SetLastFetch ...
func (p *Permissions) SetLastFetch(t time.Time) {
	p.lastFetch.Store(t)
}
