package session

import (
	"strings"
	"sync"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
)

// Session is an online player as seen by the kit engine. Its methods may be called from any goroutine.
type Session struct {
	id   uuid.UUID
	name string
	xuid string

	handle *world.EntityHandle
	perms  *Permissions
}

// New returns the Session of a player.
func New(p *player.Player, perms *Permissions) *Session {
	return &Session{id: p.UUID(), name: p.Name(), xuid: p.XUID(), handle: p.H(), perms: perms}
}

// UUID ...
func (s *Session) UUID() uuid.UUID {
	return s.id
}

// Name ...
func (s *Session) Name() string {
	return s.name
}

// XUID ...
func (s *Session) XUID() string {
	return s.xuid
}

// HasPermission ...
func (s *Session) HasPermission(node string) bool {
	return s.perms.Has(node)
}

// Permissions ...
func (s *Session) Permissions() *Permissions {
	return s.perms
}

// Handle returns the entity handle of the player.
func (s *Session) Handle() *world.EntityHandle {
	return s.handle
}

// Registry holds the sessions of online players.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Session
	byName map[string]*Session
}

// NewRegistry ...
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uuid.UUID]*Session), byName: make(map[string]*Session)}
}

// Add registers a session, replacing any session of the same player.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[s.id]; ok {
		delete(r.byName, strings.ToLower(old.name))
	}
	r.byID[s.id] = s
	r.byName[strings.ToLower(s.name)] = s
}

// Remove removes the session of a player.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		delete(r.byID, id)
		delete(r.byName, strings.ToLower(s.name))
	}
}

// ByID ...
func (r *Registry) ByID(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// ByName returns the session of the player with the name passed, ignoring case.
func (r *Registry) ByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[strings.ToLower(name)]
	return s, ok
}

// Lookup returns the session of a player by UUID or by name.
func (r *Registry) Lookup(player string) (*Session, bool) {
	if id, err := uuid.Parse(player); err == nil {
		return r.ByID(id)
	}
	return r.ByName(player)
}

// Len ...
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
