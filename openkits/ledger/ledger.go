package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Ledger is the authoritative cache of claim records. Mutating methods are meant to be called from the
// host event loop only; reads may happen from any goroutine.
type Ledger struct {
	mu      sync.RWMutex
	records map[Key]Record
	players map[uuid.UUID]*playerState
}

// playerState tracks whether a player's records were loaded and when they left.
type playerState struct {
	loaded bool
	left   time.Time
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		records: make(map[Key]Record),
		players: make(map[uuid.UUID]*playerState),
	}
}

// Get returns the record stored for the player and kit, or a default record if there is none.
func (l *Ledger) Get(player uuid.UUID, kit string) Record {
	k := Key{Player: player, Kit: kit}
	l.mu.RLock()
	r, ok := l.records[k]
	l.mu.RUnlock()
	if !ok {
		return NewRecord(k)
	}
	return r
}

// Has reports whether a record is stored for the key.
func (l *Ledger) Has(k Key) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.records[k]
	return ok
}

// IsAvailable reports if the player may claim the kit at the given instant.
func (l *Ledger) IsAvailable(player uuid.UUID, kit string, rules Rules, now time.Time) bool {
	return l.Check(player, kit, rules, now) == nil
}

// Check returns the reason the player may not claim the kit at the given instant, or nil.
func (l *Ledger) Check(player uuid.UUID, kit string, rules Rules, now time.Time) error {
	return l.Get(player, kit).Check(rules, now)
}

// Remaining returns the cooldown the player has left on a kit.
func (l *Ledger) Remaining(player uuid.UUID, kit string, now time.Time) time.Duration {
	return l.Get(player, kit).Remaining(now)
}

// Apply replaces the record stored for the record's key. It must only be called with records that were
// durably written.
func (l *Ledger) Apply(r Record) {
	l.mu.Lock()
	l.records[r.Key()] = r
	l.mu.Unlock()
}

// Remove deletes the records for the given keys.
func (l *Ledger) Remove(keys ...Key) {
	l.mu.Lock()
	for _, k := range keys {
		delete(l.records, k)
	}
	l.mu.Unlock()
}

// Warm stores records loaded from durable storage for a player and marks the player as loaded. Records
// already present in the Ledger take precedence over loaded ones.
func (l *Ledger) Warm(player uuid.UUID, records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		if r.Player != player {
			continue
		}
		if _, ok := l.records[r.Key()]; !ok {
			l.records[r.Key()] = r
		}
	}
	l.state(player).loaded = true
}

// Loaded reports whether the player's records were loaded from durable storage.
func (l *Ledger) Loaded(player uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.players[player]
	return ok && s.loaded
}

// Records returns the records stored for a player.
func (l *Ledger) Records(player uuid.UUID) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.Filter(lo.Values(l.records), func(r Record, _ int) bool {
		return r.Player == player
	})
}

// MarkLeft records that the player left at the given instant, making them eligible for eviction.
func (l *Ledger) MarkLeft(player uuid.UUID, at time.Time) {
	l.mu.Lock()
	l.state(player).left = at
	l.mu.Unlock()
}

// Unmark clears the left marker of a player that joined again.
func (l *Ledger) Unmark(player uuid.UUID) {
	l.mu.Lock()
	if s, ok := l.players[player]; ok {
		s.left = time.Time{}
	}
	l.mu.Unlock()
}

// EvictLeft removes every player that left before the cutoff, along with their records. Players for
// which skip returns true are kept. The evicted players are returned.
func (l *Ledger) EvictLeft(before time.Time, skip func(uuid.UUID) bool) []uuid.UUID {
	l.mu.Lock()
	defer l.mu.Unlock()

	var evicted []uuid.UUID
	for id, s := range l.players {
		if s.left.IsZero() || !s.left.Before(before) {
			continue
		}
		if skip != nil && skip(id) {
			continue
		}
		evicted = append(evicted, id)
		delete(l.players, id)
	}
	if len(evicted) == 0 {
		return nil
	}
	for k := range l.records {
		if lo.Contains(evicted, k.Player) {
			delete(l.records, k)
		}
	}
	return evicted
}

// Len returns the number of records held.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// state returns the state of a player, creating it if needed. The caller must hold the write lock.
func (l *Ledger) state(player uuid.UUID) *playerState {
	s, ok := l.players[player]
	if !ok {
		s = &playerState{}
		l.players[player] = s
	}
	return s
}
