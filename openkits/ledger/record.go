// Package ledger holds the in-memory claim state of every online player.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotAvailable is returned when a kit is still on cooldown.
	ErrNotAvailable = errors.New("kit is on cooldown")
	// ErrNotUnlocked is returned when a kit requires an unlock the player does not have.
	ErrNotUnlocked = errors.New("kit is not unlocked")
	// ErrUsesExceeded is returned when the player has claimed a kit the maximum number of times.
	ErrUsesExceeded = errors.New("kit use limit reached")
)

// Key identifies the claim state of a single player for a single kit.
type Key struct {
	Player uuid.UUID
	Kit    string
}

// Record is the claim state of a player for one kit. Records are values: a Record returned by the
// Ledger is a snapshot and changing it has no effect until it is applied again.
type Record struct {
	Player uuid.UUID
	Kit    string

	// NextAvailableAt is the earliest instant the kit may be claimed again. The zero time means the
	// kit was never claimed.
	NextAvailableAt time.Time
	TimesClaimed    int
	Unlocked        bool

	// Version increases with every durable write of the record.
	Version int64
}

// NewRecord returns the default record of a player that never interacted with a kit.
func NewRecord(k Key) Record {
	return Record{Player: k.Player, Kit: k.Kit}
}

// Key ...
func (r Record) Key() Key {
	return Key{Player: r.Player, Kit: r.Kit}
}

// Claimed reports whether the kit was ever claimed.
func (r Record) Claimed() bool {
	return r.TimesClaimed > 0 || !r.NextAvailableAt.IsZero()
}

// Rules are the kit properties that decide availability.
type Rules struct {
	RequiresUnlock bool
	// MaxUses caps the number of claims per player. Zero means no cap.
	MaxUses int
}

// Check returns nil if the record allows a claim at the given instant, or the first reason it does not.
func (r Record) Check(rules Rules, now time.Time) error {
	if now.Before(r.NextAvailableAt) {
		return ErrNotAvailable
	}
	if rules.RequiresUnlock && !r.Unlocked {
		return ErrNotUnlocked
	}
	if rules.MaxUses > 0 && r.TimesClaimed >= rules.MaxUses {
		return ErrUsesExceeded
	}
	return nil
}

// Remaining returns the cooldown left at the given instant, or zero if the kit is off cooldown.
func (r Record) Remaining(now time.Time) time.Duration {
	if d := r.NextAvailableAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Millis returns the instant as Unix milliseconds, the precision records are stored with. The zero
// time maps to zero.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Instant truncates t to the precision records are stored with, so that a record read back from
// storage compares equal to the one written.
func Instant(t time.Time) time.Time {
	return FromMillis(Millis(t))
}
