// Package placeholder exposes the kit state of players as placeholders other tools can template with.
package placeholder

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
)

// Fields that can be resolved for a player and a kit.
const (
	FieldCooldownRemaining = "cooldown_remaining"
	FieldTimesClaimed      = "times_claimed"
	FieldUnlocked          = "unlocked"
)

var (
	// ErrUnknownField is returned for fields that do not exist.
	ErrUnknownField = errors.New("unknown placeholder field")
	// ErrNotLoaded is returned for players whose kit records are not loaded.
	ErrNotLoaded = errors.New("player kit records not loaded")
)

// token matches "%openkits_<kit>_<field>%". Kit identifiers may contain underscores, so the field is
// matched first from the end.
var token = regexp.MustCompile(`%openkits_([A-Za-z0-9_\-]+?)_(` + FieldCooldownRemaining + `|` + FieldTimesClaimed + `|` + FieldUnlocked + `)%`)

// Source is the kit state placeholders are resolved from. It is satisfied by *engine.Engine.
type Source interface {
	Kit(id string) (kit.Definition, error)
	Snapshot(player uuid.UUID, kitID string) ledger.Record
	Remaining(player uuid.UUID, kitID string) time.Duration
	Loaded(player uuid.UUID) bool
}

// Resolver resolves placeholders. It only reads the ledger and is safe to use from any goroutine.
type Resolver struct {
	src Source
}

// NewResolver ...
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve returns the value of a field for a player and a kit.
func (r *Resolver) Resolve(player uuid.UUID, kitID, field string) (string, error) {
	def, err := r.src.Kit(kitID)
	if err != nil {
		return "", err
	}
	if !r.src.Loaded(player) {
		return "", ErrNotLoaded
	}
	switch strings.ToLower(field) {
	case FieldCooldownRemaining:
		return util.FormatClock(r.src.Remaining(player, def.ID)), nil
	case FieldTimesClaimed:
		return strconv.Itoa(r.src.Snapshot(player, def.ID).TimesClaimed), nil
	case FieldUnlocked:
		rec := r.src.Snapshot(player, def.ID)
		return strconv.FormatBool(rec.Unlocked || !def.RequiresUnlock), nil
	default:
		return "", ErrUnknownField
	}
}

// Expand replaces every "%openkits_<kit>_<field>%" token in text with its value for the player. Tokens
// that cannot be resolved are left as they are.
func (r *Resolver) Expand(player uuid.UUID, text string) string {
	return token.ReplaceAllStringFunc(text, func(tok string) string {
		m := token.FindStringSubmatch(tok)
		v, err := r.Resolve(player, m[1], m[2])
		if err != nil {
			return tok
		}
		return v
	})
}
