// Package form provides the kit menus shown to players.
package form

import (
	"errors"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
)

// PreviewPermission is the node needed to preview the items of a kit.
const PreviewPermission = "openkits.commands.kit.preview"

// sessionHandler is implemented by the handlers of players that have a session.
type sessionHandler interface {
	Session() *session.Session
}

// sessionOf returns the session of a player.
func sessionOf(p *player.Player) (*session.Session, bool) {
	h, ok := p.Handler().(sessionHandler)
	if !ok {
		return nil, false
	}
	return h.Session(), true
}

// Status returns a short description of whether the player of the session can claim the kit now.
func Status(eng *engine.Engine, s *session.Session, def kit.Definition) string {
	if def.Permission != "" && !s.HasPermission(def.Permission) {
		return locale.Translate("kit.status.no_permission")
	}
	err := eng.Status(s.UUID(), def)
	switch {
	case err == nil && def.Free():
		return locale.Translate("kit.status.free")
	case err == nil:
		return locale.Translate("kit.status.paid", def.Cost.String())
	case errors.Is(err, ledger.ErrNotAvailable):
		return locale.Translate("kit.status.cooldown", util.FormatClock(eng.Remaining(s.UUID(), def.ID)))
	case errors.Is(err, ledger.ErrNotUnlocked):
		return locale.Translate("kit.status.locked")
	case errors.Is(err, ledger.ErrUsesExceeded):
		return locale.Translate("kit.status.used")
	case errors.Is(err, engine.ErrKitDisabled):
		return locale.Translate("kit.status.disabled")
	default:
		return locale.Translate("kit.status.blocked")
	}
}

// claim starts a claim of a kit for the player, telling them if it cannot start.
func claim(d *session.Deliverer, p *player.Player, s *session.Session, def kit.Definition) {
	if msg, ok := d.Claim(s, def.ID); !ok {
		p.Message(msg)
	}
}

// describe returns the details of a kit shown in its menu.
func describe(def kit.Definition) string {
	cost := locale.Translate("kit.info.free")
	if !def.Free() {
		cost = def.Cost.String()
	}
	uses := locale.Translate("kit.info.unlimited")
	if def.MaxUses > 0 {
		uses = locale.Translate("kit.info.max_uses", def.MaxUses)
	}
	return locale.Translate("kit.info.body",
		def.DisplayName(),
		def.Description,
		cost,
		util.FormatClock(def.Cooldown),
		uses,
	)
}
