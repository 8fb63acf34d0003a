package session

import (
	"log/slog"
	"time"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
)

// Explain returns the message shown to a player for an error returned by the engine for a kit. The
// message may use the kit name as %1, the cooldown left as %2 and the cost as %3.
func Explain(err error, def kit.Definition, rec ledger.Record, now time.Time) string {
	return locale.Translate(engine.Message(err), def.DisplayName(), util.FormatClock(rec.Remaining(now)), def.Cost.String())
}

// Deliverer starts kit claims for players, gives them the items of the kits they claimed and tells them
// the outcome of their kit transactions.
type Deliverer struct {
	log *slog.Logger
	eng *engine.Engine
	// drop makes items that do not fit in the inventory drop at the player's feet instead of being lost.
	drop bool
}

// NewDeliverer ...
func NewDeliverer(log *slog.Logger, eng *engine.Engine, drop bool) *Deliverer {
	return &Deliverer{log: log, eng: eng, drop: drop}
}

// Engine ...
func (d *Deliverer) Engine() *engine.Engine {
	return d.eng
}

// Drop reports whether items that do not fit in an inventory are dropped.
func (d *Deliverer) Drop() bool {
	return d.drop
}

// Claim starts a claim of a kit for the player of the session. If the claim cannot start, false is
// returned with the reason as a message for the player.
func (d *Deliverer) Claim(s *Session, kitID string) (string, bool) {
	err := d.eng.Claim(s, kitID, d.Notify(s))
	if err == nil {
		return "", true
	}
	def, kerr := d.eng.Kit(kitID)
	if kerr != nil {
		def = kit.Definition{ID: kitID}
	}
	return Explain(err, def, d.eng.Snapshot(s.id, kitID), time.Now()), false
}

// FirstJoin grants the first join kit to the player of the session once their kit records are loaded.
func (d *Deliverer) FirstJoin(s *Session) {
	d.eng.OnPlayerJoin(s, d.Notify(s))
}

// Notify returns the callback passed to the engine for transactions started by the player of the
// session.
func (d *Deliverer) Notify(s *Session) func(engine.Outcome) {
	return func(out engine.Outcome) {
		// The engine calls back inside a world transaction and ExecWorld waits for one of its own.
		go d.deliver(s, out)
	}
}

// deliver gives the items of a claimed kit to the player and sends them the outcome.
func (d *Deliverer) deliver(s *Session, out engine.Outcome) {
	if out.Err != nil {
		msg := Explain(out.Err, out.Kit, out.Record, time.Now())
		s.handle.ExecWorld(func(_ *world.Tx, e world.Entity) {
			if p, ok := e.(*player.Player); ok {
				p.Message(msg)
			}
		})
		return
	}
	if out.Action != engine.ActionClaim && out.Action != engine.ActionFirstJoin {
		return
	}

	stacks, err := kit.Stacks(out.Kit)
	if err != nil {
		// Catalogs are checked on load, so this only happens if an item was removed since.
		d.log.Error("failed to resolve kit items", "player", s.name, "kit", out.Kit.ID, "tx", out.TxID, "error", err)
		return
	}
	s.handle.ExecWorld(func(tx *world.Tx, e world.Entity) {
		p, ok := e.(*player.Player)
		if !ok {
			return
		}
		overflow := kit.Give(p, tx, stacks, d.drop)
		switch {
		case out.Action == engine.ActionFirstJoin:
			p.Message(locale.Translate("kit.first_join", out.Kit.DisplayName()))
		case out.Kit.Free():
			p.Message(locale.Translate("kit.claimed", out.Kit.DisplayName()))
		default:
			p.Message(locale.Translate("kit.purchased", out.Kit.DisplayName(), out.Kit.Cost.String()))
		}
		if len(overflow) > 0 {
			p.Message(locale.Translate("kit.inventory_full", len(overflow)))
			d.log.Warn("kit items did not fit in inventory", "player", s.name, "kit", out.Kit.ID, "lost", len(overflow))
		}
	})
}
