package command

import (
	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
)

// Reset resets the cooldown, uses and unlock of a kit for a player, or of all kits if none is given.
type Reset struct {
	Sub    cmd.SubCommand        `cmd:"reset"`
	Player string                `name:"player"`
	Kit    cmd.Optional[kitName] `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (r Reset) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	id, name, ok := r.deps.target(r.Player)
	if !ok {
		o.Error(locale.Translate("command.player_not_found", r.Player))
		return
	}
	k, _ := r.Kit.Load()
	success := "kit.admin.reset"
	if k == "" {
		success = "kit.admin.reset_all"
	}
	if err := r.deps.Deliverer.Engine().Reset(id, string(k), r.deps.reply(src, name, success)); err != nil {
		o.Error(locale.Translate(engine.Message(err), string(k), name))
		return
	}
	r.deps.Log.Info("Resetting kit records", "player", name, "kit", string(k), "source", sourceName(src))
}

// Unlock unlocks a kit that requires an unlock for a player.
type Unlock struct {
	Sub    cmd.SubCommand `cmd:"unlock"`
	Player string         `name:"player"`
	Kit    kitName        `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (u Unlock) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	id, name, ok := u.deps.target(u.Player)
	if !ok {
		o.Error(locale.Translate("command.player_not_found", u.Player))
		return
	}
	if err := u.deps.Deliverer.Engine().Unlock(id, string(u.Kit), u.deps.reply(src, name, "kit.admin.unlocked")); err != nil {
		o.Error(locale.Translate(engine.Message(err), string(u.Kit), name))
	}
}

// Lock revokes the unlock of a kit for a player.
type Lock struct {
	Sub    cmd.SubCommand `cmd:"lock"`
	Player string         `name:"player"`
	Kit    kitName        `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (l Lock) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	id, name, ok := l.deps.target(l.Player)
	if !ok {
		o.Error(locale.Translate("command.player_not_found", l.Player))
		return
	}
	if err := l.deps.Deliverer.Engine().Lock(id, string(l.Kit), l.deps.reply(src, name, "kit.admin.locked")); err != nil {
		o.Error(locale.Translate(engine.Message(err), string(l.Kit), name))
	}
}

// Reload reads the kit configuration again and replaces the catalog.
type Reload struct {
	Sub cmd.SubCommand `cmd:"reload"`

	deps Deps
	permAllower
}

// Run ...
func (r Reload) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	c, err := r.deps.Load()
	if err != nil {
		r.deps.Log.Error("failed to reload kit catalog", "source", sourceName(src), "error", err)
		o.Error(locale.Translate("kit.reload.failed", err))
		return
	}
	if err = kit.Resolve(c); err != nil {
		r.deps.Log.Error("failed to resolve reloaded kit items", "source", sourceName(src), "error", err)
		o.Error(locale.Translate("kit.reload.failed", err))
		return
	}
	// Swapping runs on the world loop this command runs on, so it is not waited for.
	r.deps.Deliverer.Engine().Reload(c)
	o.Print(locale.Translate("kit.reload.success", c.Len()))
}

// Reconcile lists the kit charges that could not be refunded, or clears those of a player once they
// were settled.
type Reconcile struct {
	Sub    cmd.SubCommand       `cmd:"reconcile"`
	Player cmd.Optional[string] `name:"player"`

	deps Deps
	permAllower
}

// Run ...
func (r Reconcile) Run(_ cmd.Source, o *cmd.Output, _ *world.Tx) {
	eng := r.deps.Deliverer.Engine()
	target, ok := r.Player.Load()
	if !ok {
		pending := eng.Reconciliations(uuid.Nil)
		if len(pending) == 0 {
			o.Print(locale.Translate("kit.reconcile.none"))
			return
		}
		o.Print(locale.Translate("kit.reconcile.title", len(pending)))
		for _, rec := range pending {
			o.Print(locale.Translate("kit.reconcile.line", rec.Name, rec.Kit, rec.Amount.String(), rec.TxID, rec.At.Format("2006-01-02 15:04:05"), rec.Player))
		}
		return
	}

	id, name, ok := r.deps.target(target)
	if !ok {
		o.Error(locale.Translate("command.player_not_found", target))
		return
	}
	n := eng.ClearReconciliation(id)
	if n == 0 {
		o.Print(locale.Translate("kit.reconcile.none_for", name))
		return
	}
	o.Print(locale.Translate("kit.reconcile.cleared", n, name))
}
