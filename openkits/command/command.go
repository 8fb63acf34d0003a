// Package command provides the kit commands.
package command

import (
	"log/slog"

	"github.com/df-mc/atomic"
	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/google/uuid"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
)

// Permission nodes of the commands.
const (
	PermissionKit       = "openkits.commands.kit"
	PermissionList      = "openkits.commands.kit.list"
	PermissionInfo      = "openkits.commands.kit.info"
	PermissionGUI       = "openkits.commands.kit.gui"
	PermissionGive      = "openkits.commands.kit.give"
	PermissionReset     = "openkits.commands.kit.reset"
	PermissionUnlock    = "openkits.commands.kit.unlock"
	PermissionReload    = "openkits.commands.kit.reload"
	PermissionReconcile = "openkits.commands.kit.reconcile"
	PermissionKits      = "openkits.commands.kits"
)

// Deps are the services the commands run against.
type Deps struct {
	Log       *slog.Logger
	Deliverer *session.Deliverer
	Sessions  *session.Registry
	// Load reads the kit catalog from configuration again.
	Load func() (*kit.Catalog, error)
}

// kits holds the catalog the kit enum lists options from.
var kits atomic.Value[func() *kit.Catalog]

// Register registers the kit commands.
func Register(d Deps) {
	eng := d.Deliverer.Engine()
	kits.Store(eng.Kits)

	cmd.Register(cmd.New("kit", "Claim and manage kits", nil,
		Claim{deps: d, permAllower: permAllower{node: PermissionKit, players: true}},
		List{deps: d, permAllower: permAllower{node: PermissionList, players: true}},
		Info{deps: d, permAllower: permAllower{node: PermissionInfo, players: true}},
		GUI{deps: d, permAllower: permAllower{node: PermissionGUI, players: true}},
		Give{deps: d, permAllower: permAllower{node: PermissionGive}},
		Reset{deps: d, permAllower: permAllower{node: PermissionReset}},
		Unlock{deps: d, permAllower: permAllower{node: PermissionUnlock}},
		Lock{deps: d, permAllower: permAllower{node: PermissionUnlock}},
		Reload{deps: d, permAllower: permAllower{node: PermissionReload}},
		Reconcile{deps: d, permAllower: permAllower{node: PermissionReconcile}},
		ClaimNamed{deps: d, permAllower: permAllower{node: PermissionKit, players: true}},
	))
	cmd.Register(cmd.New("kits", "Lists the kits you can claim", nil,
		Kits{deps: d, permAllower: permAllower{node: PermissionKits, players: true}},
	))
}

// sessionHandler is implemented by the handlers of players that have a session.
type sessionHandler interface {
	Session() *session.Session
}

// sessionOf returns the session of the player running a command.
func sessionOf(src cmd.Source) (*player.Player, *session.Session, bool) {
	p, ok := src.(*player.Player)
	if !ok {
		return nil, nil, false
	}
	h, ok := p.Handler().(sessionHandler)
	if !ok {
		return nil, nil, false
	}
	return p, h.Session(), true
}

// permAllower allows sources with a permission node. Sources that are not players, such as the
// console, are allowed unless players is set.
type permAllower struct {
	node    string
	players bool
}

// Allow ...
func (a permAllower) Allow(src cmd.Source) bool {
	p, ok := src.(*player.Player)
	if !ok {
		return !a.players
	}
	h, ok := p.Handler().(sessionHandler)
	if !ok {
		return false
	}
	return h.Session().HasPermission(a.node)
}

// kitName is a kit identifier, completed from the current catalog.
type kitName string

// Type ...
func (kitName) Type() string {
	return "kit"
}

// Options ...
func (kitName) Options(cmd.Source) []string {
	catalog := kits.Load()
	if catalog == nil {
		return nil
	}
	return catalog().IDs()
}

// target resolves a player given by name, if online, or by UUID.
func (d Deps) target(name string) (uuid.UUID, string, bool) {
	if s, ok := d.Sessions.Lookup(name); ok {
		return s.UUID(), s.Name(), true
	}
	if id, err := uuid.Parse(name); err == nil {
		return id, id.String(), true
	}
	return uuid.Nil, "", false
}

// reply returns an engine callback telling the source of a command the outcome of an admin
// transaction. Players are messaged and other sources get the outcome logged.
func (d Deps) reply(src cmd.Source, target string, success string) func(engine.Outcome) {
	var handle *world.EntityHandle
	if p, ok := src.(*player.Player); ok {
		handle = p.H()
	}
	return func(out engine.Outcome) {
		msg := locale.Translate(success, out.Kit.DisplayName(), target)
		if out.Err != nil {
			msg = locale.Translate("kit.admin.failed", out.Action, target, out.Err)
		}
		if handle == nil {
			d.Log.Info("Kit command finished", "action", out.Action, "player", target, "kit", out.Kit.ID, "error", out.Err)
			return
		}
		go handle.ExecWorld(func(_ *world.Tx, e world.Entity) {
			if p, ok := e.(*player.Player); ok {
				p.Message(msg)
			}
		})
	}
}
