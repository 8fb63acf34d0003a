package handler

import (
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/form"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
)

// Services are what player handlers need from the server.
type Services struct {
	Deliverer *session.Deliverer
	Sessions  *session.Registry
	Loader    *session.Loader
	// MenuItem places the item opening the kit menu in the hotbar of joining players.
	MenuItem bool
}

// PlayerHandler ...
type PlayerHandler struct {
	player.NopHandler

	svc  Services
	sess *session.Session
}

// NewPlayerHandler creates the handler of a player who just joined, registers their session and
// starts loading their permissions and kit records.
func NewPlayerHandler(p *player.Player, svc Services) *PlayerHandler {
	perms := session.NewPermissions(svc.Loader.Groups().Default())
	h := &PlayerHandler{svc: svc, sess: session.New(p, perms)}

	svc.Sessions.Add(h.sess)
	svc.Loader.Queue(p.XUID(), perms, p.H())
	svc.Deliverer.FirstJoin(h.sess)
	return h
}

// Session ...
func (h *PlayerHandler) Session() *session.Session {
	return h.sess
}

// HandleJoin sets the player up once they were spawned in the world.
func (h *PlayerHandler) HandleJoin(p *player.Player) {
	p.Inventory().Handle(InventoryHandler{})
	if h.svc.MenuItem {
		kit.GiveMenuItem(p)
	}
}

// HandleItemUse ...
func (h *PlayerHandler) HandleItemUse(ctx *player.Context) {
	p := ctx.Val()
	it, _ := p.HeldItems()
	if !kit.IsMenuItem(it) {
		return
	}
	ctx.Cancel()
	p.SendForm(form.NewKits(h.svc.Deliverer, h.sess, 0))
}

// HandleItemDrop ...
func (h *PlayerHandler) HandleItemDrop(ctx *player.Context, s item.Stack) {
	if kit.IsMenuItem(s) {
		ctx.Cancel()
	}
}

// HandleQuit ...
func (h *PlayerHandler) HandleQuit(p *player.Player) {
	h.svc.Deliverer.Engine().OnPlayerQuit(p.UUID())
	h.svc.Sessions.Remove(p.UUID())
}
