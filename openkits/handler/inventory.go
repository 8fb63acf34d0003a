// Package handler provides the player and inventory handlers that connect players to the kit engine.
package handler

import (
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/item/inventory"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
)

// Check to make sure InventoryHandler implements inventory.Handler.
var _ inventory.Handler = InventoryHandler{}

// InventoryHandler keeps the kit menu item in its slot.
type InventoryHandler struct {
	inventory.NopHandler
}

// HandleTake ...
func (InventoryHandler) HandleTake(ctx *inventory.Context, _ int, it item.Stack) {
	if kit.IsMenuItem(it) {
		ctx.Cancel()
	}
}

// HandleDrop ...
func (InventoryHandler) HandleDrop(ctx *inventory.Context, _ int, it item.Stack) {
	if kit.IsMenuItem(it) {
		ctx.Cancel()
	}
}
