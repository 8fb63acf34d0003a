package kit

import (
	"errors"
	"fmt"

	"github.com/df-mc/dragonfly/server/entity"
	"github.com/df-mc/dragonfly/server/item"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/sandertv/gophertunnel/minecraft/text"
)

const (
	// menuItemSlot is the hotbar slot the kit menu item is placed in.
	menuItemSlot = 8
	// menuItemKey is the item value key marking the kit menu item.
	menuItemKey = "openkits"
)

// dropOffset is the offset from the player's feet at which overflow items are dropped.
var dropOffset = mgl64.Vec3{0, 1, 0}

// Stacks resolves the item specs of a kit into item stacks.
func Stacks(d Definition) ([]item.Stack, error) {
	stacks := make([]item.Stack, 0, len(d.Items))
	for i, spec := range d.Items {
		it, ok := world.ItemByName(spec.Item, spec.Meta)
		if !ok {
			return nil, &ConfigError{Kit: d.ID, Field: fmt.Sprintf("items[%d].item", i), Reason: fmt.Sprintf("unknown item %q", spec.Item)}
		}
		s := item.NewStack(it, spec.Count)
		if spec.CustomName != "" {
			s = s.WithCustomName(text.Colourf(spec.CustomName))
		}
		if len(spec.Lore) > 0 {
			lore := make([]string, len(spec.Lore))
			for j, l := range spec.Lore {
				lore[j] = text.Colourf(l)
			}
			s = s.WithLore(lore...)
		}
		stacks = append(stacks, s.WithValue("kit", d.ID))
	}
	return stacks, nil
}

// Resolve checks that every item of every kit in the catalog exists.
func Resolve(c *Catalog) error {
	var errs []error
	for _, d := range c.List() {
		if _, err := Stacks(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Give adds the stacks to the player's inventory. Stacks that do not fit are dropped at the player's
// feet if drop is true, and returned otherwise.
func Give(p *player.Player, tx *world.Tx, stacks []item.Stack, drop bool) (overflow []item.Stack) {
	inv := p.Inventory()
	for _, s := range stacks {
		n, err := inv.AddItem(s)
		if err == nil {
			continue
		}
		rest := s.Grow(-n)
		if rest.Empty() {
			continue
		}
		if !drop {
			overflow = append(overflow, rest)
			continue
		}
		opts := world.EntitySpawnOpts{Position: p.Position().Add(dropOffset)}
		tx.AddEntity(entity.NewItem(opts, rest))
	}
	return overflow
}

// MenuItem returns the item that opens the kit menu when used.
func MenuItem() item.Stack {
	return item.NewStack(item.Book{}, 1).
		WithCustomName(text.Colourf("<aqua>Kits</aqua>")).
		WithValue(menuItemKey, true)
}

// IsMenuItem reports whether the stack is the kit menu item.
func IsMenuItem(s item.Stack) bool {
	_, ok := s.Value(menuItemKey)
	return ok
}

// GiveMenuItem places the kit menu item in the player's hotbar.
func GiveMenuItem(p *player.Player) {
	_ = p.Inventory().SetItem(menuItemSlot, MenuItem())
}
