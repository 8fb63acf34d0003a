// Package kit provides the catalog of kits players can claim.
package kit

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
)

// Definition describes a kit. Definitions are immutable once loaded.
type Definition struct {
	ID          string
	Name        string
	Description string
	Icon        string

	Items []ItemSpec

	// Permission is the node a player needs to claim the kit. An empty permission means anyone may.
	Permission string
	Cooldown   time.Duration
	Cost       decimal.Decimal
	// MaxUses caps the number of times a player may claim the kit. Zero means no cap.
	MaxUses        int
	RequiresUnlock bool
	Enabled        bool
}

// ItemSpec describes a single item stack of a kit.
type ItemSpec struct {
	Item       string   `yaml:"item"`
	Meta       int16    `yaml:"meta"`
	Count      int      `yaml:"count"`
	CustomName string   `yaml:"custom_name"`
	Lore       []string `yaml:"lore"`
}

// Rules returns the availability rules of the kit.
func (d Definition) Rules() ledger.Rules {
	return ledger.Rules{RequiresUnlock: d.RequiresUnlock, MaxUses: d.MaxUses}
}

// Free reports whether claiming the kit costs nothing.
func (d Definition) Free() bool {
	return !d.Cost.IsPositive()
}

// OneTime reports whether the kit can only be claimed once.
func (d Definition) OneTime() bool {
	return d.MaxUses == 1
}

// DisplayName returns the name of the kit, or its identifier if it has none.
func (d Definition) DisplayName() string {
	if d.Name == "" {
		return d.ID
	}
	return d.Name
}

// NormaliseID returns the canonical form of a kit identifier, the form ledger keys use.
func NormaliseID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
