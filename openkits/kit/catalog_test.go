package kit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKits = `
kits:
  - id: Starter
    name: "<green>Starter</green>"
    cooldown_seconds: 3600
    items:
      - item: minecraft:wooden_sword
      - item: minecraft:bread
        count: 16
  - id: pvp
    cost: 100
    cooldown: 10m
    require_permission: true
    items:
      - item: minecraft:iron_sword
        custom_name: "<red>Blade</red>"
        lore: ["sharp"]
  - id: founder
    one_time: true
    requires_unlock: true
    enabled: false
    permission: founders.kit
    items:
      - item: minecraft:diamond
        count: 64
`

func TestLoadAppliesDefaultsInOrder(t *testing.T) {
	c, err := Load(strings.NewReader(validKits), DefaultDefaults())
	require.NoError(t, err)

	assert.Equal(t, []string{"starter", "pvp", "founder"}, c.IDs())

	starter, ok := c.Get("STARTER")
	require.True(t, ok)
	assert.Equal(t, time.Hour, starter.Cooldown)
	assert.True(t, starter.Free())
	assert.Empty(t, starter.Permission)
	assert.Equal(t, 1, starter.Items[0].Count, "count defaults to one")
	assert.Equal(t, 16, starter.Items[1].Count)
	assert.True(t, starter.Enabled)
	assert.Equal(t, "textures/items/wood_sword", starter.Icon)

	pvp, ok := c.Get("pvp")
	require.True(t, ok)
	assert.True(t, pvp.Cost.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 10*time.Minute, pvp.Cooldown)
	assert.Equal(t, "openkits.kit.pvp", pvp.Permission)

	founder, ok := c.Get("founder")
	require.True(t, ok)
	assert.True(t, founder.OneTime())
	assert.True(t, founder.RequiresUnlock)
	assert.False(t, founder.Enabled)
	assert.Equal(t, "founders.kit", founder.Permission)
	assert.Equal(t, 30*time.Minute, founder.Cooldown, "default cooldown")

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLoadRejectsInvalidCatalogAtomically(t *testing.T) {
	const invalid = `
kits:
  - id: ok
    items:
      - item: minecraft:apple
  - id: ok
    items:
      - item: minecraft:apple
  - id: ""
    items:
      - item: minecraft:apple
  - id: negative
    cooldown: -5s
    cost: -1
    items:
      - item: minecraft:apple
        count: 65
  - id: empty
`
	c, err := Load(strings.NewReader(invalid), DefaultDefaults())
	require.Error(t, err)
	assert.Nil(t, c)

	var fields []string
	for _, e := range unwrapAll(err) {
		var ce *ConfigError
		if errors.As(e, &ce) {
			fields = append(fields, ce.Kit+"."+ce.Field)
		}
	}
	assert.ElementsMatch(t, []string{
		"ok.id",
		".kits[2].id",
		"negative.cooldown",
		"negative.cost",
		"negative.items[0].count",
		"empty.items",
	}, fields)
}

func TestLoadRejectsConflictingFields(t *testing.T) {
	const conflicting = `
kits:
  - id: both
    cooldown: 1m
    cooldown_seconds: 60
    one_time: true
    max_uses: 3
    items:
      - item: minecraft:apple
`
	_, err := Load(strings.NewReader(conflicting), DefaultDefaults())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cooldown_seconds")
	assert.Contains(t, err.Error(), "one_time")
}

func TestLoadEmptyFile(t *testing.T) {
	c, err := Load(strings.NewReader(""), DefaultDefaults())
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kits.yml")
	require.NoError(t, os.WriteFile(path, []byte(validKits), 0o644))

	c, err := LoadFile(path, DefaultDefaults())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yml"), DefaultDefaults())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRegistrySwap(t *testing.T) {
	first := NewCatalog(Definition{ID: "a"})
	second := NewCatalog(Definition{ID: "b"})

	r := NewRegistry(first)
	assert.Same(t, first, r.Catalog())
	assert.Same(t, first, r.Swap(second))
	assert.Same(t, second, r.Catalog())
}

// unwrapAll flattens errors joined with errors.Join.
func unwrapAll(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, unwrapAll(e)...)
		}
		return out
	}
	return []error{err}
}
