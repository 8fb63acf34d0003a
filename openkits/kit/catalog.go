package kit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/df-mc/atomic"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
	"gopkg.in/yaml.v3"
)

// maxStackCount is the largest count a single item stack may have.
const maxStackCount = 64

// ConfigError describes a problem with a kit in the kit configuration.
type ConfigError struct {
	Kit    string
	Field  string
	Reason string
}

// Error ...
func (e *ConfigError) Error() string {
	if e.Kit == "" {
		return fmt.Sprintf("kit config: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("kit config: kit %q: %s: %s", e.Kit, e.Field, e.Reason)
}

// Defaults are the values applied to kits that leave a field unset.
type Defaults struct {
	Cost              decimal.Decimal
	Cooldown          util.Duration
	Icon              string
	RequirePermission bool
	// Permission is the node required by kits with require_permission set and no permission of their
	// own. "%kit%" is replaced with the kit identifier.
	Permission string
	OneTime    bool
}

// DefaultDefaults returns the defaults used when the configuration specifies none.
func DefaultDefaults() Defaults {
	return Defaults{
		Cooldown:   util.Duration(30 * time.Minute),
		Icon:       "textures/items/wood_sword",
		Permission: "openkits.kit.%kit%",
	}
}

// file is the layout of a kit configuration file.
type file struct {
	Kits []entry `yaml:"kits"`
}

// entry is a single kit as written in a kit configuration file.
type entry struct {
	ID                string           `yaml:"id"`
	Name              string           `yaml:"name"`
	Description       string           `yaml:"description"`
	Icon              string           `yaml:"icon"`
	Items             []ItemSpec       `yaml:"items"`
	Permission        *string          `yaml:"permission"`
	RequirePermission *bool            `yaml:"require_permission"`
	Cooldown          *util.Duration   `yaml:"cooldown"`
	CooldownSeconds   *int64           `yaml:"cooldown_seconds"`
	Cost              *decimal.Decimal `yaml:"cost"`
	MaxUses           *int             `yaml:"max_uses"`
	OneTime           *bool            `yaml:"one_time"`
	RequiresUnlock    bool             `yaml:"requires_unlock"`
	Enabled           *bool            `yaml:"enabled"`
}

// Catalog is a loaded, read-only set of kit definitions.
type Catalog struct {
	order []string
	kits  map[string]Definition
}

// NewCatalog builds a catalog from definitions that were already validated. It is mostly useful for
// tests; configuration should go through Load.
func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{kits: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		d.ID = NormaliseID(d.ID)
		if _, ok := c.kits[d.ID]; !ok {
			c.order = append(c.order, d.ID)
		}
		c.kits[d.ID] = d
	}
	return c
}

// LoadFile loads a catalog from the YAML file at the path.
func LoadFile(path string, defaults Defaults) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open kit config: %w", err)
	}
	defer f.Close()
	return Load(f, defaults)
}

// Load reads a catalog from YAML. Every problem found is reported; if any is found no catalog is
// returned.
func Load(r io.Reader, defaults Defaults) (*Catalog, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode kit config: %w", err)
	}

	var errs []error
	seen := make(map[string]struct{}, len(f.Kits))
	defs := make([]Definition, 0, len(f.Kits))
	for i, e := range f.Kits {
		d, kitErrs := e.definition(defaults)
		if d.ID == "" {
			errs = append(errs, &ConfigError{Field: fmt.Sprintf("kits[%d].id", i), Reason: "must not be empty"})
		} else if _, ok := seen[d.ID]; ok {
			errs = append(errs, &ConfigError{Kit: d.ID, Field: "id", Reason: "duplicate identifier"})
		}
		seen[d.ID] = struct{}{}
		errs = append(errs, kitErrs...)
		defs = append(defs, d)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return NewCatalog(defs...), nil
}

// definition validates an entry and converts it into a Definition with the defaults applied.
func (e entry) definition(defaults Defaults) (Definition, []error) {
	d := Definition{
		ID:             NormaliseID(e.ID),
		Name:           e.Name,
		Description:    e.Description,
		Icon:           lo.Ternary(e.Icon == "", defaults.Icon, e.Icon),
		Items:          e.Items,
		Cost:           defaults.Cost,
		Cooldown:       defaults.Cooldown.Std(),
		RequiresUnlock: e.RequiresUnlock,
		Enabled:        e.Enabled == nil || *e.Enabled,
	}

	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Kit: d.ID, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	switch {
	case e.Cooldown != nil && e.CooldownSeconds != nil:
		fail("cooldown", "set either cooldown or cooldown_seconds, not both")
	case e.Cooldown != nil:
		d.Cooldown = e.Cooldown.Std()
	case e.CooldownSeconds != nil:
		d.Cooldown = time.Duration(*e.CooldownSeconds) * time.Second
	}
	if d.Cooldown < 0 {
		fail("cooldown", "must not be negative, got %v", d.Cooldown)
	}

	if e.Cost != nil {
		d.Cost = *e.Cost
	}
	if d.Cost.IsNegative() {
		fail("cost", "must not be negative, got %s", d.Cost)
	}

	oneTime := defaults.OneTime
	if e.OneTime != nil {
		oneTime = *e.OneTime
	}
	if oneTime {
		d.MaxUses = 1
	}
	if e.MaxUses != nil {
		if *e.MaxUses < 0 {
			fail("max_uses", "must not be negative, got %d", *e.MaxUses)
		}
		if oneTime && *e.MaxUses != 1 {
			fail("max_uses", "one_time kits can only be claimed once")
		}
		d.MaxUses = *e.MaxUses
	}

	requirePermission := defaults.RequirePermission
	if e.RequirePermission != nil {
		requirePermission = *e.RequirePermission
	}
	switch {
	case e.Permission != nil:
		d.Permission = strings.TrimSpace(*e.Permission)
	case requirePermission:
		d.Permission = strings.ReplaceAll(defaults.Permission, "%kit%", d.ID)
	}

	if len(d.Items) == 0 {
		fail("items", "must contain at least one item")
	}
	for i, it := range d.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.Item) == "" {
			fail(field+".item", "must not be empty")
		}
		if it.Count == 0 {
			d.Items[i].Count = 1
		} else if it.Count < 0 || it.Count > maxStackCount {
			fail(field+".count", "must be between 1 and %d, got %d", maxStackCount, it.Count)
		}
		if it.Meta < 0 {
			fail(field+".meta", "must not be negative, got %d", it.Meta)
		}
	}
	return d, errs
}

// Get returns the kit with the identifier passed. Identifiers are case-insensitive.
func (c *Catalog) Get(id string) (Definition, bool) {
	d, ok := c.kits[NormaliseID(id)]
	return d, ok
}

// List returns all kits in the order they were declared.
func (c *Catalog) List() []Definition {
	return lo.Map(c.order, func(id string, _ int) Definition {
		return c.kits[id]
	})
}

// IDs returns the identifiers of all kits in the order they were declared.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of kits in the catalog.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Registry holds the current catalog. Replacing it is atomic: readers observe either the previous or
// the new catalog in full.
type Registry struct {
	current atomic.Value[*Catalog]
}

// NewRegistry returns a registry holding the catalog passed.
func NewRegistry(c *Catalog) *Registry {
	r := &Registry{}
	r.current.Store(c)
	return r
}

// Catalog returns the current catalog.
func (r *Registry) Catalog() *Catalog {
	return r.current.Load()
}

// Swap replaces the current catalog and returns the previous one.
func (r *Registry) Swap(c *Catalog) *Catalog {
	prev := r.current.Load()
	r.current.Store(c)
	return prev
}
