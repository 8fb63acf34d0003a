package command

import (
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/samber/lo"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/form"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
)

// listPageSize is the number of kits listed per page.
const listPageSize = 15

// Claim claims a kit.
type Claim struct {
	Sub cmd.SubCommand `cmd:"claim"`
	Kit kitName        `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (c Claim) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	claimKit(c.deps, src, o, string(c.Kit))
}

// ClaimNamed claims a kit named directly after the command, as in "/kit starter".
type ClaimNamed struct {
	Kit kitName `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (c ClaimNamed) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	claimKit(c.deps, src, o, string(c.Kit))
}

// claimKit ...
func claimKit(d Deps, src cmd.Source, o *cmd.Output, id string) {
	_, s, ok := sessionOf(src)
	if !ok {
		o.Error(locale.Translate("command.players_only"))
		return
	}
	if msg, ok := d.Deliverer.Claim(s, id); !ok {
		o.Error(msg)
	}
}

// List lists the kits of the catalog, a page at a time.
type List struct {
	Sub  cmd.SubCommand    `cmd:"list"`
	Page cmd.Optional[int] `name:"page"`

	deps Deps
	permAllower
}

// Run ...
func (l List) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, s, ok := sessionOf(src)
	if !ok {
		o.Error(locale.Translate("command.players_only"))
		return
	}
	pages := lo.Chunk(l.deps.Deliverer.Engine().Kits().List(), listPageSize)
	if len(pages) == 0 {
		o.Print(locale.Translate("kit.list.none"))
		return
	}
	page := l.Page.LoadOr(1)
	if page < 1 || page > len(pages) {
		o.Error(locale.Translate("kit.list.invalid_page", page, len(pages)))
		return
	}

	o.Print(locale.Translate("kit.list.title", page, len(pages)))
	for _, def := range pages[page-1] {
		o.Print(locale.Translate("kit.list.line", def.ID, form.Status(l.deps.Deliverer.Engine(), s, def)))
	}
	if page < len(pages) {
		o.Print(locale.Translate("kit.list.next", page+1))
	}
}

// Info shows the details of a kit.
type Info struct {
	Sub cmd.SubCommand `cmd:"info"`
	Kit kitName        `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (i Info) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	eng := i.deps.Deliverer.Engine()
	def, err := eng.Kit(string(i.Kit))
	if err != nil {
		o.Error(locale.Translate("kit.error.unknown", string(i.Kit)))
		return
	}

	yes, no := locale.Translate("command.yes"), locale.Translate("command.no")
	cost := locale.Translate("kit.info.free")
	if !def.Free() {
		cost = def.Cost.String()
	}
	perm := no
	if def.Permission != "" {
		perm = def.Permission
	}

	o.Print(locale.Translate("kit.info.title", def.DisplayName()))
	if def.Description != "" {
		o.Print(locale.Translate("kit.info.description", def.Description))
	}
	o.Print(locale.Translate("kit.info.cost", cost))
	o.Print(locale.Translate("kit.info.cooldown", util.FormatClock(def.Cooldown)))
	o.Print(locale.Translate("kit.info.permission", perm))
	o.Print(locale.Translate("kit.info.one_time", lo.Ternary(def.OneTime(), yes, no)))
	o.Print(locale.Translate("kit.info.enabled", lo.Ternary(def.Enabled, yes, no)))
	o.Print(locale.Translate("kit.info.items", strings.Join(lo.Map(def.Items, func(it kit.ItemSpec, _ int) string {
		return locale.Translate("kit.preview.item", it.Count, strings.TrimPrefix(it.Item, "minecraft:"))
	}), ", ")))
	if _, s, ok := sessionOf(src); ok {
		o.Print(locale.Translate("kit.info.status", form.Status(eng, s, def)))
	}
}

// GUI opens the kits menu.
type GUI struct {
	Sub cmd.SubCommand `cmd:"gui"`

	deps Deps
	permAllower
}

// Run ...
func (g GUI) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	p, s, ok := sessionOf(src)
	if !ok {
		o.Error(locale.Translate("command.players_only"))
		return
	}
	p.SendForm(form.NewKits(g.deps.Deliverer, s, 0))
}

// Give gives the items of a kit to players without claiming it: the cooldown and uses of the targets
// are left as they are.
type Give struct {
	Sub     cmd.SubCommand `cmd:"give"`
	Targets []cmd.Target   `name:"target"`
	Kit     kitName        `name:"kit"`

	deps Deps
	permAllower
}

// Run ...
func (g Give) Run(src cmd.Source, o *cmd.Output, tx *world.Tx) {
	def, err := g.deps.Deliverer.Engine().Kit(string(g.Kit))
	if err != nil {
		o.Error(locale.Translate("kit.error.unknown", string(g.Kit)))
		return
	}
	if !def.Enabled {
		o.Error(locale.Translate("kit.error.disabled", def.DisplayName()))
		return
	}
	stacks, err := kit.Stacks(def)
	if err != nil {
		o.Error(err)
		return
	}
	for _, t := range g.Targets {
		p, ok := t.(*player.Player)
		if !ok {
			continue
		}
		kit.Give(p, tx, stacks, g.deps.Deliverer.Drop())
		p.Message(locale.Translate("kit.given", def.DisplayName()))
		o.Print(locale.Translate("kit.admin.given", def.DisplayName(), p.Name()))
		g.deps.Log.Info("Gave kit", "kit", def.ID, "player", p.Name(), "source", sourceName(src))
	}
}

// sourceName ...
func sourceName(src cmd.Source) string {
	if p, ok := src.(*player.Player); ok {
		return p.Name()
	}
	return "console"
}
