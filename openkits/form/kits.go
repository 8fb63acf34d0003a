package form

import (
	"slices"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/player/form"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/samber/lo"
	"github.com/sandertv/gophertunnel/minecraft/text"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
)

// menuPageSize is the number of kits shown on one page of the kits menu.
const menuPageSize = 28

// Kits is the menu listing the kits of the catalog with the status of each for the player.
type Kits struct {
	d    *session.Deliverer
	page int

	kits    []kit.Definition
	buttons []form.Button
	prev    *form.Button
	next    *form.Button
}

// NewKits returns the kits menu of the player of the session, showing the page passed, starting at 0.
func NewKits(d *session.Deliverer, s *session.Session, page int) form.Menu {
	pages := lo.Chunk(d.Engine().Kits().List(), menuPageSize)
	if len(pages) == 0 {
		return form.NewMenu(Kits{d: d}, locale.Translate("kit.menu.title")).
			WithBody(locale.Translate("kit.list.none"))
	}
	page = min(max(page, 0), len(pages)-1)

	m := Kits{d: d, page: page, kits: pages[page]}
	for _, def := range m.kits {
		m.buttons = append(m.buttons, form.NewButton(
			text.Colourf("<dark-grey>%s</dark-grey>\n%s", def.DisplayName(), Status(d.Engine(), s, def)),
			def.Icon,
		))
	}
	buttons := slices.Clone(m.buttons)
	if page > 0 {
		b := form.NewButton(locale.Translate("kit.menu.previous"), "textures/ui/arrow_left")
		m.prev = &b
		buttons = append(buttons, b)
	}
	if page < len(pages)-1 {
		b := form.NewButton(locale.Translate("kit.menu.next"), "textures/ui/arrow_right")
		m.next = &b
		buttons = append(buttons, b)
	}
	return form.NewMenu(m, locale.Translate("kit.menu.title")).
		WithBody(locale.Translate("kit.menu.page", page+1, len(pages))).
		WithButtons(buttons...)
}

// Submit ...
func (m Kits) Submit(sub form.Submitter, b form.Button, _ *world.Tx) {
	p := sub.(*player.Player)
	s, ok := sessionOf(p)
	if !ok {
		return
	}
	switch {
	case m.prev != nil && b == *m.prev:
		p.SendForm(NewKits(m.d, s, m.page-1))
	case m.next != nil && b == *m.next:
		p.SendForm(NewKits(m.d, s, m.page+1))
	default:
		i := slices.Index(m.buttons, b)
		if i < 0 {
			return
		}
		p.SendForm(NewKit(m.d, s, m.kits[i], m.page))
	}
}

// Kit is the menu of a single kit, from which it is claimed or previewed.
type Kit struct {
	d    *session.Deliverer
	def  kit.Definition
	page int

	claim   form.Button
	preview form.Button
	back    form.Button
}

// NewKit returns the menu of a kit. page is the page of the kits menu to return to.
func NewKit(d *session.Deliverer, s *session.Session, def kit.Definition, page int) form.Menu {
	m := Kit{
		d:       d,
		def:     def,
		page:    page,
		claim:   form.NewButton(locale.Translate("kit.menu.claim"), "textures/ui/confirm"),
		preview: form.NewButton(locale.Translate("kit.menu.preview"), "textures/ui/magnifyingGlass"),
		back:    form.NewButton(locale.Translate("kit.menu.back"), "textures/ui/arrow_dark_left_stretch"),
	}
	buttons := []form.Button{m.claim}
	if s.HasPermission(PreviewPermission) {
		buttons = append(buttons, m.preview)
	}
	buttons = append(buttons, m.back)

	return form.NewMenu(m, text.Colourf("<dark-aqua>%s</dark-aqua>", def.DisplayName())).
		WithBody(describe(def), "\n\n", Status(d.Engine(), s, def)).
		WithButtons(buttons...)
}

// Submit ...
func (m Kit) Submit(sub form.Submitter, b form.Button, _ *world.Tx) {
	p := sub.(*player.Player)
	s, ok := sessionOf(p)
	if !ok {
		return
	}
	switch b {
	case m.claim:
		if m.def.Free() {
			claim(m.d, p, s, m.def)
			return
		}
		p.SendForm(NewPurchase(m.d, m.def))
	case m.preview:
		if !s.HasPermission(PreviewPermission) {
			p.Message(locale.Translate("kit.error.permission", m.def.DisplayName()))
			return
		}
		p.SendForm(NewPreview(m.d, m.def, m.page))
	case m.back:
		p.SendForm(NewKits(m.d, s, m.page))
	}
}
