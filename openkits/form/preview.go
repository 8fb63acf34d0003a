package form

import (
	"strings"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/player/form"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/sandertv/gophertunnel/minecraft/text"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
)

// Preview is the modal listing the items of a kit.
type Preview struct {
	d    *session.Deliverer
	def  kit.Definition
	page int

	YesButton form.Button
	NoButton  form.Button
}

// NewPreview returns the preview of a kit. page is the page of the kits menu to return to.
func NewPreview(d *session.Deliverer, def kit.Definition, page int) form.Modal {
	return form.NewModal(Preview{
		d:    d,
		def:  def,
		page: page,

		YesButton: form.NewButton(locale.Translate("kit.menu.claim"), ""),
		NoButton:  form.NewButton(locale.Translate("kit.menu.back"), ""),
	}, text.Colourf("<dark-aqua>%s</dark-aqua>", def.DisplayName())).WithBody(previewBody(def))
}

// previewBody lists the items of a kit, one per line.
func previewBody(def kit.Definition) string {
	var b strings.Builder
	b.WriteString(locale.Translate("kit.preview.header", def.DisplayName()))
	for _, it := range def.Items {
		name := it.CustomName
		if name == "" {
			name = strings.TrimPrefix(it.Item, "minecraft:")
		}
		b.WriteString("\n")
		b.WriteString(locale.Translate("kit.preview.item", it.Count, name))
	}
	return b.String()
}

// Submit ...
func (f Preview) Submit(sub form.Submitter, b form.Button, _ *world.Tx) {
	p := sub.(*player.Player)
	s, ok := sessionOf(p)
	if !ok {
		return
	}
	if b != f.YesButton {
		p.SendForm(NewKits(f.d, s, f.page))
		return
	}
	if f.def.Free() {
		claim(f.d, p, s, f.def)
		return
	}
	p.SendForm(NewPurchase(f.d, f.def))
}

// Purchase is the modal confirming the purchase of a kit with a cost.
type Purchase struct {
	d   *session.Deliverer
	def kit.Definition

	YesButton form.Button
	NoButton  form.Button
}

// NewPurchase ...
func NewPurchase(d *session.Deliverer, def kit.Definition) form.Modal {
	return form.NewModal(Purchase{d: d, def: def, YesButton: form.YesButton(), NoButton: form.NoButton()},
		locale.Translate("kit.purchase.title")).
		WithBody(locale.Translate("kit.purchase.body", def.DisplayName(), def.Cost.String()))
}

// Submit ...
func (f Purchase) Submit(sub form.Submitter, b form.Button, _ *world.Tx) {
	if b != f.YesButton {
		return
	}
	p := sub.(*player.Player)
	s, ok := sessionOf(p)
	if !ok {
		return
	}
	claim(f.d, p, s, f.def)
}
