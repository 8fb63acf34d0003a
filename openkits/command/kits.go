package command

import (
	"errors"
	"strings"

	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/ledger"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
)

// Kits prints a one line summary of every kit: free, paid, on cooldown or unavailable.
type Kits struct {
	deps Deps
	permAllower
}

// Run ...
func (k Kits) Run(src cmd.Source, o *cmd.Output, _ *world.Tx) {
	_, s, ok := sessionOf(src)
	if !ok {
		o.Error(locale.Translate("command.players_only"))
		return
	}
	eng := k.deps.Deliverer.Engine()
	defs := eng.Kits().List()
	parts := make([]string, 0, len(defs))
	for _, def := range defs {
		parts = append(parts, summary(eng, s, def))
	}
	o.Print(locale.Translate("kit.kits.format", len(defs), strings.Join(parts, locale.Translate("kit.kits.separator"))))
}

// summary returns the entry of a kit in the summary.
func summary(eng *engine.Engine, s *session.Session, def kit.Definition) string {
	if def.Permission != "" && !s.HasPermission(def.Permission) {
		return locale.Translate("kit.kits.unavailable", def.DisplayName())
	}
	switch err := eng.Status(s.UUID(), def); {
	case errors.Is(err, ledger.ErrNotAvailable):
		return locale.Translate("kit.kits.cooldown", def.DisplayName(), util.FormatClock(eng.Remaining(s.UUID(), def.ID)))
	case err != nil:
		return locale.Translate("kit.kits.unavailable", def.DisplayName())
	case def.Free():
		return locale.Translate("kit.kits.free", def.DisplayName())
	default:
		return locale.Translate("kit.kits.paid", def.DisplayName(), def.Cost.String())
	}
}
