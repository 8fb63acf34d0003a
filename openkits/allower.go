package openkits

import (
	"net"

	"github.com/sandertv/gophertunnel/minecraft/protocol/login"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
)

// Allower turns players away while the kit engine drains on shutdown, so that nobody joins a server
// that no longer grants kits.
type Allower struct {
	eng *engine.Engine
}

// Allow ...
func (a *Allower) Allow(_ net.Addr, _ login.IdentityData, _ login.ClientData) (string, bool) {
	if a.eng == nil || a.eng.Closing() {
		return locale.Translate("server.closing"), false
	}
	return "", true
}
