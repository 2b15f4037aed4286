package relay

import (
	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog/log"
)

// forward hands a negotiation message to target alone. Both ends must share
// a room; anything else is dropped.
func (r *Relay) forward(id, target core.ConnID, msg protocol.Message) {
	room, ok := r.memberRoom(id)
	if !ok || target == "" || target == id || !room.Has(target) {
		log.Debug().
			Str("module", "relay").
			Str("conn", string(id)).
			Str("target", string(target)).
			Str("type", string(msg.Kind())).
			Msg("dropping unroutable signal")
		return
	}
	r.send(room, target, msg)
}
