package relay

import (
	"strings"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Millisecond ISO-8601 in UTC, e.g. 2025-03-01T09:00:00.000Z.
const chatTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func (r *Relay) chat(id core.ConnID, m *protocol.ChatMessage) {
	room, ok := r.memberRoom(id)
	if !ok {
		log.Debug().Str("module", "relay").Str("conn", string(id)).Msg("chat from non-member")
		return
	}
	text := strings.TrimSpace(m.Message)
	if text == "" {
		return
	}
	p, _ := room.Participant(id)
	r.broadcast(room, "", protocol.ChatMessage{
		UserID:    p.User.ID,
		UserName:  p.User.Username,
		Message:   text,
		Timestamp: r.now().UTC().Format(chatTimeLayout),
	})
}
