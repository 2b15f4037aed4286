package relay

import (
	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog/log"
)

// join adds id to the requested room. A connection already in another room
// leaves it first. The joiner receives the roster, the room meta and a timer
// snapshot in that order; everybody else receives user-joined.
func (r *Relay) join(id core.ConnID, m *protocol.JoinRoom) {
	if _, ok := r.Conns.Conn(id); !ok {
		return
	}
	user, err := domain.NewUser(r.identity(id, m.UserID), m.UserName)
	if err != nil {
		log.Debug().Str("module", "relay").Str("conn", string(id)).Err(err).Msg("join rejected")
		return
	}

	rejoin := false
	if current, ok := r.Conns.RoomOf(id); ok {
		if current == m.RoomCode {
			rejoin = true
		} else {
			r.leave(id)
			log.Info().Str("module", "relay").Str("conn", string(id)).Str("from_room", string(current)).Msg("left previous room")
		}
	}

	room, created := r.Rooms.GetOrCreate(m.RoomCode)
	others := room.ParticipantsExcept(id)
	room.AddParticipant(core.Participant{ConnID: id, User: *user})
	r.Conns.UpdateRoom(id, m.RoomCode)
	log.Info().
		Str("module", "relay").
		Str("conn", string(id)).
		Str("room", string(m.RoomCode)).
		Str("user", string(user.ID)).
		Bool("created", created).
		Int("participants", room.Count()).
		Msg("joined room")

	roster := make([]core.ParticipantDTO, 0, len(others))
	for _, p := range others {
		roster = append(roster, p.DTO())
	}
	r.send(room, id, protocol.ExistingParticipants{Participants: roster})
	r.send(room, id, protocol.RoomMeta{StartedAt: room.StartedAt().UnixMilli(), ParticipantCount: room.Count()})
	r.send(room, id, protocol.TimerSync{TimerState: room.Timer()})

	if rejoin {
		return
	}
	r.broadcast(room, id, protocol.UserJoined{
		ConnID:           id,
		UserID:           user.ID,
		UserName:         user.Username,
		ParticipantCount: room.Count(),
	})
}

// identity picks the user id a join is recorded under: the asserted one,
// else the connection's client token, else the connection id.
func (r *Relay) identity(id core.ConnID, asserted domain.UserID) domain.UserID {
	if asserted != "" {
		return asserted
	}
	if tok := r.Conns.ClientToken(id); tok != "" {
		return domain.UserID(tok)
	}
	return domain.UserID(id)
}

// leave removes id from its room, if any, and tells the remaining
// participants. The room is deleted with its last participant.
func (r *Relay) leave(id core.ConnID) {
	code, ok := r.Conns.RoomOf(id)
	if !ok {
		return
	}
	r.Conns.RemoveRoom(id)

	room, ok := r.Rooms.Get(code)
	if !ok {
		return
	}
	p, _ := room.Participant(id)
	room, removed := r.Rooms.RemoveParticipant(code, id)
	if room == nil || !removed {
		return
	}
	log.Info().
		Str("module", "relay").
		Str("conn", string(id)).
		Str("room", string(code)).
		Int("participants", room.Count()).
		Msg("left room")

	if room.Count() == 0 {
		return
	}
	r.broadcast(room, "", protocol.UserLeft{
		ConnID:           id,
		UserID:           p.User.ID,
		UserName:         p.User.Username,
		ParticipantCount: room.Count(),
	})
}

// memberRoom returns the room id currently belongs to.
func (r *Relay) memberRoom(id core.ConnID) (*core.Room, bool) {
	code, ok := r.Conns.RoomOf(id)
	if !ok {
		return nil, false
	}
	room, ok := r.Rooms.Get(code)
	if !ok || !room.Has(id) {
		return nil, false
	}
	return room, true
}
