package app

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MemoryRoomStore is the single-process core.RoomStore. Rooms live for the
// lifetime of the process and vanish with their last participant.
type MemoryRoomStore struct {
	clock     clockwork.Clock
	durations domain.TimerDurations

	mu    sync.RWMutex
	rooms map[domain.RoomCode]*core.Room
}

func NewRoomStore(clock clockwork.Clock, durations domain.TimerDurations) *MemoryRoomStore {
	return &MemoryRoomStore{
		clock:     clock,
		durations: durations,
		rooms:     make(map[domain.RoomCode]*core.Room),
	}
}

func (s *MemoryRoomStore) GetOrCreate(code domain.RoomCode) (*core.Room, bool) {
	s.mu.RLock()
	room, ok := s.rooms[code]
	s.mu.RUnlock()
	if ok {
		return room, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok = s.rooms[code]; ok {
		return room, false
	}
	room = core.NewRoom(code, s.clock.Now(), s.durations)
	s.rooms[code] = room
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room created")
	return room, true
}

func (s *MemoryRoomStore) Get(code domain.RoomCode) (*core.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *MemoryRoomStore) RemoveParticipant(code domain.RoomCode, id core.ConnID) (*core.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, false
	}
	_, removed := room.RemoveParticipant(id)
	if room.Count() == 0 {
		delete(s.rooms, code)
		log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room empty, removed")
	}
	return room, removed
}

func (s *MemoryRoomStore) List() []core.RoomInfo {
	s.mu.RLock()
	out := make([]core.RoomInfo, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.Info())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.Code), string(b.Code)) })
	return out
}

// Len reports how many rooms are active.
func (s *MemoryRoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}
