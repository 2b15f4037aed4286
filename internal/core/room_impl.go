package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/grinder/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type Room struct {
	code      domain.RoomCode
	startedAt time.Time

	mu     sync.RWMutex
	order  []ConnID
	byConn map[ConnID]Participant
	timer  domain.TimerState
}

func NewRoom(code domain.RoomCode, startedAt time.Time, durations domain.TimerDurations) *Room {
	return &Room{
		code:      code,
		startedAt: startedAt,
		byConn:    make(map[ConnID]Participant),
		timer:     domain.NewTimerState(durations),
	}
}

func (r *Room) Code() domain.RoomCode { return r.code }

func (r *Room) StartedAt() time.Time { return r.startedAt }

func (r *Room) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Room) Has(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[id]
	return ok
}

func (r *Room) Participant(id ConnID) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byConn[id]
	return p, ok
}

// AddParticipant registers p. A connection that is already present keeps its
// place in the join order and gets its identity refreshed.
func (r *Room) AddParticipant(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[p.ConnID]; !ok {
		r.order = append(r.order, p.ConnID)
	}
	r.byConn[p.ConnID] = p
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("conn", string(p.ConnID)).Str("user", string(p.User.ID)).Msg("participant added")
}

func (r *Room) RemoveParticipant(id ConnID) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byConn[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.byConn, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("conn", string(id)).Msg("participant removed")
	return p, true
}

// Participants returns the members in join order.
func (r *Room) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byConn[id])
	}
	return out
}

// ParticipantsExcept returns the members in join order, skipping id.
func (r *Room) ParticipantsExcept(id ConnID) []Participant {
	all := r.Participants()
	return slices.DeleteFunc(all, func(p Participant) bool { return p.ConnID == id })
}

func (r *Room) Timer() domain.TimerState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.timer
}

// UpdateTimer applies fn to the timer under the room lock and returns the
// resulting state. fn reports whether it changed anything.
func (r *Room) UpdateTimer(fn func(*domain.TimerState) bool) (domain.TimerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := fn(&r.timer)
	return r.timer, changed
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{Code: r.code, ParticipantCount: r.Count(), StartedAt: r.startedAt}
}
