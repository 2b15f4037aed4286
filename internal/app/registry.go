package app

import (
	"context"
	"sync"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomCode    domain.RoomCode
	Conn        core.SignalConnection
	ClientToken string
	Cancel      context.CancelFunc
}

// Registry maps live connections to their transport and current room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnID]*sessionEntry),
	}
}

func (r *Registry) Bind(id core.ConnID, conn core.SignalConnection, clientToken string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Conn: conn, ClientToken: clientToken, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

func (r *Registry) Conn(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) ClientToken(id core.ConnID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.ClientToken
	}
	return ""
}

func (r *Registry) Unbind(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbind connection")
}

func (r *Registry) RoomOf(id core.ConnID) (domain.RoomCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok || entry.RoomCode == "" {
		return "", false
	}
	return entry.RoomCode, true
}

func (r *Registry) UpdateRoom(id core.ConnID, code domain.RoomCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return false
	}
	entry.RoomCode = code
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(code)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[id]; ok {
		entry.RoomCode = ""
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel stops the connection's pumps. The transport reports the disconnect
// once its read loop exits.
func (r *Registry) Cancel(id core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}
