package core

import (
	"time"

	"github.com/dkeye/grinder/internal/domain"
)

type RoomInfo struct {
	Code             domain.RoomCode `json:"code"`
	ParticipantCount int             `json:"participantCount"`
	StartedAt        time.Time       `json:"startedAt"`
}

// RoomStore is the room registry. Operations on a code that has no room
// report absence and change nothing; callers treat that as a no-op.
//
// The relay is the only writer. Implementations must still be safe for
// concurrent readers such as the HTTP listing.
type RoomStore interface {
	// GetOrCreate returns the room for code, creating it if needed. created
	// reports whether this call made the room.
	GetOrCreate(code domain.RoomCode) (room *Room, created bool)
	Get(code domain.RoomCode) (*Room, bool)
	// RemoveParticipant drops id from the room and deletes the room once
	// it is empty. The room is returned even when it was just deleted so
	// callers can inspect the final count. A nil room means the code was
	// unknown.
	RemoveParticipant(code domain.RoomCode, id ConnID) (room *Room, removed bool)
	List() []RoomInfo
}
