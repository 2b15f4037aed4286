package core

import "github.com/dkeye/grinder/internal/domain"

// ConnID identifies one real-time connection. A user with two tabs open has
// two connections and appears twice in a room.
type ConnID string

// Participant is one connection's membership in a room.
type Participant struct {
	ConnID ConnID
	User   domain.User
}

// ParticipantDTO is a read-only view for APIs (no transport fields).
type ParticipantDTO struct {
	ConnID   ConnID        `json:"connId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

func (p Participant) DTO() ParticipantDTO {
	return ParticipantDTO{ConnID: p.ConnID, UserID: p.User.ID, UserName: p.User.Username}
}
