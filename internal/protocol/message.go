// Package protocol defines the messages exchanged over the real-time
// channel. Every message is one concrete type from a closed set, carried in
// a JSON envelope {"type": <kind>, "payload": {...}}. A kind names the same
// payload type in both directions; fields that only one direction fills are
// omitted when empty.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
)

type Kind string

// Client to server, and relayed peer to peer.
const (
	KindJoinRoom     Kind = "join-room"
	KindLeaveRoom    Kind = "leave-room"
	KindOffer        Kind = "webrtc-offer"
	KindAnswer       Kind = "webrtc-answer"
	KindICECandidate Kind = "webrtc-ice-candidate"
	KindTimerStart   Kind = "timer-start"
	KindTimerPause   Kind = "timer-pause"
	KindTimerResume  Kind = "timer-resume"
	KindTimerReset   Kind = "timer-reset"
	KindTimerSet     Kind = "timer-set"
	KindTimerFinish  Kind = "timer-finish"
	KindChat         Kind = "chat-message"
	KindPing         Kind = "ping"
)

// Server to client.
const (
	KindExistingParticipants Kind = "existing-participants"
	KindUserJoined           Kind = "user-joined"
	KindUserLeft             Kind = "user-left"
	KindRoomMeta             Kind = "room-meta"
	KindTimerSync            Kind = "timer-sync"
	KindTimerStarted         Kind = "timer-started"
	KindTimerPaused          Kind = "timer-paused"
	KindTimerResumed         Kind = "timer-resumed"
	KindPong                 Kind = "pong"
)

// Message is implemented by every payload type in this package and nothing
// else.
type Message interface {
	Kind() Kind
	sealed()
}

type JoinRoom struct {
	RoomCode domain.RoomCode `json:"roomCode" validate:"required,alphanum,max=16"`
	UserID   domain.UserID   `json:"userId,omitempty" validate:"max=64"`
	UserName string          `json:"userName,omitempty" validate:"max=36"`
}

type LeaveRoom struct {
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
}

// Offer, Answer and ICECandidate carry an opaque description or candidate.
// Senders fill TargetID; the relay replaces it with SourceID on delivery.
type Offer struct {
	Offer    json.RawMessage `json:"offer" validate:"required"`
	TargetID core.ConnID     `json:"targetId,omitempty"`
	SourceID core.ConnID     `json:"sourceId,omitempty"`
}

type Answer struct {
	Answer   json.RawMessage `json:"answer" validate:"required"`
	TargetID core.ConnID     `json:"targetId,omitempty"`
	SourceID core.ConnID     `json:"sourceId,omitempty"`
}

type ICECandidate struct {
	Candidate json.RawMessage `json:"candidate" validate:"required"`
	TargetID  core.ConnID     `json:"targetId,omitempty"`
	SourceID  core.ConnID     `json:"sourceId,omitempty"`
}

// Timer control messages act on the sender's current room. RoomCode is
// accepted for compatibility and ignored. Durations are seconds, at most
// one day.
type TimerStart struct {
	RoomCode      domain.RoomCode `json:"roomCode,omitempty"`
	Duration      float64         `json:"duration,omitempty" validate:"gte=0,lte=86400"`
	Mode          string          `json:"mode,omitempty" validate:"omitempty,oneof=work break pomodoro"`
	BreakDuration float64         `json:"breakDuration,omitempty" validate:"gte=0,lte=86400"`
}

type TimerPause struct {
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
}

type TimerResume struct {
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
}

// TimerReset is both the control message and the broadcast signal.
type TimerReset struct {
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
}

type TimerSet struct {
	RoomCode      domain.RoomCode `json:"roomCode,omitempty"`
	Duration      float64         `json:"duration" validate:"gt=0,lte=86400"`
	BreakDuration float64         `json:"breakDuration,omitempty" validate:"gte=0,lte=86400"`
}

type TimerFinish struct {
	RoomCode domain.RoomCode `json:"roomCode,omitempty"`
}

// ChatMessage is sent with Message only; the relay stamps identity and
// Timestamp (RFC 3339, UTC) before broadcasting.
type ChatMessage struct {
	RoomCode  domain.RoomCode `json:"roomCode,omitempty"`
	UserID    domain.UserID   `json:"userId,omitempty"`
	UserName  string          `json:"userName,omitempty"`
	Message   string          `json:"message" validate:"required,max=2000"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type Ping struct{}

type Pong struct{}

type ExistingParticipants struct {
	Participants []core.ParticipantDTO `json:"participants"`
}

type UserJoined struct {
	ConnID           core.ConnID   `json:"connId"`
	UserID           domain.UserID `json:"userId"`
	UserName         string        `json:"userName"`
	ParticipantCount int           `json:"participantCount"`
}

type UserLeft struct {
	ConnID           core.ConnID   `json:"connId"`
	UserID           domain.UserID `json:"userId"`
	UserName         string        `json:"userName"`
	ParticipantCount int           `json:"participantCount"`
}

type RoomMeta struct {
	StartedAt        int64 `json:"startedAt"` // unix ms
	ParticipantCount int   `json:"participantCount"`
}

// TimerSync is a snapshot that does not start anything.
type TimerSync struct {
	domain.TimerState
}

type TimerStarted struct {
	domain.TimerState
}

type TimerPaused struct {
	TimeRemaining float64 `json:"timeRemaining"`
}

type TimerResumed struct {
	domain.TimerState
}

func (JoinRoom) Kind() Kind             { return KindJoinRoom }
func (LeaveRoom) Kind() Kind            { return KindLeaveRoom }
func (Offer) Kind() Kind                { return KindOffer }
func (Answer) Kind() Kind               { return KindAnswer }
func (ICECandidate) Kind() Kind         { return KindICECandidate }
func (TimerStart) Kind() Kind           { return KindTimerStart }
func (TimerPause) Kind() Kind           { return KindTimerPause }
func (TimerResume) Kind() Kind          { return KindTimerResume }
func (TimerReset) Kind() Kind           { return KindTimerReset }
func (TimerSet) Kind() Kind             { return KindTimerSet }
func (TimerFinish) Kind() Kind          { return KindTimerFinish }
func (ChatMessage) Kind() Kind          { return KindChat }
func (Ping) Kind() Kind                 { return KindPing }
func (Pong) Kind() Kind                 { return KindPong }
func (ExistingParticipants) Kind() Kind { return KindExistingParticipants }
func (UserJoined) Kind() Kind           { return KindUserJoined }
func (UserLeft) Kind() Kind             { return KindUserLeft }
func (RoomMeta) Kind() Kind             { return KindRoomMeta }
func (TimerSync) Kind() Kind            { return KindTimerSync }
func (TimerStarted) Kind() Kind         { return KindTimerStarted }
func (TimerPaused) Kind() Kind          { return KindTimerPaused }
func (TimerResumed) Kind() Kind         { return KindTimerResumed }

func (JoinRoom) sealed()             {}
func (LeaveRoom) sealed()            {}
func (Offer) sealed()                {}
func (Answer) sealed()               {}
func (ICECandidate) sealed()         {}
func (TimerStart) sealed()           {}
func (TimerPause) sealed()           {}
func (TimerResume) sealed()          {}
func (TimerReset) sealed()           {}
func (TimerSet) sealed()             {}
func (TimerFinish) sealed()          {}
func (ChatMessage) sealed()          {}
func (Ping) sealed()                 {}
func (Pong) sealed()                 {}
func (ExistingParticipants) sealed() {}
func (UserJoined) sealed()           {}
func (UserLeft) sealed()             {}
func (RoomMeta) sealed()             {}
func (TimerSync) sealed()            {}
func (TimerStarted) sealed()         {}
func (TimerPaused) sealed()          {}
func (TimerResumed) sealed()         {}
