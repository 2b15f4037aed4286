package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("protocol: malformed envelope")
	ErrUnknownKind = errors.New("protocol: unknown message type")
	ErrInvalid     = errors.New("protocol: invalid payload")
)

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var decoders = map[Kind]func() Message{
	KindJoinRoom:             func() Message { return &JoinRoom{} },
	KindLeaveRoom:            func() Message { return &LeaveRoom{} },
	KindOffer:                func() Message { return &Offer{} },
	KindAnswer:               func() Message { return &Answer{} },
	KindICECandidate:         func() Message { return &ICECandidate{} },
	KindTimerStart:           func() Message { return &TimerStart{} },
	KindTimerPause:           func() Message { return &TimerPause{} },
	KindTimerResume:          func() Message { return &TimerResume{} },
	KindTimerReset:           func() Message { return &TimerReset{} },
	KindTimerSet:             func() Message { return &TimerSet{} },
	KindTimerFinish:          func() Message { return &TimerFinish{} },
	KindChat:                 func() Message { return &ChatMessage{} },
	KindPing:                 func() Message { return &Ping{} },
	KindPong:                 func() Message { return &Pong{} },
	KindExistingParticipants: func() Message { return &ExistingParticipants{} },
	KindUserJoined:           func() Message { return &UserJoined{} },
	KindUserLeft:             func() Message { return &UserLeft{} },
	KindRoomMeta:             func() Message { return &RoomMeta{} },
	KindTimerSync:            func() Message { return &TimerSync{} },
	KindTimerStarted:         func() Message { return &TimerStarted{} },
	KindTimerPaused:          func() Message { return &TimerPaused{} },
	KindTimerResumed:         func() Message { return &TimerResumed{} },
}

// Encode wraps m in its envelope.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{Type: m.Kind(), Payload: payload})
}

// Decode parses one envelope. The returned Message is always a pointer to
// one of this package's payload types, e.g. *JoinRoom.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	newMsg, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
	m := newMsg()
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return m, nil
	}
	if err := json.Unmarshal(env.Payload, m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return m, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks m against its field constraints.
func Validate(m Message) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, m.Kind(), err)
	}
	return nil
}

// Kinds lists every known message type.
func Kinds() []Kind {
	out := make([]Kind, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	return out
}
