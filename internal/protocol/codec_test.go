package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
)

func TestDecodeJoinRoom(t *testing.T) {
	m, err := Decode([]byte(`{"type":"join-room","payload":{"roomCode":"AB12CD","userId":"u-1","userName":"Ann"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	join, ok := m.(*JoinRoom)
	if !ok {
		t.Fatalf("decoded %T, want *JoinRoom", m)
	}
	if join.RoomCode != "AB12CD" || join.UserID != "u-1" || join.UserName != "Ann" {
		t.Errorf("join = %+v", join)
	}
	if err := Validate(join); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDecodeKeepsOpaquePayload(t *testing.T) {
	raw := `{"type":"webrtc-offer","payload":{"offer":{"type":"offer","sdp":"v=0\r\n"},"targetId":"c-2"}}`
	m, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	offer := m.(*Offer)
	if offer.TargetID != "c-2" {
		t.Errorf("targetId = %q", offer.TargetID)
	}
	if got := string(offer.Offer); got != `{"type":"offer","sdp":"v=0\r\n"}` {
		t.Errorf("offer = %s", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"not json", `hello`, ErrMalformed},
		{"unknown type", `{"type":"teleport","payload":{}}`, ErrUnknownKind},
		{"missing type", `{"payload":{}}`, ErrUnknownKind},
		{"bad payload", `{"type":"join-room","payload":"AB12"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeWithoutPayload(t *testing.T) {
	m, err := Decode([]byte(`{"type":"timer-pause"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := m.(*TimerPause); !ok {
		t.Errorf("decoded %T, want *TimerPause", m)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	ts := domain.NewTimerState(domain.DefaultTimerDurations())
	data, err := Encode(TimerSync{TimerState: ts})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "timer-sync" {
		t.Errorf("type = %q", got.Type)
	}
	if got.Payload["mode"] != "work" || got.Payload["workDuration"] != float64(2700) {
		t.Errorf("payload = %v", got.Payload)
	}
	if _, ok := got.Payload["startedAt"]; ok {
		t.Error("stopped timer carries startedAt")
	}
}

func TestEncodeExistingParticipants(t *testing.T) {
	data, err := Encode(ExistingParticipants{Participants: []core.ParticipantDTO{}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"participants":[]`) {
		t.Errorf("empty list not encoded as []: %s", data)
	}
}

func TestEveryKindDecodes(t *testing.T) {
	for _, k := range Kinds() {
		m, err := Decode([]byte(`{"type":"` + string(k) + `","payload":{}}`))
		if err != nil {
			t.Errorf("Decode(%s): %v", k, err)
			continue
		}
		if m.Kind() != k {
			t.Errorf("Decode(%s) produced kind %s", k, m.Kind())
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"join ok", &JoinRoom{RoomCode: "AB12CD"}, true},
		{"join empty code", &JoinRoom{}, false},
		{"join code not alphanumeric", &JoinRoom{RoomCode: "AB-12"}, false},
		{"join code too long", &JoinRoom{RoomCode: "ABCDEFGHIJKLMNOPQ"}, false},
		{"start unknown mode", &TimerStart{Mode: "nap"}, false},
		{"start alias", &TimerStart{Mode: "pomodoro"}, true},
		{"start negative", &TimerStart{Duration: -1}, false},
		{"start one day", &TimerStart{Duration: 86400, BreakDuration: 86400}, true},
		{"start beyond a day", &TimerStart{Duration: 1e10}, false},
		{"start break beyond a day", &TimerStart{BreakDuration: 86401}, false},
		{"set zero", &TimerSet{}, false},
		{"set beyond a day", &TimerSet{Duration: 1e10}, false},
		{"set break beyond a day", &TimerSet{Duration: 1500, BreakDuration: 1e10}, false},
		{"set ok", &TimerSet{Duration: 1500}, true},
		{"chat empty", &ChatMessage{}, false},
		{"chat ok", &ChatMessage{Message: "hi"}, true},
		{"offer without description", &Offer{TargetID: "c-1"}, false},
		{"ping", &Ping{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msg)
			if (err == nil) != tt.ok {
				t.Errorf("Validate = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want wrapping ErrInvalid", err)
			}
		})
	}
}
