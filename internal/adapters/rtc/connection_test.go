package rtc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dkeye/grinder/internal/client/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

func newTestDialer(t *testing.T) *Dialer {
	t.Helper()
	d, err := NewDialer(context.Background(), webrtc.Configuration{}, media.NewRouter(zerolog.Nop(), nil), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	return d
}

func TestDefaultWebRTCConfig(t *testing.T) {
	cfg := DefaultWebRTCConfig()
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != defaultSTUN {
		t.Errorf("default ICE servers = %+v", cfg.ICEServers)
	}
	cfg = DefaultWebRTCConfig("stun:a:3478", "stun:b:3478")
	if got := cfg.ICEServers[0].URLs; len(got) != 2 || got[1] != "stun:b:3478" {
		t.Errorf("custom ICE servers = %v", got)
	}
}

func TestCallerOffer(t *testing.T) {
	c, err := newTestDialer(t).Dial("B", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	offer, err := c.CreateOffer(context.Background())
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(offer, &sd); err != nil || sd.Type != webrtc.SDPTypeOffer || sd.SDP == "" {
		t.Fatalf("offer = %s (%v)", offer, err)
	}
}

// A browser offers sendrecv audio; the receive-only side answers it.
func TestAnswerBrowserOffer(t *testing.T) {
	browser, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer browser.Close()
	if _, err := browser.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	}); err != nil {
		t.Fatalf("AddTransceiverFromKind: %v", err)
	}
	offer, err := browser.CreateOffer(nil)
	if err != nil {
		t.Fatalf("browser CreateOffer: %v", err)
	}
	if err := browser.SetLocalDescription(offer); err != nil {
		t.Fatalf("browser SetLocalDescription: %v", err)
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		t.Fatal(err)
	}

	callee, err := newTestDialer(t).Dial("A", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer callee.Close()
	if err := callee.SetRemoteDescription(raw); err != nil {
		t.Fatalf("SetRemoteDescription: %v", err)
	}
	answer, err := callee.CreateAnswer(context.Background())
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}

	var sd webrtc.SessionDescription
	if err := json.Unmarshal(answer, &sd); err != nil || sd.Type != webrtc.SDPTypeAnswer {
		t.Fatalf("answer = %s (%v)", answer, err)
	}
	if err := browser.SetRemoteDescription(sd); err != nil {
		t.Fatalf("browser SetRemoteDescription: %v", err)
	}
}

func TestMalformedInputsRejected(t *testing.T) {
	c, err := newTestDialer(t).Dial("B", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.SetRemoteDescription(json.RawMessage(`not json`)); err == nil {
		t.Error("malformed description accepted")
	}
	if err := c.AddICECandidate(json.RawMessage(`{`)); err == nil {
		t.Error("malformed candidate accepted")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
