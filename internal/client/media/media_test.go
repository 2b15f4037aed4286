package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/grinder/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type fakeTrack struct {
	id      string
	kind    webrtc.RTPCodecType
	packets chan *rtp.Packet
}

func newFakeTrack(id string, kind webrtc.RTPCodecType) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, packets: make(chan *rtp.Packet, 16)}
}

func (t *fakeTrack) ID() string                { return t.id }
func (t *fakeTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-t.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return p, nil, nil
}

func packet(seq uint16, size int) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: make([]byte, size)}
}

type recordingSink struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (s *recordingSink) WriteRTP(p *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.seqs = append(s.seqs, p.SequenceNumber)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seqs)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRouterFeedsStats(t *testing.T) {
	stats := NewStats()
	r := NewRouter(zerolog.Nop(), stats.Factory())
	track := newFakeTrack("audio-1", webrtc.RTPCodecTypeAudio)
	r.Attach(context.Background(), "A", track)

	track.packets <- packet(10, 100)
	track.packets <- packet(11, 100)
	track.packets <- packet(14, 50)

	waitFor(t, "three packets", func() bool {
		snap := stats.Snapshot()
		return len(snap) == 1 && snap[0].Packets == 3
	})
	got := stats.Snapshot()[0]
	if got.Remote != "A" || got.Kind != "audio" || got.Bytes != 250 || got.Lost != 2 || got.LastSeq != 14 {
		t.Errorf("stats = %+v", got)
	}

	infos := r.Tracks()
	if len(infos) != 1 || infos[0].TrackID != "audio-1" || infos[0].Sinks != 1 {
		t.Errorf("tracks = %+v", infos)
	}
}

func TestRouterExtraSink(t *testing.T) {
	r := NewRouter(zerolog.Nop(), nil)
	track := newFakeTrack("video-1", webrtc.RTPCodecTypeVideo)
	r.Attach(context.Background(), "A", track)

	sink := &recordingSink{}
	r.AddSink("A", "recorder", sink)
	track.packets <- packet(1, 10)
	waitFor(t, "first packet", func() bool { return sink.count() == 1 })
}

func TestForwarderMute(t *testing.T) {
	logger := zerolog.Nop()
	f := newForwarder(newFakeTrack("a", webrtc.RTPCodecTypeAudio), func() {})
	sink := &recordingSink{}
	f.addSink("s", NewOutSink(sink))

	f.setMuted(true)
	f.forward(packet(1, 1), &logger)
	if sink.count() != 0 {
		t.Fatal("muted sink received a packet")
	}
	f.setMuted(false)
	f.forward(packet(2, 1), &logger)
	if sink.count() != 1 || sink.seqs[0] != 2 {
		t.Errorf("seqs = %v, want [2]", sink.seqs)
	}
	if f.sinkCount() != 1 {
		t.Errorf("sinks = %d, muting removed a sink", f.sinkCount())
	}
}

func TestRouterDropsFailingSink(t *testing.T) {
	r := NewRouter(zerolog.Nop(), func(core.ConnID, Track) map[string]Sink {
		return map[string]Sink{"broken": &recordingSink{err: errors.New("gone")}}
	})
	track := newFakeTrack("a", webrtc.RTPCodecTypeAudio)
	r.Attach(context.Background(), "A", track)

	track.packets <- packet(1, 1)
	waitFor(t, "sink removal", func() bool {
		infos := r.Tracks()
		return len(infos) == 1 && infos[0].Sinks == 0
	})
}

func TestRouterDetach(t *testing.T) {
	r := NewRouter(zerolog.Nop(), nil)
	track := newFakeTrack("a", webrtc.RTPCodecTypeAudio)
	r.Attach(context.Background(), "A", track)
	r.Attach(context.Background(), "B", newFakeTrack("b", webrtc.RTPCodecTypeAudio))

	r.Detach("A")
	infos := r.Tracks()
	if len(infos) != 1 || infos[0].Remote != "B" {
		t.Errorf("tracks after detach = %+v", infos)
	}
	close(track.packets)

	r.Close()
	if len(r.Tracks()) != 0 {
		t.Error("tracks left after Close")
	}
}

func TestRouterMuteAppliesToLaterTracks(t *testing.T) {
	r := NewRouter(zerolog.Nop(), func(core.ConnID, Track) map[string]Sink {
		return map[string]Sink{"rec": &recordingSink{}}
	})
	r.SetMuted("A", true)
	track := newFakeTrack("a", webrtc.RTPCodecTypeAudio)
	r.Attach(context.Background(), "A", track)
	defer r.Close()
	defer close(track.packets)

	state := func() SinkState {
		r.mu.RLock()
		defer r.mu.RUnlock()
		f := r.byRemote["A"]["a"]
		f.mu.RLock()
		defer f.mu.RUnlock()
		return f.sinks["rec"].State()
	}
	if got := state(); got != SinkStateMuted {
		t.Fatalf("sink state after attach = %d, want muted", got)
	}
	r.SetMuted("A", false)
	if got := state(); got != SinkStateOk {
		t.Errorf("sink state after unmute = %d, want ok", got)
	}
}
