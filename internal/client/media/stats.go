package media

import (
	"sync"

	"github.com/dkeye/grinder/internal/core"
	"github.com/pion/rtp"
)

// TrackStats counts what arrived on one remote track.
type TrackStats struct {
	Remote  core.ConnID
	Kind    string
	Packets uint64
	Bytes   uint64
	LastSeq uint16
	Lost    uint64
	started bool
}

// Stats is a Sink family that only counts packets. The headless client
// uses it in place of a renderer.
type Stats struct {
	mu     sync.Mutex
	tracks map[string]*TrackStats
}

func NewStats() *Stats {
	return &Stats{tracks: make(map[string]*TrackStats)}
}

// Sink returns the counting sink for one track.
func (s *Stats) Sink(remote core.ConnID, track Track) Sink {
	key := string(remote) + "/" + track.ID()
	s.mu.Lock()
	if _, ok := s.tracks[key]; !ok {
		s.tracks[key] = &TrackStats{Remote: remote, Kind: track.Kind().String()}
	}
	s.mu.Unlock()
	return statsSink{stats: s, key: key}
}

// Factory is a SinkFactory feeding every track into s.
func (s *Stats) Factory() SinkFactory {
	return func(remote core.ConnID, track Track) map[string]Sink {
		return map[string]Sink{"stats": s.Sink(remote, track)}
	}
}

func (s *Stats) Snapshot() []TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TrackStats, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, *t)
	}
	return out
}

type statsSink struct {
	stats *Stats
	key   string
}

func (ss statsSink) WriteRTP(p *rtp.Packet) error {
	ss.stats.mu.Lock()
	defer ss.stats.mu.Unlock()
	t := ss.stats.tracks[ss.key]
	if t.started {
		if gap := p.SequenceNumber - t.LastSeq; gap > 1 && gap < 1<<15 {
			t.Lost += uint64(gap - 1)
		}
	}
	t.started = true
	t.LastSeq = p.SequenceNumber
	t.Packets++
	t.Bytes += uint64(len(p.Payload))
	return nil
}
