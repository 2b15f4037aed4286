// Package media hands the tracks received from remote participants to the
// local consumers that present them.
package media

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/dkeye/grinder/internal/core"
	"github.com/rs/zerolog"
)

// SinkFactory returns the named sinks a newly attached track should feed.
type SinkFactory func(remote core.ConnID, track Track) map[string]Sink

type TrackInfo struct {
	Remote  core.ConnID
	TrackID string
	Kind    string
	Sinks   int
}

type Router struct {
	log     zerolog.Logger
	factory SinkFactory

	mu       sync.RWMutex
	byRemote map[core.ConnID]map[string]*forwarder
	muted    map[core.ConnID]bool
}

func NewRouter(logger zerolog.Logger, factory SinkFactory) *Router {
	return &Router{
		log:      logger.With().Str("module", "media").Logger(),
		factory:  factory,
		byRemote: make(map[core.ConnID]map[string]*forwarder),
		muted:    make(map[core.ConnID]bool),
	}
}

// Attach starts forwarding track until ctx ends, the track ends or the
// remote is detached. A track id seen before replaces the old forwarder.
func (r *Router) Attach(ctx context.Context, remote core.ConnID, track Track) {
	logger := r.log.With().
		Str("peer", string(remote)).
		Str("track_id", track.ID()).
		Str("kind", track.Kind().String()).
		Logger()

	fctx, cancel := context.WithCancel(ctx)
	f := newForwarder(track, cancel)
	if r.factory != nil {
		for name, s := range r.factory(remote, track) {
			f.addSink(name, NewOutSink(s))
		}
	}

	r.mu.Lock()
	tracks, ok := r.byRemote[remote]
	if !ok {
		tracks = make(map[string]*forwarder)
		r.byRemote[remote] = tracks
	}
	if old, ok := tracks[track.ID()]; ok {
		logger.Info().Msg("replacing forwarder for track")
		old.markAllDelete()
		old.cancel()
	}
	tracks[track.ID()] = f
	if r.muted[remote] {
		f.setMuted(true)
	}
	r.mu.Unlock()

	logger.Info().Msg("track attached")
	go f.loop(fctx, &logger)
}

// AddSink feeds every current track of remote into s as well.
func (r *Router) AddSink(remote core.ConnID, name string, s Sink) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.byRemote[remote] {
		out := NewOutSink(s)
		if r.muted[remote] {
			out.MarkMuted()
		}
		f.addSink(name, out)
	}
}

// Detach stops every forwarder of remote.
func (r *Router) Detach(remote core.ConnID) {
	r.mu.Lock()
	tracks := r.byRemote[remote]
	delete(r.byRemote, remote)
	delete(r.muted, remote)
	r.mu.Unlock()
	for _, f := range tracks {
		f.markAllDelete()
		f.cancel()
	}
	if len(tracks) > 0 {
		r.log.Info().Str("peer", string(remote)).Int("tracks", len(tracks)).Msg("remote detached")
	}
}

// SetMuted stops or resumes delivery of remote's packets without tearing
// anything down.
func (r *Router) SetMuted(remote core.ConnID, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted[remote] = muted
	for _, f := range r.byRemote[remote] {
		f.setMuted(muted)
	}
}

func (r *Router) Tracks() []TrackInfo {
	r.mu.RLock()
	var out []TrackInfo
	for remote, tracks := range r.byRemote {
		for id, f := range tracks {
			out = append(out, TrackInfo{Remote: remote, TrackID: id, Kind: f.src.Kind().String(), Sinks: f.sinkCount()})
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b TrackInfo) int {
		return cmp.Or(cmp.Compare(a.Remote, b.Remote), cmp.Compare(a.TrackID, b.TrackID))
	})
	return out
}

// Close detaches everything.
func (r *Router) Close() {
	r.mu.RLock()
	remotes := make([]core.ConnID, 0, len(r.byRemote))
	for remote := range r.byRemote {
		remotes = append(remotes, remote)
	}
	r.mu.RUnlock()
	for _, remote := range remotes {
		r.Detach(remote)
	}
}
