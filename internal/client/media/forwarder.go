package media

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Track is the readable side of a remote media track. *webrtc.TrackRemote
// satisfies it.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// forwarder pumps one remote track into its sinks.
type forwarder struct {
	src Track

	mu    sync.RWMutex
	sinks map[string]*OutSink

	cancel context.CancelFunc
	done   chan struct{}
}

func newForwarder(src Track, cancel context.CancelFunc) *forwarder {
	return &forwarder{
		src:    src,
		sinks:  make(map[string]*OutSink),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (f *forwarder) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("forwarder ctx done, dropping sinks")
			f.markAllDelete()
			return
		default:
		}
		pkt, _, err := f.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("track read ended")
			f.markAllDelete()
			return
		}
		f.forward(pkt, logger)
	}
}

func (f *forwarder) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	f.mu.RLock()
	snapshot := maps.Clone(f.sinks)
	f.mu.RUnlock()

	var dirty []string
	for name, out := range snapshot {
		switch out.State() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateMuted:
		case SinkStateOk:
			if err := out.Sink.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("sink", name).Msg("sink write failed, removing")
				out.MarkDelete()
				dirty = append(dirty, name)
			}
		}
	}
	if len(dirty) > 0 {
		f.cleanupDeleted(dirty)
	}
}

func (f *forwarder) cleanupDeleted(dirty []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range dirty {
		delete(f.sinks, name)
	}
}

func (f *forwarder) markAllDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, out := range f.sinks {
		out.MarkDelete()
	}
}

func (f *forwarder) addSink(name string, out *OutSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[name] = out
}

func (f *forwarder) setMuted(muted bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, out := range f.sinks {
		if out.State() == SinkStateDelete {
			continue
		}
		if muted {
			out.MarkMuted()
		} else {
			out.MarkOk()
		}
	}
}

func (f *forwarder) sinkCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}
