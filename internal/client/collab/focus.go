package collab

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type FocusState string

const (
	Focused    FocusState = "focused"
	Neutral    FocusState = "neutral"
	Distracted FocusState = "distracted"
)

// Metrics are the per-second focus counters of one session.
type Metrics struct {
	FocusedSeconds    int64
	NeutralSeconds    int64
	DistractedSeconds int64
	TimesLeftApp      int
	TimesTalked       int
	TimesMuted        int
}

// Report fills a SessionReport from m.
func (m Metrics) Report(sessionID int64, duration time.Duration, pomodoros int) SessionReport {
	return SessionReport{
		SessionID:             sessionID,
		DurationSeconds:       int64(duration / time.Second),
		PomodorosCompleted:    pomodoros,
		Role:                  string(Neutral),
		TimeFocusedSeconds:    m.FocusedSeconds,
		TimeNeutralSeconds:    m.NeutralSeconds,
		TimeDistractedSeconds: m.DistractedSeconds,
		TimesLeftApp:          m.TimesLeftApp,
		TimesTalked:           m.TimesTalked,
		TimesMuted:            m.TimesMuted,
	}
}

// FocusTracker samples the participant's presence once a second.
//
// Hidden wins over everything and counts as distracted. Otherwise an
// active camera is focused and anything else neutral. Every sample taken
// while hidden counts a left-app, every sample with only the mic active
// counts a talk.
type FocusTracker struct {
	clock clockwork.Clock

	mu      sync.Mutex
	hidden  bool
	camera  bool
	mic     bool
	metrics Metrics
}

func NewFocusTracker(clock clockwork.Clock) *FocusTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FocusTracker{clock: clock}
}

func (f *FocusTracker) SetHidden(hidden bool) {
	f.mu.Lock()
	f.hidden = hidden
	f.mu.Unlock()
}

func (f *FocusTracker) SetCamera(on bool) {
	f.mu.Lock()
	f.camera = on
	f.mu.Unlock()
}

// SetMic records the microphone state. Turning an active mic off counts as
// muting.
func (f *FocusTracker) SetMic(on bool) {
	f.mu.Lock()
	if f.mic && !on {
		f.metrics.TimesMuted++
	}
	f.mic = on
	f.mu.Unlock()
}

// Sample takes one reading and returns the state it was counted as.
func (f *FocusTracker) Sample() FocusState {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.hidden:
		f.metrics.TimesLeftApp++
		f.metrics.DistractedSeconds++
		return Distracted
	case f.camera:
		f.metrics.FocusedSeconds++
		return Focused
	case f.mic:
		f.metrics.TimesTalked++
		f.metrics.NeutralSeconds++
		return Neutral
	default:
		f.metrics.NeutralSeconds++
		return Neutral
	}
}

func (f *FocusTracker) Metrics() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

// Run samples every second until ctx ends.
func (f *FocusTracker) Run(ctx context.Context) error {
	t := f.clock.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.Chan():
			f.Sample()
		}
	}
}
