// Package timersync replays the room timer locally from the snapshots the
// relay broadcasts.
//
// Every client counts down on its own. When a running phase reaches zero
// here, completion callbacks fire and a timer-finish is sent. Several
// clients may reach zero within the same second and each send timer-finish;
// the relay applies them in arrival order, so the room can skip a phase.
// That race is accepted.
package timersync

import (
	"sync"
	"time"

	"github.com/dkeye/grinder/internal/domain"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const tick = time.Second

// View is what a client displays.
type View struct {
	Mode      domain.TimerMode
	Running   bool
	Remaining float64
}

type Synchronizer struct {
	clock  clockwork.Clock
	log    zerolog.Logger
	finish func() error

	mu        sync.Mutex
	view      View
	deadline  time.Time
	stop      chan struct{}
	onTick    []func(View)
	onDone    []func(domain.TimerMode)
	completed int
}

// New returns an idle synchronizer. finish is called once per phase that
// reaches zero locally; it usually sends timer-finish to the relay.
func New(clock clockwork.Clock, logger zerolog.Logger, finish func() error) *Synchronizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synchronizer{
		clock:  clock,
		log:    logger.With().Str("module", "timersync").Logger(),
		finish: finish,
		view:   View{Mode: domain.ModeWork},
	}
}

func (s *Synchronizer) OnTick(fn func(View)) {
	s.mu.Lock()
	s.onTick = append(s.onTick, fn)
	s.mu.Unlock()
}

func (s *Synchronizer) OnComplete(fn func(domain.TimerMode)) {
	s.mu.Lock()
	s.onDone = append(s.onDone, fn)
	s.mu.Unlock()
}

func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Completed reports how many work phases reached zero on this client.
func (s *Synchronizer) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Apply replaces local state with a snapshot.
func (s *Synchronizer) Apply(st domain.TimerState) {
	mode := st.Mode
	if mode == "" {
		mode = domain.ModeWork
	}

	s.mu.Lock()
	s.stopLoop()
	if st.IsRunning {
		now := s.clock.Now()
		rem := st.Remaining(now)
		s.view = View{Mode: mode, Running: true, Remaining: rem}
		s.deadline = now.Add(time.Duration(rem * float64(time.Second)))
		s.startLoop()
	} else {
		s.view = View{Mode: mode, Remaining: max(0, st.TimeRemaining)}
	}
	v, fns := s.view, s.onTick
	s.mu.Unlock()

	s.log.Debug().Str("mode", string(v.Mode)).Bool("running", v.Running).Float64("remaining", v.Remaining).Msg("timer snapshot applied")
	notify(fns, v)
}

// Pause freezes the display at remaining, keeping the current mode.
func (s *Synchronizer) Pause(remaining float64) {
	s.mu.Lock()
	s.stopLoop()
	s.view = View{Mode: s.view.Mode, Remaining: max(0, remaining)}
	v, fns := s.view, s.onTick
	s.mu.Unlock()
	notify(fns, v)
}

// Reset shows a stopped work phase with nothing remaining.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.stopLoop()
	s.view = View{Mode: domain.ModeWork}
	v, fns := s.view, s.onTick
	s.mu.Unlock()
	notify(fns, v)
}

// Handle applies timer broadcasts and reports whether msg was one.
func (s *Synchronizer) Handle(msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.TimerSync:
		s.Apply(m.TimerState)
	case *protocol.TimerStarted:
		s.Apply(m.TimerState)
	case *protocol.TimerResumed:
		s.Apply(m.TimerState)
	case *protocol.TimerPaused:
		s.Pause(m.TimeRemaining)
	case *protocol.TimerReset:
		s.Reset()
	default:
		return false
	}
	return true
}

// Close stops the local countdown.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.stopLoop()
	s.mu.Unlock()
}

// must hold mu
func (s *Synchronizer) startLoop() {
	stop := make(chan struct{})
	s.stop = stop
	go s.loop(stop, s.clock.NewTicker(tick))
}

// must hold mu
func (s *Synchronizer) stopLoop() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *Synchronizer) loop(stop chan struct{}, t clockwork.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			if !s.step(stop) {
				return
			}
		}
	}
}

// step advances the display by one tick. It reports false once the loop
// owning stop should end.
func (s *Synchronizer) step(stop chan struct{}) bool {
	s.mu.Lock()
	if s.stop != stop {
		s.mu.Unlock()
		return false
	}
	rem := max(0, s.deadline.Sub(s.clock.Now()).Seconds())
	s.view.Remaining = rem
	if rem > 0 {
		v, fns := s.view, s.onTick
		s.mu.Unlock()
		notify(fns, v)
		return true
	}

	mode := s.view.Mode
	s.view.Running = false
	if mode == domain.ModeWork {
		s.completed++
	}
	s.stop = nil
	v, fns, done := s.view, s.onTick, s.onDone
	s.mu.Unlock()

	notify(fns, v)
	for _, fn := range done {
		fn(mode)
	}
	s.log.Info().Str("mode", string(mode)).Msg("phase complete")
	if s.finish != nil {
		if err := s.finish(); err != nil {
			s.log.Warn().Err(err).Msg("timer-finish not sent")
		}
	}
	return false
}

func notify(fns []func(View), v View) {
	for _, fn := range fns {
		fn(v)
	}
}
