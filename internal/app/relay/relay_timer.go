package relay

import (
	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog/log"
)

// updateTimer applies fn to the sender's room timer and, when it changed,
// broadcasts the message built from the new state to the whole room.
func (r *Relay) updateTimer(id core.ConnID, op string, fn func(*domain.TimerState) bool, notify func(domain.TimerState) protocol.Message) {
	room, ok := r.memberRoom(id)
	if !ok {
		log.Debug().Str("module", "relay").Str("conn", string(id)).Str("op", op).Msg("timer control from non-member")
		return
	}
	state, changed := room.UpdateTimer(fn)
	if !changed {
		return
	}
	log.Info().
		Str("module", "relay").
		Str("room", string(room.Code())).
		Str("conn", string(id)).
		Str("op", op).
		Str("mode", string(state.Mode)).
		Bool("running", state.IsRunning).
		Float64("remaining", state.TimeRemaining).
		Msg("timer updated")
	r.broadcast(room, "", notify(state))
}

func (r *Relay) timerStart(id core.ConnID, m *protocol.TimerStart) {
	mode, _ := domain.ParseTimerMode(m.Mode)
	now := r.now()
	r.updateTimer(id, "start", func(ts *domain.TimerState) bool {
		ts.Start(now, mode, m.Duration, m.BreakDuration)
		return true
	}, func(s domain.TimerState) protocol.Message { return protocol.TimerStarted{TimerState: s} })
}

func (r *Relay) timerPause(id core.ConnID) {
	now := r.now()
	r.updateTimer(id, "pause", func(ts *domain.TimerState) bool {
		return ts.Pause(now)
	}, func(s domain.TimerState) protocol.Message { return protocol.TimerPaused{TimeRemaining: s.TimeRemaining} })
}

func (r *Relay) timerResume(id core.ConnID) {
	now := r.now()
	r.updateTimer(id, "resume", func(ts *domain.TimerState) bool {
		return ts.Resume(now)
	}, func(s domain.TimerState) protocol.Message { return protocol.TimerResumed{TimerState: s} })
}

func (r *Relay) timerReset(id core.ConnID) {
	r.updateTimer(id, "reset", func(ts *domain.TimerState) bool {
		ts.Reset()
		return true
	}, func(domain.TimerState) protocol.Message { return protocol.TimerReset{} })
}

func (r *Relay) timerSet(id core.ConnID, m *protocol.TimerSet) {
	r.updateTimer(id, "set", func(ts *domain.TimerState) bool {
		return ts.Set(m.Duration, m.BreakDuration)
	}, func(s domain.TimerState) protocol.Message { return protocol.TimerSync{TimerState: s} })
}

func (r *Relay) timerFinish(id core.ConnID) {
	now := r.now()
	r.updateTimer(id, "finish", func(ts *domain.TimerState) bool {
		ts.Finish(now)
		return true
	}, func(s domain.TimerState) protocol.Message { return protocol.TimerStarted{TimerState: s} })
}
