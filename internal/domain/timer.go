package domain

import "time"

type TimerMode string

const (
	ModeWork  TimerMode = "work"
	ModeBreak TimerMode = "break"
)

// Phase lengths used until a participant configures the room's timer.
const (
	DefaultWorkDuration  = 45 * 60
	DefaultBreakDuration = 10 * 60
)

// ParseTimerMode accepts "work", "break" and the legacy "pomodoro" alias for
// work. An empty or unknown value reports false.
func ParseTimerMode(s string) (TimerMode, bool) {
	switch s {
	case "work", "pomodoro":
		return ModeWork, true
	case "break":
		return ModeBreak, true
	default:
		return "", false
	}
}

func (m TimerMode) Next() TimerMode {
	if m == ModeBreak {
		return ModeWork
	}
	return ModeBreak
}

// TimerDurations holds the configured phase lengths in seconds.
type TimerDurations struct {
	Work  float64
	Break float64
}

func DefaultTimerDurations() TimerDurations {
	return TimerDurations{Work: DefaultWorkDuration, Break: DefaultBreakDuration}
}

// TimerState is a room's shared countdown.
//
// While IsRunning, the true remaining time for any observer is
// TimeRemaining - (now - StartedAt), clamped at zero. Clients replay it
// locally; no per-tick traffic crosses the relay.
//
// Any participant may mutate the timer and the last write wins. There is
// no host or leader for a room.
type TimerState struct {
	Mode          TimerMode `json:"mode"`
	IsRunning     bool      `json:"isRunning"`
	TimeRemaining float64   `json:"timeRemaining"`
	StartedAt     int64     `json:"startedAt,omitempty"` // unix ms, zero while paused
	WorkDuration  float64   `json:"workDuration"`
	BreakDuration float64   `json:"breakDuration"`
}

// NewTimerState returns a stopped timer with nothing remaining.
func NewTimerState(d TimerDurations) TimerState {
	if d.Work <= 0 {
		d.Work = DefaultWorkDuration
	}
	if d.Break <= 0 {
		d.Break = DefaultBreakDuration
	}
	return TimerState{
		Mode:          ModeWork,
		WorkDuration:  d.Work,
		BreakDuration: d.Break,
	}
}

// DurationFor returns the configured length of the given phase.
func (t *TimerState) DurationFor(m TimerMode) float64 {
	if m == ModeBreak {
		return t.BreakDuration
	}
	return t.WorkDuration
}

// Remaining reports the seconds left as seen at now.
func (t *TimerState) Remaining(now time.Time) float64 {
	if !t.IsRunning {
		return t.TimeRemaining
	}
	elapsed := float64(now.UnixMilli()-t.StartedAt) / 1000
	return max(0, t.TimeRemaining-elapsed)
}

// Start begins a phase. An empty mode keeps the current one. A positive
// duration overrides the length of the chosen phase, so starting a break
// with a duration sets the break length and leaves the work length alone.
// A positive breakDuration overrides the break length. Otherwise the last
// known lengths apply.
func (t *TimerState) Start(now time.Time, mode TimerMode, duration, breakDuration float64) {
	if mode == "" {
		mode = t.Mode
	}
	if mode == "" {
		mode = ModeWork
	}
	if duration > 0 {
		if mode == ModeBreak {
			t.BreakDuration = duration
		} else {
			t.WorkDuration = duration
		}
	}
	if breakDuration > 0 {
		t.BreakDuration = breakDuration
	}
	t.Mode = mode
	t.TimeRemaining = t.DurationFor(mode)
	t.IsRunning = true
	t.StartedAt = now.UnixMilli()
}

// Pause freezes the countdown. It reports false if the timer was not running.
func (t *TimerState) Pause(now time.Time) bool {
	if !t.IsRunning {
		return false
	}
	t.TimeRemaining = t.Remaining(now)
	t.IsRunning = false
	t.StartedAt = 0
	return true
}

// Resume restarts a paused countdown. It reports false if already running.
func (t *TimerState) Resume(now time.Time) bool {
	if t.IsRunning {
		return false
	}
	t.IsRunning = true
	t.StartedAt = now.UnixMilli()
	return true
}

// Reset returns to a stopped work phase with nothing remaining. Configured
// durations survive.
func (t *TimerState) Reset() {
	t.Mode = ModeWork
	t.TimeRemaining = 0
	t.IsRunning = false
	t.StartedAt = 0
}

// Set configures the work length (and optionally the break length) without
// starting, leaving a paused work phase of the new length. It reports false
// for a non-positive duration.
func (t *TimerState) Set(duration, breakDuration float64) bool {
	if duration <= 0 {
		return false
	}
	t.Mode = ModeWork
	t.WorkDuration = duration
	if breakDuration > 0 {
		t.BreakDuration = breakDuration
	}
	t.TimeRemaining = duration
	t.IsRunning = false
	t.StartedAt = 0
	return true
}

// Finish flips work and break and starts the next phase from its full
// configured length.
func (t *TimerState) Finish(now time.Time) {
	t.Mode = t.Mode.Next()
	t.TimeRemaining = t.DurationFor(t.Mode)
	t.IsRunning = true
	t.StartedAt = now.UnixMilli()
}
