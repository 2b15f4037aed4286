package session

import (
	"context"
	"time"
)

const endTimeout = 10 * time.Second

// track records a collaborator session for the lifetime of ctx. Service
// failures are logged and never end the room session.
func (s *Session) track(ctx context.Context) {
	api := s.opts.Collab
	room, err := api.Room(ctx, s.opts.Room)
	if err != nil {
		s.log.Warn().Err(err).Msg("room lookup failed, session not tracked")
		return
	}
	id, err := api.StartSession(ctx, room.ID, s.opts.PomodoroMinutes)
	if err != nil {
		s.log.Warn().Err(err).Msg("session start failed, session not tracked")
		return
	}

	_ = s.focus.Run(ctx)

	var duration time.Duration
	if started := s.StartedAt(); started > 0 {
		duration = max(0, s.clock.Since(time.UnixMilli(started)))
	}
	report := s.focus.Metrics().Report(id, duration, s.timer.Completed())

	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endTimeout)
	defer cancel()
	if err := api.EndSession(endCtx, report); err != nil {
		s.log.Warn().Err(err).Int64("session", id).Msg("session end failed")
	}
}
