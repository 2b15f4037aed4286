package session

import (
	"context"
	"fmt"

	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog"
)

func (s *Session) StartTimer(mode string, duration, breakDuration float64) error {
	return s.conn.Send(&protocol.TimerStart{RoomCode: s.opts.Room, Mode: mode, Duration: duration, BreakDuration: breakDuration})
}

func (s *Session) PauseTimer() error {
	return s.conn.Send(&protocol.TimerPause{RoomCode: s.opts.Room})
}

func (s *Session) ResumeTimer() error {
	return s.conn.Send(&protocol.TimerResume{RoomCode: s.opts.Room})
}

func (s *Session) ResetTimer() error {
	return s.conn.Send(&protocol.TimerReset{RoomCode: s.opts.Room})
}

func (s *Session) SetTimer(duration, breakDuration float64) error {
	return s.conn.Send(&protocol.TimerSet{RoomCode: s.opts.Room, Duration: duration, BreakDuration: breakDuration})
}

func (s *Session) FinishTimer() error {
	return s.conn.Send(&protocol.TimerFinish{RoomCode: s.opts.Room})
}

func (s *Session) Chat(text string) error {
	return s.conn.Send(&protocol.ChatMessage{RoomCode: s.opts.Room, Message: text})
}

// Once joins the room, sends msg once the join snapshot has arrived and
// returns the first timer or chat broadcast that follows. It leaves the room
// before returning. Control messages that change nothing get no broadcast,
// so callers bound ctx.
func Once(ctx context.Context, conn Conn, opts Options, msg protocol.Message, logger zerolog.Logger) (protocol.Message, error) {
	log := logger.With().Str("module", "session").Str("room", string(opts.Room)).Logger()
	defer func() {
		if err := conn.Send(&protocol.LeaveRoom{RoomCode: opts.Room}); err != nil {
			log.Debug().Err(err).Msg("leave not sent")
		}
	}()

	join := &protocol.JoinRoom{RoomCode: opts.Room, UserID: opts.UserID, UserName: opts.UserName}
	if err := conn.Send(join); err != nil {
		return nil, fmt.Errorf("join %s: %w", opts.Room, err)
	}

	joined := false
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case in, ok := <-conn.Incoming():
			if !ok {
				return nil, ErrDisconnected
			}
			if !joined {
				// timer-sync closes the join snapshot
				if _, ok := in.(*protocol.TimerSync); ok {
					joined = true
					if err := conn.Send(msg); err != nil {
						return nil, fmt.Errorf("send %s: %w", msg.Kind(), err)
					}
					log.Debug().Str("type", string(msg.Kind())).Msg("control sent")
				}
				continue
			}
			if isBroadcast(in) {
				return in, nil
			}
		}
	}
}

func isBroadcast(m protocol.Message) bool {
	switch m.(type) {
	case *protocol.TimerStarted, *protocol.TimerPaused, *protocol.TimerResumed,
		*protocol.TimerReset, *protocol.TimerSync, *protocol.ChatMessage:
		return true
	}
	return false
}
