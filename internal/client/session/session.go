// Package session runs one participant in one room: it joins over the
// signaling connection, keeps a peer link to every other participant,
// replays the shared timer and optionally reports focus time to the
// collaborator service.
package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/grinder/internal/client/collab"
	"github.com/dkeye/grinder/internal/client/media"
	"github.com/dkeye/grinder/internal/client/negotiate"
	"github.com/dkeye/grinder/internal/client/timersync"
	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/domain"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrDisconnected = errors.New("session: signaling connection closed")

// Conn is the signaling channel to the relay. *wsclient.Client satisfies it.
type Conn interface {
	Send(msg protocol.Message) error
	Incoming() <-chan protocol.Message
	Close() error
}

type Options struct {
	Room     domain.RoomCode
	UserID   domain.UserID
	UserName string
	Clock    clockwork.Clock

	// Media is closed when the session ends.
	Media *media.Router

	// Collab enables session tracking when set.
	Collab          *collab.Client
	PomodoroMinutes int
}

type Session struct {
	conn  Conn
	opts  Options
	clock clockwork.Clock
	log   zerolog.Logger

	orch  *negotiate.Orchestrator
	timer *timersync.Synchronizer
	focus *collab.FocusTracker

	mu           sync.Mutex
	participants map[core.ConnID]core.ParticipantDTO
	startedAt    int64
	onChat       []func(protocol.ChatMessage)

	closeOnce sync.Once
}

func New(conn Conn, dialer negotiate.Dialer, opts Options, logger zerolog.Logger) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PomodoroMinutes <= 0 {
		opts.PomodoroMinutes = domain.DefaultWorkDuration / 60
	}
	log := logger.With().Str("room", string(opts.Room)).Logger()
	s := &Session{
		conn:         conn,
		opts:         opts,
		clock:        opts.Clock,
		log:          log.With().Str("module", "session").Logger(),
		orch:         negotiate.NewOrchestrator(dialer, conn, log),
		focus:        collab.NewFocusTracker(opts.Clock),
		participants: make(map[core.ConnID]core.ParticipantDTO),
	}
	s.timer = timersync.New(opts.Clock, log, func() error {
		return conn.Send(&protocol.TimerFinish{RoomCode: opts.Room})
	})
	return s
}

func (s *Session) Timer() *timersync.Synchronizer { return s.timer }

func (s *Session) Focus() *collab.FocusTracker { return s.focus }

func (s *Session) Links() int { return s.orch.Len() }

// OnChat registers fn for every chat message relayed in the room,
// including this participant's own.
func (s *Session) OnChat(fn func(protocol.ChatMessage)) {
	s.mu.Lock()
	s.onChat = append(s.onChat, fn)
	s.mu.Unlock()
}

// Participants lists the other participants currently in the room.
func (s *Session) Participants() []core.ParticipantDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.SortedFunc(maps.Values(s.participants), func(a, b core.ParticipantDTO) int {
		return cmp.Compare(a.ConnID, b.ConnID)
	})
}

// StartedAt is the room's creation time in unix ms as announced by the
// relay, or zero before the announcement.
func (s *Session) StartedAt() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Run joins the room and processes relay messages until ctx ends or the
// connection drops. Cancelling ctx leaves the room and returns nil.
func (s *Session) Run(ctx context.Context) error {
	join := &protocol.JoinRoom{RoomCode: s.opts.Room, UserID: s.opts.UserID, UserName: s.opts.UserName}
	if err := s.conn.Send(join); err != nil {
		return fmt.Errorf("join %s: %w", s.opts.Room, err)
	}
	s.log.Info().Str("user", string(s.opts.UserID)).Msg("join sent")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatch(gctx) })
	if s.opts.Collab != nil {
		g.Go(func() error {
			s.track(gctx)
			return nil
		})
	}
	err := g.Wait()
	s.Close()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close leaves the room and releases every link. Safe to call more than
// once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Send(&protocol.LeaveRoom{RoomCode: s.opts.Room}); err != nil {
			s.log.Debug().Err(err).Msg("leave not sent")
		}
		s.orch.Close()
		s.timer.Close()
		if s.opts.Media != nil {
			s.opts.Media.Close()
		}
		_ = s.conn.Close()
		s.log.Info().Msg("session closed")
	})
}

func (s *Session) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.conn.Incoming():
			if !ok {
				return ErrDisconnected
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Session) handle(ctx context.Context, msg protocol.Message) {
	s.observe(msg)
	if s.orch.Handle(ctx, msg) {
		return
	}
	if s.timer.Handle(msg) {
		return
	}
	switch m := msg.(type) {
	case *protocol.ChatMessage:
		s.mu.Lock()
		fns := s.onChat
		s.mu.Unlock()
		for _, fn := range fns {
			fn(*m)
		}
	case *protocol.RoomMeta:
		s.mu.Lock()
		s.startedAt = m.StartedAt
		s.mu.Unlock()
		s.log.Info().Int("participants", m.ParticipantCount).Msg("room meta")
	case *protocol.Pong:
	default:
		s.log.Debug().Str("type", string(msg.Kind())).Msg("unhandled message")
	}
}

// observe keeps the roster in step with the relay's announcements.
func (s *Session) observe(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch m := msg.(type) {
	case *protocol.ExistingParticipants:
		clear(s.participants)
		for _, p := range m.Participants {
			s.participants[p.ConnID] = p
		}
	case *protocol.UserJoined:
		s.participants[m.ConnID] = core.ParticipantDTO{ConnID: m.ConnID, UserID: m.UserID, UserName: m.UserName}
		s.log.Info().Str("peer", string(m.ConnID)).Str("user", m.UserName).Msg("participant joined")
	case *protocol.UserLeft:
		delete(s.participants, m.ConnID)
		s.log.Info().Str("peer", string(m.ConnID)).Str("user", m.UserName).Msg("participant left")
	}
}
