// Package relay routes real-time messages between the participants of a
// room. One goroutine owns every state change: connects, disconnects and
// inbound messages are queued to an inbox and handled to completion in
// arrival order, so a room never observes two operations interleaved.
package relay

import (
	"context"
	"time"

	"github.com/dkeye/grinder/internal/app"
	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const inboxSize = 256

type connectEvent struct {
	id          core.ConnID
	conn        core.SignalConnection
	clientToken string
	cancel      context.CancelFunc
}

type disconnectEvent struct {
	id core.ConnID
}

type messageEvent struct {
	id  core.ConnID
	msg protocol.Message
}

type Relay struct {
	Rooms  core.RoomStore
	Conns  *app.Registry
	Policy app.Policy
	Clock  clockwork.Clock

	inbox chan any
	done  chan struct{}
}

func New(rooms core.RoomStore, conns *app.Registry, policy app.Policy, clock clockwork.Clock) *Relay {
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		Rooms:  rooms,
		Conns:  conns,
		Policy: policy,
		Clock:  clock,
		inbox:  make(chan any, inboxSize),
		done:   make(chan struct{}),
	}
}

// Run processes the inbox until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	defer close(r.done)
	log.Info().Str("module", "relay").Msg("relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay").Msg("relay stopped")
			return ctx.Err()
		case ev := <-r.inbox:
			r.handle(ev)
		}
	}
}

// Connect registers a live connection. cancel must stop the connection's
// pumps; the relay calls it to disconnect slow participants.
func (r *Relay) Connect(id core.ConnID, conn core.SignalConnection, clientToken string, cancel context.CancelFunc) {
	r.enqueue(connectEvent{id: id, conn: conn, clientToken: clientToken, cancel: cancel})
}

// Disconnect is called once by the transport when a connection is gone.
func (r *Relay) Disconnect(id core.ConnID) {
	r.enqueue(disconnectEvent{id: id})
}

// Deliver decodes one inbound frame and queues it. Frames that fail to
// decode or validate are dropped.
func (r *Relay) Deliver(id core.ConnID, data []byte) {
	ev, ok := decodeEvent(id, data)
	if !ok {
		return
	}
	r.enqueue(ev)
}

func decodeEvent(id core.ConnID, data []byte) (messageEvent, bool) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Debug().Str("module", "relay").Str("conn", string(id)).Err(err).Msg("dropping frame")
		return messageEvent{}, false
	}
	if err := protocol.Validate(msg); err != nil {
		log.Debug().Str("module", "relay").Str("conn", string(id)).Err(err).Msg("dropping frame")
		return messageEvent{}, false
	}
	return messageEvent{id: id, msg: msg}, true
}

func (r *Relay) enqueue(ev any) {
	select {
	case r.inbox <- ev:
	case <-r.done:
	}
}

func (r *Relay) handle(ev any) {
	switch ev := ev.(type) {
	case connectEvent:
		r.Conns.Bind(ev.id, ev.conn, ev.clientToken, ev.cancel)
	case disconnectEvent:
		r.leave(ev.id)
		r.Conns.Unbind(ev.id)
	case messageEvent:
		r.dispatch(ev.id, ev.msg)
	}
}

func (r *Relay) dispatch(id core.ConnID, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.JoinRoom:
		r.join(id, m)
	case *protocol.LeaveRoom:
		r.leave(id)
	case *protocol.Offer:
		r.forward(id, m.TargetID, &protocol.Offer{Offer: m.Offer, SourceID: id})
	case *protocol.Answer:
		r.forward(id, m.TargetID, &protocol.Answer{Answer: m.Answer, SourceID: id})
	case *protocol.ICECandidate:
		r.forward(id, m.TargetID, &protocol.ICECandidate{Candidate: m.Candidate, SourceID: id})
	case *protocol.TimerStart:
		r.timerStart(id, m)
	case *protocol.TimerPause:
		r.timerPause(id)
	case *protocol.TimerResume:
		r.timerResume(id)
	case *protocol.TimerReset:
		r.timerReset(id)
	case *protocol.TimerSet:
		r.timerSet(id, m)
	case *protocol.TimerFinish:
		r.timerFinish(id)
	case *protocol.ChatMessage:
		r.chat(id, m)
	case *protocol.Ping:
		r.send(nil, id, protocol.Pong{})
	default:
		log.Debug().Str("module", "relay").Str("conn", string(id)).Str("type", string(msg.Kind())).Msg("ignoring server-side message type")
	}
}

func (r *Relay) now() time.Time { return r.Clock.Now() }

// send delivers msg to one connection. room may be nil when the
// connection is not in a room.
func (r *Relay) send(room *core.Room, id core.ConnID, msg protocol.Message) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Str("module", "relay").Err(err).Msg("encode failed")
		return
	}
	r.sendFrame(room, id, frame)
}

// broadcast delivers msg to every participant of room except skip. An empty
// skip reaches everyone.
func (r *Relay) broadcast(room *core.Room, skip core.ConnID, msg protocol.Message) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Str("module", "relay").Err(err).Msg("encode failed")
		return
	}
	for _, p := range room.Participants() {
		if p.ConnID == skip {
			continue
		}
		r.sendFrame(room, p.ConnID, frame)
	}
}

func (r *Relay) sendFrame(room *core.Room, id core.ConnID, frame core.Frame) {
	conn, ok := r.Conns.Conn(id)
	if !ok || conn == nil {
		return
	}
	if err := conn.TrySend(frame); err == nil {
		return
	}
	switch r.Policy.OnBackPressure(room, id) {
	case app.KickMember:
		log.Warn().Str("module", "relay").Str("conn", string(id)).Msg("send buffer full, disconnecting")
		r.Conns.Cancel(id)
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "relay").Str("conn", string(id)).Msg("send buffer full, frame dropped")
	}
}
