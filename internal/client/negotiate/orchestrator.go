package negotiate

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog"
)

// Signaler sends messages to the relay.
type Signaler interface {
	Send(m protocol.Message) error
}

// Dialer creates the connection behind a new link. onCandidate is called
// for every local candidate the connection gathers.
type Dialer interface {
	Dial(remote core.ConnID, onCandidate func(json.RawMessage)) (Connection, error)
}

// Orchestrator owns the links to every remote participant. The participant
// that joins a room calls everyone already there; existing participants wait
// for the newcomer's offer.
type Orchestrator struct {
	dialer Dialer
	signal Signaler
	log    zerolog.Logger

	mu     sync.Mutex
	links  map[core.ConnID]*PeerLink
	closed bool
}

func NewOrchestrator(dialer Dialer, signal Signaler, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		dialer: dialer,
		signal: signal,
		log:    logger.With().Str("module", "negotiate").Logger(),
		links:  make(map[core.ConnID]*PeerLink),
	}
}

// Handle routes the messages that concern negotiation and reports whether
// msg was one of them.
func (o *Orchestrator) Handle(ctx context.Context, msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.ExistingParticipants:
		for _, p := range m.Participants {
			o.Call(ctx, p.ConnID)
		}
	case *protocol.UserJoined:
		o.getOrCreate(m.ConnID)
	case *protocol.UserLeft:
		o.Drop(m.ConnID)
	case *protocol.Offer:
		o.HandleOffer(ctx, m.SourceID, m.Offer)
	case *protocol.Answer:
		o.HandleAnswer(m.SourceID, m.Answer)
	case *protocol.ICECandidate:
		o.HandleCandidate(m.SourceID, m.Candidate)
	default:
		return false
	}
	return true
}

// Call starts the caller path towards remote.
func (o *Orchestrator) Call(ctx context.Context, remote core.ConnID) {
	link := o.getOrCreate(remote)
	if link == nil {
		return
	}
	link.schedule(func() {
		offer, err := link.CreateOffer(ctx)
		if err != nil {
			o.log.Debug().Err(err).Str("peer", string(remote)).Msg("offer not sent")
			return
		}
		o.send(&protocol.Offer{Offer: offer, TargetID: remote})
	})
}

// HandleOffer runs the callee path, creating the link if needed.
func (o *Orchestrator) HandleOffer(ctx context.Context, remote core.ConnID, offer json.RawMessage) {
	link := o.getOrCreate(remote)
	if link == nil {
		return
	}
	link.schedule(func() {
		answer, err := link.AcceptOffer(ctx, offer)
		if err != nil {
			o.log.Debug().Err(err).Str("peer", string(remote)).Msg("answer not sent")
			return
		}
		o.send(&protocol.Answer{Answer: answer, TargetID: remote})
	})
}

func (o *Orchestrator) HandleAnswer(remote core.ConnID, answer json.RawMessage) {
	link, ok := o.Link(remote)
	if !ok {
		o.log.Debug().Str("peer", string(remote)).Msg("answer for unknown link")
		return
	}
	link.schedule(func() {
		if err := link.AcceptAnswer(answer); err != nil {
			o.log.Debug().Err(err).Str("peer", string(remote)).Msg("answer not applied")
		}
	})
}

// HandleCandidate applies or queues a remote candidate. It does not wait
// for negotiation steps in flight on the link.
func (o *Orchestrator) HandleCandidate(remote core.ConnID, candidate json.RawMessage) {
	link := o.getOrCreate(remote)
	if link == nil {
		return
	}
	if err := link.AddCandidate(candidate); err != nil {
		o.log.Debug().Err(err).Str("peer", string(remote)).Msg("candidate not applied")
	}
}

// Drop closes and forgets the link to remote.
func (o *Orchestrator) Drop(remote core.ConnID) {
	o.mu.Lock()
	link, ok := o.links[remote]
	delete(o.links, remote)
	o.mu.Unlock()
	if ok {
		link.Close()
		o.log.Info().Str("peer", string(remote)).Msg("link dropped")
	}
}

// Close drops every link and refuses new ones.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	links := o.links
	o.links = make(map[core.ConnID]*PeerLink)
	o.mu.Unlock()
	for _, l := range links {
		l.Close()
	}
}

func (o *Orchestrator) Link(remote core.ConnID) (*PeerLink, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.links[remote]
	return l, ok
}

func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

func (o *Orchestrator) getOrCreate(remote core.ConnID) *PeerLink {
	if remote == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	if l, ok := o.links[remote]; ok {
		return l
	}
	conn, err := o.dialer.Dial(remote, func(c json.RawMessage) {
		o.send(&protocol.ICECandidate{Candidate: c, TargetID: remote})
	})
	if err != nil {
		o.log.Error().Err(err).Str("peer", string(remote)).Msg("dial failed")
		return nil
	}
	l := NewPeerLink(remote, conn, o.log)
	o.links[remote] = l
	o.log.Info().Str("peer", string(remote)).Msg("link created")
	return l
}

func (o *Orchestrator) send(m protocol.Message) {
	if err := o.signal.Send(m); err != nil {
		o.log.Warn().Err(err).Str("type", string(m.Kind())).Msg("signal send failed")
	}
}
