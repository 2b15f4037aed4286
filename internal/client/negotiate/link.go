// Package negotiate drives the offer/answer handshake between the local
// client and every remote participant.
//
// Each remote participant gets one PeerLink. Negotiation steps on a link run
// strictly one after another; candidates may arrive at any moment and are
// buffered until the link's remote description is set, then applied in
// arrival order.
package negotiate

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/dkeye/grinder/internal/core"
	"github.com/rs/zerolog"
)

type State int32

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the negotiable transport behind a link. Descriptions and
// candidates are opaque JSON as carried by the signaling protocol.
type Connection interface {
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetRemoteDescription(desc json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	Close() error
}

type PeerLink struct {
	remote core.ConnID
	conn   Connection
	log    zerolog.Logger

	// negMu serializes negotiation steps; candidates never take it.
	negMu sync.Mutex

	mu        sync.Mutex
	state     State
	remoteSet bool
	queue     CandidateQueue

	stepMu  sync.Mutex
	pending []func()
	running bool
}

func NewPeerLink(remote core.ConnID, conn Connection, logger zerolog.Logger) *PeerLink {
	return &PeerLink{
		remote: remote,
		conn:   conn,
		log:    logger.With().Str("peer", string(remote)).Logger(),
	}
}

func (l *PeerLink) Remote() core.ConnID { return l.remote }

func (l *PeerLink) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *PeerLink) RemoteDescriptionSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remoteSet
}

func (l *PeerLink) QueuedCandidates() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// CreateOffer is the caller path: the offer becomes the local description
// and is returned for sending.
func (l *PeerLink) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	const op = "create-offer"
	l.negMu.Lock()
	defer l.negMu.Unlock()

	if err := l.expect(op, StateNew); err != nil {
		return nil, err
	}
	offer, err := l.conn.CreateOffer(ctx)
	if err != nil {
		return nil, l.fail(op, err)
	}
	if !l.advance(StateHaveLocalOffer) {
		return nil, &Error{Op: op, Peer: l.remote, Err: ErrClosed}
	}
	return offer, nil
}

// AcceptOffer is the callee path: apply the remote offer, flush queued
// candidates, then create the answer to send back. A link left in
// have-remote-offer by a failed answer accepts the offer again.
func (l *PeerLink) AcceptOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	const op = "accept-offer"
	l.negMu.Lock()
	defer l.negMu.Unlock()

	if err := l.expect(op, StateNew, StateHaveRemoteOffer, StateConnected); err != nil {
		return nil, err
	}
	if err := l.conn.SetRemoteDescription(offer); err != nil {
		return nil, l.fail(op, err)
	}
	if !l.remoteApplied(StateHaveRemoteOffer) {
		return nil, &Error{Op: op, Peer: l.remote, Err: ErrClosed}
	}
	answer, err := l.conn.CreateAnswer(ctx)
	if err != nil {
		return nil, l.fail("create-answer", err)
	}
	if !l.advance(StateConnected) {
		return nil, &Error{Op: op, Peer: l.remote, Err: ErrClosed}
	}
	return answer, nil
}

// AcceptAnswer completes the caller path.
func (l *PeerLink) AcceptAnswer(answer json.RawMessage) error {
	const op = "accept-answer"
	l.negMu.Lock()
	defer l.negMu.Unlock()

	if err := l.expect(op, StateHaveLocalOffer); err != nil {
		return err
	}
	if err := l.conn.SetRemoteDescription(answer); err != nil {
		return l.fail(op, err)
	}
	if !l.remoteApplied(StateConnected) {
		return &Error{Op: op, Peer: l.remote, Err: ErrClosed}
	}
	return nil
}

// AddCandidate applies c, or queues it while the remote description is not
// set yet. It never waits for an in-flight negotiation step.
func (l *PeerLink) AddCandidate(c json.RawMessage) error {
	const op = "add-candidate"
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return &Error{Op: op, Peer: l.remote, Err: ErrClosed}
	}
	if !l.remoteSet {
		l.queue.Push(c)
		l.log.Debug().Int("queued", l.queue.Len()).Msg("candidate queued")
		return nil
	}
	if err := l.conn.AddICECandidate(c); err != nil {
		return l.fail(op, err)
	}
	return nil
}

// Close tears the link down at once: queued candidates and pending steps
// are discarded and the connection is closed. Safe to call repeatedly.
func (l *PeerLink) Close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.queue.Reset()
	l.mu.Unlock()

	l.stepMu.Lock()
	l.pending = nil
	l.stepMu.Unlock()

	if err := l.conn.Close(); err != nil {
		l.log.Warn().Err(err).Msg("close connection")
	}
	l.log.Debug().Msg("link closed")
}

// schedule runs step after every previously scheduled step on this link.
func (l *PeerLink) schedule(step func()) {
	if l.State() == StateClosed {
		return
	}
	l.stepMu.Lock()
	l.pending = append(l.pending, step)
	if l.running {
		l.stepMu.Unlock()
		return
	}
	l.running = true
	l.stepMu.Unlock()
	go l.runSteps()
}

func (l *PeerLink) runSteps() {
	for {
		l.stepMu.Lock()
		if len(l.pending) == 0 {
			l.running = false
			l.stepMu.Unlock()
			return
		}
		step := l.pending[0]
		l.pending = l.pending[1:]
		l.stepMu.Unlock()
		step()
	}
}

// remoteApplied records a successful remote description and drains the
// queue while still holding the state lock, so later candidates cannot
// overtake queued ones.
func (l *PeerLink) remoteApplied(next State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return false
	}
	l.remoteSet = true
	l.state = next
	queued := l.queue.Drain()
	for i, c := range queued {
		if err := l.conn.AddICECandidate(c); err != nil {
			l.log.Warn().Err(err).Int("index", i).Msg("queued candidate rejected")
		}
	}
	if len(queued) > 0 {
		l.log.Debug().Int("applied", len(queued)).Msg("candidate queue drained")
	}
	return true
}

func (l *PeerLink) expect(op string, allowed ...State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return &Error{Op: op, Peer: l.remote, Err: ErrClosed}
	}
	if !slices.Contains(allowed, l.state) {
		return &Error{Op: op, Peer: l.remote, Err: ErrWrongState}
	}
	return nil
}

func (l *PeerLink) advance(to State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return false
	}
	l.state = to
	return true
}

func (l *PeerLink) fail(op string, err error) error {
	l.log.Warn().Err(err).Str("op", op).Msg("negotiation step failed")
	return &Error{Op: op, Peer: l.remote, Err: err}
}
