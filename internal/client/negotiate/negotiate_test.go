package negotiate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/grinder/internal/core"
	"github.com/dkeye/grinder/internal/protocol"
	"github.com/rs/zerolog"
)

type fakeConn struct {
	mu     sync.Mutex
	calls  []string
	closed bool

	// When set, SetRemoteDescription signals entered and then blocks until
	// gate is closed.
	gate    chan struct{}
	entered chan struct{}

	failRemote error
	failAnswer error
}

func (c *fakeConn) record(s string) {
	c.mu.Lock()
	c.calls = append(c.calls, s)
	c.mu.Unlock()
}

func (c *fakeConn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func (c *fakeConn) CreateOffer(context.Context) (json.RawMessage, error) {
	c.record("create-offer")
	return json.RawMessage(`{"type":"offer","sdp":"o"}`), nil
}

func (c *fakeConn) CreateAnswer(context.Context) (json.RawMessage, error) {
	c.mu.Lock()
	failAnswer := c.failAnswer
	c.mu.Unlock()
	if failAnswer != nil {
		return nil, failAnswer
	}
	c.record("create-answer")
	return json.RawMessage(`{"type":"answer","sdp":"a"}`), nil
}

func (c *fakeConn) SetRemoteDescription(desc json.RawMessage) error {
	if c.gate != nil {
		c.entered <- struct{}{}
		<-c.gate
	}
	if c.failRemote != nil {
		return c.failRemote
	}
	c.record("remote:" + string(desc))
	return nil
}

func (c *fakeConn) AddICECandidate(cand json.RawMessage) error {
	c.record("candidate:" + string(cand))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type fakeDialer struct {
	mu          sync.Mutex
	conns       map[core.ConnID]*fakeConn
	onCandidate map[core.ConnID]func(json.RawMessage)
	prepare     func(remote core.ConnID, c *fakeConn)
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		conns:       make(map[core.ConnID]*fakeConn),
		onCandidate: make(map[core.ConnID]func(json.RawMessage)),
	}
}

func (d *fakeDialer) Dial(remote core.ConnID, onCandidate func(json.RawMessage)) (Connection, error) {
	c := &fakeConn{}
	if d.prepare != nil {
		d.prepare(remote, c)
	}
	d.mu.Lock()
	d.conns[remote] = c
	d.onCandidate[remote] = onCandidate
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) conn(remote core.ConnID) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[remote]
}

type fakeSignaler struct {
	sent chan protocol.Message
}

func (s *fakeSignaler) Send(m protocol.Message) error {
	s.sent <- m
	return nil
}

func (s *fakeSignaler) next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case m := <-s.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a signal message")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func cand(n string) json.RawMessage {
	return json.RawMessage(`{"candidate":"` + n + `"}`)
}

func TestCandidateQueueDrainsInOrder(t *testing.T) {
	var q CandidateQueue
	q.Push(cand("1"))
	q.Push(cand("2"))
	got := q.Drain()
	if len(got) != 2 || string(got[0]) != string(cand("1")) || string(got[1]) != string(cand("2")) {
		t.Fatalf("Drain = %s", got)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Error("queue not empty after drain")
	}
}

func TestLinkQueuesCandidatesUntilRemoteDescription(t *testing.T) {
	conn := &fakeConn{}
	link := NewPeerLink("Z", conn, zerolog.Nop())

	if err := link.AddCandidate(cand("early")); err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}
	if link.QueuedCandidates() != 1 || len(conn.Calls()) != 0 {
		t.Fatalf("queued=%d calls=%v, want candidate held back", link.QueuedCandidates(), conn.Calls())
	}

	if _, err := link.AcceptOffer(context.Background(), json.RawMessage(`"offer"`)); err != nil {
		t.Fatalf("AcceptOffer: %v", err)
	}
	if err := link.AddCandidate(cand("late")); err != nil {
		t.Fatalf("AddCandidate: %v", err)
	}

	want := []string{`remote:"offer"`, `candidate:{"candidate":"early"}`, "create-answer", `candidate:{"candidate":"late"}`}
	if got := conn.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if link.State() != StateConnected || !link.RemoteDescriptionSet() || link.QueuedCandidates() != 0 {
		t.Errorf("state=%s remoteSet=%v queued=%d", link.State(), link.RemoteDescriptionSet(), link.QueuedCandidates())
	}
}

func TestOfferBeforeLinkWithQueuedCandidates(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	dialer := newFakeDialer()
	dialer.prepare = func(_ core.ConnID, c *fakeConn) {
		c.gate = gate
		c.entered = entered
	}
	sig := &fakeSignaler{sent: make(chan protocol.Message, 8)}
	o := NewOrchestrator(dialer, sig, zerolog.Nop())

	if o.Len() != 0 {
		t.Fatal("orchestrator starts with links")
	}
	o.Handle(context.Background(), &protocol.Offer{Offer: json.RawMessage(`"offer-z"`), SourceID: "Z"})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("remote description never applied")
	}

	for _, n := range []string{"c1", "c2", "c3"} {
		o.Handle(context.Background(), &protocol.ICECandidate{Candidate: cand(n), SourceID: "Z"})
	}
	link, ok := o.Link("Z")
	if !ok {
		t.Fatal("no link created for Z")
	}
	if link.QueuedCandidates() != 3 {
		t.Fatalf("queued = %d, want 3 while the offer is in flight", link.QueuedCandidates())
	}

	close(gate)
	answer, ok := sig.next(t).(*protocol.Answer)
	if !ok || answer.TargetID != "Z" {
		t.Fatalf("sent %+v, want answer to Z", answer)
	}

	want := []string{
		`remote:"offer-z"`,
		`candidate:{"candidate":"c1"}`,
		`candidate:{"candidate":"c2"}`,
		`candidate:{"candidate":"c3"}`,
		"create-answer",
	}
	if got := dialer.conn("Z").Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if link.State() != StateConnected {
		t.Errorf("state = %s, want connected", link.State())
	}
}

func TestCallerPath(t *testing.T) {
	dialer := newFakeDialer()
	sig := &fakeSignaler{sent: make(chan protocol.Message, 8)}
	o := NewOrchestrator(dialer, sig, zerolog.Nop())

	o.Handle(context.Background(), &protocol.ExistingParticipants{Participants: []core.ParticipantDTO{{ConnID: "A"}}})
	offer, ok := sig.next(t).(*protocol.Offer)
	if !ok || offer.TargetID != "A" || string(offer.Offer) != `{"type":"offer","sdp":"o"}` {
		t.Fatalf("sent %+v, want offer to A", offer)
	}
	link, _ := o.Link("A")
	waitFor(t, "have-local-offer", func() bool { return link.State() == StateHaveLocalOffer })

	o.Handle(context.Background(), &protocol.ICECandidate{Candidate: cand("x"), SourceID: "A"})
	if link.QueuedCandidates() != 1 {
		t.Errorf("queued = %d, want 1 before the answer", link.QueuedCandidates())
	}
	o.Handle(context.Background(), &protocol.Answer{Answer: json.RawMessage(`"answer-a"`), SourceID: "A"})
	waitFor(t, "connected", func() bool { return link.State() == StateConnected })

	want := []string{"create-offer", `remote:"answer-a"`, `candidate:{"candidate":"x"}`}
	if got := dialer.conn("A").Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestLocalCandidatesAreSignaled(t *testing.T) {
	dialer := newFakeDialer()
	sig := &fakeSignaler{sent: make(chan protocol.Message, 8)}
	o := NewOrchestrator(dialer, sig, zerolog.Nop())

	o.Handle(context.Background(), &protocol.UserJoined{ConnID: "B"})
	if l, ok := o.Link("B"); !ok || l.State() != StateNew {
		t.Fatal("join notice did not create a waiting link")
	}
	dialer.mu.Lock()
	emit := dialer.onCandidate["B"]
	dialer.mu.Unlock()
	emit(cand("local"))

	m, ok := sig.next(t).(*protocol.ICECandidate)
	if !ok || m.TargetID != "B" || string(m.Candidate) != string(cand("local")) {
		t.Errorf("sent %+v", m)
	}
}

func TestFailedStepKeepsStateAndIsolatesLinks(t *testing.T) {
	errBoom := errors.New("boom")
	dialer := newFakeDialer()
	dialer.prepare = func(remote core.ConnID, c *fakeConn) {
		if remote == "bad" {
			c.failRemote = errBoom
		}
	}
	sig := &fakeSignaler{sent: make(chan protocol.Message, 8)}
	o := NewOrchestrator(dialer, sig, zerolog.Nop())

	o.HandleOffer(context.Background(), "bad", json.RawMessage(`"x"`))
	o.HandleOffer(context.Background(), "good", json.RawMessage(`"y"`))

	answer, ok := sig.next(t).(*protocol.Answer)
	if !ok || answer.TargetID != "good" {
		t.Fatalf("sent %+v, want answer to good", answer)
	}
	bad, _ := o.Link("bad")
	if bad.State() != StateNew || bad.RemoteDescriptionSet() {
		t.Errorf("failed link state = %s, remoteSet = %v", bad.State(), bad.RemoteDescriptionSet())
	}

	_, err := bad.AcceptOffer(context.Background(), json.RawMessage(`"x"`))
	var nerr *Error
	if !errors.As(err, &nerr) || nerr.Op != "accept-offer" || nerr.Peer != "bad" || !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want *Error wrapping boom", err)
	}
}

func TestFailedAnswerAllowsOfferRetry(t *testing.T) {
	errBoom := errors.New("boom")
	conn := &fakeConn{failAnswer: errBoom}
	link := NewPeerLink("Z", conn, zerolog.Nop())

	if _, err := link.AcceptOffer(context.Background(), json.RawMessage(`"offer"`)); !errors.Is(err, errBoom) {
		t.Fatalf("first AcceptOffer = %v, want boom", err)
	}
	if link.State() != StateHaveRemoteOffer {
		t.Fatalf("state = %s, want have-remote-offer", link.State())
	}

	conn.mu.Lock()
	conn.failAnswer = nil
	conn.mu.Unlock()
	answer, err := link.AcceptOffer(context.Background(), json.RawMessage(`"offer"`))
	if err != nil {
		t.Fatalf("retried AcceptOffer: %v", err)
	}
	if string(answer) != `{"type":"answer","sdp":"a"}` || link.State() != StateConnected {
		t.Errorf("answer = %s, state = %s", answer, link.State())
	}
}

func TestWrongStateRejected(t *testing.T) {
	link := NewPeerLink("A", &fakeConn{}, zerolog.Nop())
	if err := link.AcceptAnswer(json.RawMessage(`"a"`)); !errors.Is(err, ErrWrongState) {
		t.Errorf("AcceptAnswer on new link = %v, want ErrWrongState", err)
	}
	if _, err := link.CreateOffer(context.Background()); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if _, err := link.CreateOffer(context.Background()); !errors.Is(err, ErrWrongState) {
		t.Errorf("second CreateOffer = %v, want ErrWrongState", err)
	}
}

func TestCloseReleasesLink(t *testing.T) {
	dialer := newFakeDialer()
	sig := &fakeSignaler{sent: make(chan protocol.Message, 8)}
	o := NewOrchestrator(dialer, sig, zerolog.Nop())

	o.Handle(context.Background(), &protocol.UserJoined{ConnID: "B"})
	o.HandleCandidate("B", cand("1"))
	link, _ := o.Link("B")

	o.Handle(context.Background(), &protocol.UserLeft{ConnID: "B"})
	if _, ok := o.Link("B"); ok {
		t.Error("link kept after user-left")
	}
	if link.State() != StateClosed || link.QueuedCandidates() != 0 {
		t.Errorf("state=%s queued=%d", link.State(), link.QueuedCandidates())
	}
	c := dialer.conn("B")
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		t.Error("connection not closed")
	}
	if err := link.AddCandidate(cand("2")); !errors.Is(err, ErrClosed) {
		t.Errorf("AddCandidate after close = %v, want ErrClosed", err)
	}
	link.Close()

	o.Handle(context.Background(), &protocol.UserJoined{ConnID: "C"})
	o.Close()
	if o.Len() != 0 {
		t.Errorf("Len after Close = %d", o.Len())
	}
	o.HandleOffer(context.Background(), "D", json.RawMessage(`"o"`))
	if _, ok := o.Link("D"); ok {
		t.Error("closed orchestrator accepted a new link")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRejectedStepIsLogged(t *testing.T) {
	var out lockedBuffer
	sig := &fakeSignaler{sent: make(chan protocol.Message, 8)}
	o := NewOrchestrator(newFakeDialer(), sig, zerolog.New(&out).Level(zerolog.DebugLevel))

	o.Handle(context.Background(), &protocol.UserJoined{ConnID: "B"})
	o.HandleAnswer("B", json.RawMessage(`"stray"`))

	waitFor(t, "rejected answer log", func() bool {
		s := out.String()
		return strings.Contains(s, "answer not applied") && strings.Contains(s, ErrWrongState.Error())
	})
}
