package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// Sink consumes RTP packets of one remote track. *webrtc.TrackLocalStaticRTP
// satisfies it, so a remote track can be re-published as is.
type Sink interface {
	WriteRTP(p *rtp.Packet) error
}

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// OutSink is one sink attached to a forwarder.
type OutSink struct {
	Sink  Sink
	state atomic.Int32
}

func NewOutSink(s Sink) *OutSink {
	return &OutSink{Sink: s}
}

func (o *OutSink) State() SinkState {
	return SinkState(o.state.Load())
}

func (o *OutSink) MarkOk() {
	o.state.Store(int32(SinkStateOk))
}

func (o *OutSink) MarkMuted() {
	o.state.Store(int32(SinkStateMuted))
}

func (o *OutSink) MarkDelete() {
	o.state.Store(int32(SinkStateDelete))
}
