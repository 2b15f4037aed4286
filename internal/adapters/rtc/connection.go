package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/grinder/internal/client/media"
	"github.com/dkeye/grinder/internal/client/negotiate"
	"github.com/dkeye/grinder/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig(stun ...string) webrtc.Configuration {
	if len(stun) == 0 {
		stun = []string{defaultSTUN}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stun}},
	}
}

// Dialer opens receive-only peer connections. Remote tracks are handed to
// the media router under the remote participant's id.
type Dialer struct {
	api    *webrtc.API
	cfg    webrtc.Configuration
	router *media.Router
	ctx    context.Context
	log    zerolog.Logger
}

func NewDialer(ctx context.Context, cfg webrtc.Configuration, router *media.Router, logger zerolog.Logger) (*Dialer, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return &Dialer{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(reg)),
		cfg:    cfg,
		router: router,
		ctx:    ctx,
		log:    logger.With().Str("module", "webrtc").Logger(),
	}, nil
}

func (d *Dialer) Dial(remote core.ConnID, onCandidate func(json.RawMessage)) (negotiate.Connection, error) {
	pc, err := d.api.NewPeerConnection(d.cfg)
	if err != nil {
		return nil, err
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	c := &WebRTCConnection{
		pc:     pc,
		remote: remote,
		router: d.router,
		onICE:  onCandidate,
		log:    d.log.With().Str("peer", string(remote)).Logger(),
	}
	c.start(d.ctx)
	return c, nil
}

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote core.ConnID
	router *media.Router
	onICE  func(json.RawMessage)
	log    zerolog.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *WebRTCConnection) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.router.Detach(c.remote)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.onICE == nil {
			return
		}
		raw, err := json.Marshal(cand.ToJSON())
		if err != nil {
			c.log.Error().Err(err).Msg("marshal candidate")
			return
		}
		c.onICE(raw)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.router.Attach(ctx, c.remote, track)
	})
}

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return json.Marshal(offer)
}

func (c *WebRTCConnection) CreateAnswer(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return json.Marshal(answer)
}

func (c *WebRTCConnection) SetRemoteDescription(desc json.RawMessage) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(desc, &sd); err != nil {
		return fmt.Errorf("decode session description: %w", err)
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) AddICECandidate(candidate json.RawMessage) error {
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &ci); err != nil {
		return fmt.Errorf("decode candidate: %w", err)
	}
	return c.pc.AddICECandidate(ci)
}

// Close releases the connection and detaches its media. Safe to call more
// than once.
func (c *WebRTCConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.router.Detach(c.remote)
		if err = c.pc.Close(); err != nil {
			c.log.Error().Err(err).Msg("close error")
		} else {
			c.log.Info().Msg("closed")
		}
	})
	return err
}
