package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/grinder/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Relay receives everything a connection produces.
type Relay interface {
	Connect(id core.ConnID, conn core.SignalConnection, clientToken string, cancel context.CancelFunc)
	Deliver(id core.ConnID, data []byte)
	Disconnect(id core.ConnID)
}

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
	// RateLimit caps inbound frames per connection within RateInterval.
	// Zero disables the cap.
	RateLimit    int
	RateInterval time.Duration
	// CheckOrigin decides which browser origins may upgrade. Nil allows all.
	CheckOrigin func(r *http.Request) bool
	Clock       clockwork.Clock
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:    64 << 10,
		PingPeriod:   25 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    5 * time.Second,
		SendBuffer:   64,
		RateLimit:    50,
		RateInterval: time.Second,
	}
}

type SignalWSController struct {
	Relay Relay

	opts     Options
	upgrader websocket.Upgrader
	limiter  *FrameLimiter
}

func NewSignalWSController(relay Relay, opts Options) *SignalWSController {
	def := DefaultOptions()
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = def.ReadLimit
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &SignalWSController{
		Relay:    relay,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		limiter:  NewFrameLimiter(opts.Clock, opts.RateLimit, opts.RateInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSignal upgrades the request and runs the connection until either
// side goes away or ctx ends.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", token).Msg("new WS connection")

	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Relay.Connect(id, conn, token, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}
