package signal

import (
	"time"

	"github.com/gorilla/websocket"
)

// keepAlive arms the read deadline and extends it on every pong.
func (ctl *SignalWSController) keepAlive(c *WsSignalConn) {
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})
}

func (ctl *SignalWSController) ping(c *WsSignalConn) error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait))
}
