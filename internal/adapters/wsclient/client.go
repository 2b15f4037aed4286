// Package wsclient is the participant side of the signaling WebSocket.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/grinder/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var ErrClosed = errors.New("wsclient: connection closed")

// Client is a connected signaling channel. Decoded server messages arrive
// on Incoming, which is closed when the connection ends.
type Client struct {
	conn     *websocket.Conn
	incoming chan protocol.Message
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
	log      zerolog.Logger
}

// Dial connects to the relay at serverURL (ws:// or wss://).
func Dial(ctx context.Context, serverURL string, header http.Header, logger zerolog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, header)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial %s: %w", serverURL, err)
	}
	c := &Client{
		conn:     conn,
		incoming: make(chan protocol.Message, sendBuffer),
		outgoing: make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		log:      logger.With().Str("module", "wsclient").Logger(),
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

// Send queues msg for the server.
func (c *Client) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) Incoming() <-chan protocol.Message {
	return c.incoming
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		_ = c.conn.Close()
		close(c.incoming)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn().Err(err).Msg("write failed")
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.flush()
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before Close so a final leave-room
// still reaches the server.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.outgoing:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
