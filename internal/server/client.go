// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 54 * time.Second
	frameTimeout  = 5 * time.Second
	sendQueueSize = 256
)

// ClientOptions carries per-connection limits.
type ClientOptions struct {
	Addr           string
	MaxMessageSize int64
	RateLimit      config.RateLimitConfig
	Logger         zerolog.Logger
}

// Client is one WebSocket connection bound to an authenticated session.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	session        *chat.Session
	lifecycle      *chat.Lifecycle
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      config.RateLimitConfig
	log            zerolog.Logger
}

// NewClient creates a Client for an upgraded connection. The send channel is
// buffered to absorb short bursts of room traffic.
func NewClient(conn *websocket.Conn, hub *Hub, sess *chat.Session, lifecycle *chat.Lifecycle, opts ClientOptions) *Client {
	if conn != nil && opts.MaxMessageSize > 0 {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		session:        sess,
		lifecycle:      lifecycle,
		addr:           opts.Addr,
		maxMessageSize: opts.MaxMessageSize,
		limiter:        newRateLimiter(opts.RateLimit.Burst, opts.RateLimit.RefillInterval),
		rateLimit:      opts.RateLimit,
		log: opts.Logger.With().
			Str("component", "client").
			Str("conn_id", sess.ID()).
			Str("user_id", sess.Identity()).
			Str("room_id", sess.RoomID()).
			Str("remote_addr", opts.Addr).
			Logger(),
	}
}

// Session returns the session bound to the connection.
func (c *Client) Session() *chat.Session { return c.session }

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError records why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("max_bytes", c.maxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("refill_interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

// processFrame decodes an inbound frame and dispatches it. Frames are handled
// one at a time, which preserves the order of a connection's messages.
func (c *Client) processFrame(raw []byte) bool {
	var req chat.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.log.Warn().Err(err).Msg("undecodable frame dropped")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	return c.lifecycle.Dispatch(ctx, c.session, req)
}

// connected runs the lifecycle's connect step before any frame is read, so
// an automatic join is announced ahead of the client's first message and can
// never follow its disconnect.
func (c *Client) connected() {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	c.lifecycle.Connected(ctx, c.session)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in readPump")
		}

		ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
		defer cancel()
		c.lifecycle.Closed(ctx, c.session)
	}()

	c.setupReadConnection()
	c.connected()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("error closing connection in writePump")
	}
}

// handleMessage writes one outbound frame and returns false if the connection
// should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing close message")
		}
		return false
	}

	// One JSON document per frame so clients can decode each frame directly.
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing message")
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn().Err(err).Msg("error writing ping")
		return false
	}
	return true
}
