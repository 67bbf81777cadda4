package push

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pingup/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. Subscribers only send control frames.
	maxMessageSize = 512

	// WsCloseCodeSessionKicked is sent when the session was replaced by a newer connection.
	WsCloseCodeSessionKicked = 4001
)

// Client is a websocket Sink.
type Client struct {
	conn   *websocket.Conn
	userID string
	out    *outbox
	logger zerolog.Logger
}

// NewClient wraps an upgraded websocket connection for userID.
func NewClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		out:    newOutbox(),
		logger: logx.Logger().With().
			Str("component", "push").
			Str("transport", "websocket").
			Str("user_id", userID).
			Logger(),
	}
}

// Deliver queues frame for the write pump.
func (c *Client) Deliver(ctx context.Context, frame Frame) error {
	return c.out.deliver(ctx, frame)
}

// Close asks the write pump to send a close frame and drop the connection.
func (c *Client) Close(reason string) {
	if c.out.close(reason) {
		c.logger.Debug().Str("reason", reason).Msg("Client close requested.")
	}
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.out.done
}

// ReadPump consumes inbound frames to service pong and close handling.
// It returns when the peer goes away or the client is closed; the caller then unregisters.
func (c *Client) ReadPump() {
	defer c.Close(CloseReasonClosed)

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, WsCloseCodeSessionKicked) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			return
		}
	}
}

// WritePump writes queued frames and heartbeats until the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Close(CloseReasonClosed)

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.out.frames:
			if !c.write(websocket.TextMessage, frame.Data) {
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}

		case <-c.out.done:
			c.writeClose(c.out.closeReason())
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Warn().Err(err).Int("message_type", messageType).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Client) writeClose(reason string) {
	code := websocket.CloseNormalClosure
	switch reason {
	case CloseReasonReplaced:
		code = WsCloseCodeSessionKicked
	case CloseReasonShutdown:
		code = websocket.CloseGoingAway
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing close message")
	}
}
