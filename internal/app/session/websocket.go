package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pingup/internal/app/push"
	"pingup/internal/pkg/logx"
)

// eventBuffer is the number of decoded events held while the consumer is busy.
const eventBuffer = 64

// WebsocketDialer subscribes through the server's /ws endpoint.
type WebsocketDialer struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL   string
	Token string

	Dialer *websocket.Dialer
}

// Subscribe dials the endpoint with the bearer token.
func (d *WebsocketDialer) Subscribe(ctx context.Context) (Subscription, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.Token)

	conn, _, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		return nil, err
	}

	s := &wsSubscription{
		conn:   conn,
		events: make(chan Event, eventBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logx.Component("session"),
	}
	go s.readLoop()
	return s, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	events chan Event
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func (s *wsSubscription) Events() <-chan Event {
	return s.events
}

// Close sends a close frame, drops the connection and waits for the reader to exit.
func (s *wsSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	<-s.done
	return err
}

func (s *wsSubscription) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
			default:
				if websocket.IsCloseError(err, push.WsCloseCodeSessionKicked) {
					s.logger.Warn().Msg("Subscription replaced by another client.")
				} else {
					s.logger.Debug().Err(err).Msg("Subscription read ended.")
				}
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping undecodable event.")
			continue
		}

		select {
		case s.events <- ev:
		case <-s.stop:
			return
		}
	}
}
