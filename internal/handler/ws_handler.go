package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"pingup/internal/app/push"
	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/logx"
)

// HandleWebSocket upgrades the request and registers the connection as the caller's live session.
// The connection event is queued before registration so it is always the first frame.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := jwt.UserID(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket", "user_id", userID)
			return
		}

		client := push.NewClient(conn, userID)
		if !greet(r, client, userID) {
			conn.Close()
			return
		}

		handle := deps.Registry.Register(userID, client)
		logx.Info("WebSocket subscription established", "user_id", userID)

		go client.WritePump()
		client.ReadPump()

		deps.Registry.Unregister(handle)
		logx.Info("WebSocket subscription ended", "user_id", userID)
	}
}

// HandleEventStream serves the caller's live session as Server-Sent Events.
func HandleEventStream(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := jwt.UserID(r)

		stream, err := push.NewStream(w, userID)
		if err != nil {
			logx.Error(err, "Failed to open event stream", "user_id", userID)
			return
		}

		if !greet(r, stream, userID) {
			return
		}

		handle := deps.Registry.Register(userID, stream)
		logx.Info("Event stream subscription established", "user_id", userID)

		stream.Run(r.Context())

		deps.Registry.Unregister(handle)
		logx.Info("Event stream subscription ended", "user_id", userID)
	}
}

func greet(r *http.Request, sink push.Sink, userID string) bool {
	frame, err := push.ConnectedEvent(userID).Encode()
	if err == nil {
		err = sink.Deliver(r.Context(), frame)
	}
	if err != nil {
		logx.Error(err, "Failed to queue connection event", "user_id", userID)
		return false
	}
	return true
}
