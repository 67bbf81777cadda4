package push

import (
	"encoding/json"
	"fmt"

	"pingup/internal/app/user"
)

// Event types pushed to subscribers.
const (
	// TypeConnection is sent once right after a subscription is registered.
	TypeConnection = "connection"

	// TypeNewMessage carries a persisted chat message.
	TypeNewMessage = "newMessage"

	// TypeConnectionRequest tells a user someone asked to connect.
	TypeConnectionRequest = "connectionRequest"

	// TypeConnectionAccepted tells a requester the request was accepted.
	TypeConnectionAccepted = "connectionAccepted"
)

// Event is one push notification.
type Event struct {
	Type    string        `json:"type"`
	Message any           `json:"message,omitempty"`
	User    *user.Profile `json:"user,omitempty"`
	UserID  string        `json:"userId,omitempty"`
}

// Frame is an encoded Event as handed to a Sink.
type Frame struct {
	Type string
	Data []byte
}

// Encode marshals e into a Frame.
func (e Event) Encode() (Frame, error) {
	if e.Type == "" {
		return Frame{}, fmt.Errorf("event type is required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	return Frame{Type: e.Type, Data: data}, nil
}

// ConnectedEvent acknowledges a new subscription for userID.
func ConnectedEvent(userID string) Event {
	return Event{Type: TypeConnection, UserID: userID}
}
