/*
Package chat implements one-to-one messaging: the message record, media attachment rules,
and the dispatcher that persists a message before pushing it to the recipient.
*/
package chat

import (
	"sort"
	"time"

	"pingup/internal/app/user"
)

// MediaTypeImage is the only media type accepted on messages.
const MediaTypeImage = "image"

// Media is an attachment hosted by the media store.
type Media struct {
	Type string `json:"type" bson:"type"`
	URL  string `json:"url" bson:"url"`
	Key  string `json:"key,omitempty" bson:"key,omitempty"`
}

// Message is one persisted chat message. Only Seen changes after creation.
type Message struct {
	ID        string    `json:"_id" bson:"_id"`
	From      string    `json:"from_user_id" bson:"from_user_id"`
	To        string    `json:"to_user_id" bson:"to_user_id"`
	Text      string    `json:"text,omitempty" bson:"text,omitempty"`
	Media     *Media    `json:"media,omitempty" bson:"media,omitempty"`
	Seen      bool      `json:"seen" bson:"seen"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// MessageView is a message with its sender profile attached.
type MessageView struct {
	Message
	FromUser *user.Profile `json:"from_user,omitempty"`
}

// SortChronologically orders messages by CreatedAt, breaking ties by ID.
func SortChronologically(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
}
