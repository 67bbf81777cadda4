package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pingup/internal/app/push"
	"pingup/internal/app/store"
	"pingup/internal/app/user"
	"pingup/internal/pkg/errs"
	"pingup/internal/pkg/logx"
	"pingup/internal/pkg/randx"
)

// DefaultInboxLimit bounds Inbox when the caller passes no limit.
const DefaultInboxLimit = 50

// Store is the message persistence the dispatcher needs.
type Store interface {
	user.Directory

	CreateMessage(ctx context.Context, m Message) error

	// Conversation returns every message between a and b in both directions.
	Conversation(ctx context.Context, a, b string) ([]Message, error)

	// MarkSeen flags every unseen message from -> to as seen.
	MarkSeen(ctx context.Context, from, to string) (int64, error)

	// Inbox returns messages addressed to userID, newest first.
	Inbox(ctx context.Context, userID string, limit int) ([]Message, error)
}

// ObjectInfo is the metadata of a hosted media object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// MediaHost resolves uploaded media. Stat returns store.ErrNotFound for a missing key.
type MediaHost interface {
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	ObjectURL(key string) string
}

// Publisher pushes an event to a user's live session.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev push.Event) error
}

// Config tunes the Service. Zero values pick defaults.
type Config struct {
	PushTimeout time.Duration
	Clock       func() time.Time
	NewID       func() string
}

// SendInput is the payload of SendMessage.
type SendInput struct {
	To    string      `json:"to_user_id"`
	Text  string      `json:"text,omitempty"`
	Media *MediaInput `json:"media,omitempty"`
}

// Service is the delivery dispatcher: every send is persisted, then pushed best effort.
type Service struct {
	store  Store
	media  MediaHost
	pub    Publisher
	cfg    Config
	logger zerolog.Logger
}

// NewService creates a Service. media may be nil when no media host is configured.
func NewService(s Store, media MediaHost, pub Publisher, cfg Config) *Service {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = randx.NewID
	}

	return &Service{
		store:  s,
		media:  media,
		pub:    pub,
		cfg:    cfg,
		logger: logx.Component("chat"),
	}
}

// SendMessage validates, persists and pushes one message from fromID.
// The returned view is what the recipient receives. Push failures never fail the send.
func (s *Service) SendMessage(ctx context.Context, fromID string, in SendInput) (MessageView, error) {
	in.To = strings.TrimSpace(in.To)
	if in.To == "" {
		return MessageView{}, errs.NewError(errs.ErrRecipientRequired)
	}
	if strings.TrimSpace(in.Text) == "" {
		in.Text = ""
	}
	if in.Text == "" && in.Media == nil {
		return MessageView{}, errs.NewError(errs.ErrMessageEmpty)
	}
	if len(in.Text) > MaxTextBytes {
		return MessageView{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	sender, err := s.store.GetUser(ctx, fromID)
	if err != nil {
		return MessageView{}, store.Translate(err, errs.ErrUserNotFound)
	}
	if _, err := s.store.GetUser(ctx, in.To); err != nil {
		return MessageView{}, store.Translate(err, errs.ErrUserNotFound)
	}

	msg := Message{
		ID:        s.cfg.NewID(),
		From:      fromID,
		To:        in.To,
		Text:      in.Text,
		CreatedAt: s.cfg.Clock().UTC(),
	}

	if in.Media != nil {
		media, err := s.resolveMedia(ctx, fromID, *in.Media)
		if err != nil {
			return MessageView{}, err
		}
		msg.Media = media
	}

	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return MessageView{}, store.Translate(err, errs.ErrUserNotFound)
	}

	profile := sender.Profile()
	view := MessageView{Message: msg, FromUser: &profile}

	s.push(ctx, msg.To, push.Event{Type: push.TypeNewMessage, Message: view})

	return view, nil
}

// push delivers ev with the configured timeout. Misses and errors are logged only.
func (s *Service) push(ctx context.Context, userID string, ev push.Event) {
	if s.pub == nil {
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PushTimeout)
	defer cancel()

	err := s.pub.Publish(pushCtx, userID, ev)
	switch {
	case err == nil:
		s.logger.Debug().Str("to_user_id", userID).Str("event", ev.Type).Msg("Event pushed.")
	case errors.Is(err, push.ErrOffline):
		s.logger.Debug().Str("to_user_id", userID).Str("event", ev.Type).Msg("Recipient offline, event not pushed.")
	default:
		s.logger.Warn().Err(err).Str("to_user_id", userID).Str("event", ev.Type).Msg("Push delivery failed.")
	}
}

func (s *Service) resolveMedia(ctx context.Context, fromID string, in MediaInput) (*Media, error) {
	if s.media == nil {
		return nil, errs.NewError(errs.ErrMediaUnavailable)
	}
	if in.Type != MediaTypeImage || !randx.OwnsMediaKey(fromID, in.Key) {
		return nil, errs.NewError(errs.ErrMediaInvalid)
	}

	info, err := s.media.Stat(ctx, in.Key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errs.NewError(errs.ErrMediaInvalid)
		}
		return nil, errs.NewError(errs.ErrFileStorageFailed, err)
	}

	if customErr := ValidateFileType(in.Key, info.ContentType); customErr != nil {
		return nil, customErr
	}
	if customErr := ValidateFileSize(info.Size); customErr != nil {
		return nil, customErr
	}

	return &Media{Type: in.Type, URL: s.media.ObjectURL(in.Key), Key: in.Key}, nil
}

// GetConversation marks every message peer -> me as seen, then returns the whole
// conversation in chronological order.
func (s *Service) GetConversation(ctx context.Context, me, peer string) ([]Message, error) {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return nil, errs.NewError(errs.ErrRecipientRequired)
	}

	marked, err := s.store.MarkSeen(ctx, peer, me)
	if err != nil {
		return nil, store.Translate(err, errs.ErrUserNotFound)
	}

	messages, err := s.store.Conversation(ctx, me, peer)
	if err != nil {
		return nil, store.Translate(err, errs.ErrUserNotFound)
	}
	SortChronologically(messages)

	if marked > 0 {
		s.logger.Debug().Str("user_id", me).Str("peer_id", peer).Int64("marked", marked).Msg("Messages marked as seen.")
	}

	return messages, nil
}

// Inbox returns the latest messages addressed to me, newest first, with sender profiles.
func (s *Service) Inbox(ctx context.Context, me string, limit int) ([]MessageView, error) {
	if limit <= 0 || limit > DefaultInboxLimit {
		limit = DefaultInboxLimit
	}

	messages, err := s.store.Inbox(ctx, me, limit)
	if err != nil {
		return nil, store.Translate(err, errs.ErrUserNotFound)
	}

	senderIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.From)
	}

	profiles, err := s.store.Profiles(ctx, senderIDs)
	if err != nil {
		return nil, store.Translate(err, errs.ErrUserNotFound)
	}

	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		view := MessageView{Message: m}
		if p, ok := profiles[m.From]; ok {
			view.FromUser = &p
		}
		views = append(views, view)
	}
	return views, nil
}
