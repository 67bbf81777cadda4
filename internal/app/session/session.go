/*
Package session is the client side of the push channel. A Manager keeps one live subscription
for the signed-in user and routes every inbound event either into the open conversation's
transcript or to a notification surface.

Each subscription is consumed by a single goroutine in arrival order. Opening another
conversation tears the current subscription down, waits for its consumer to exit, and only then
subscribes again, so no event is ever handled by two consumers.
*/
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"pingup/internal/app/chat"
	"pingup/internal/app/push"
	"pingup/internal/app/user"
	"pingup/internal/pkg/logx"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("session: manager closed")

// Event is an inbound push event as decoded by the client.
type Event struct {
	Type    string            `json:"type"`
	Message *chat.MessageView `json:"message,omitempty"`
	User    *user.Profile     `json:"user,omitempty"`
	UserID  string            `json:"userId,omitempty"`
}

// Subscription is one ordered event stream. Events is closed when the stream ends.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Subscriber opens a new subscription for the signed-in user.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Notifier is the notification surface for events outside the open conversation.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Manager owns the signed-in user's subscription and the open conversation view.
type Manager struct {
	sub      Subscriber
	notifier Notifier
	onUpdate func(peerID string, m chat.Message)
	logger   zerolog.Logger

	// opMu serializes Open and Close.
	opMu sync.Mutex

	mu         sync.Mutex
	gen        uint64
	peer       string
	transcript []chat.Message
	current    Subscription
	done       chan struct{}
	closed     bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithTranscriptHook calls fn for every message inserted into the open transcript by an event.
func WithTranscriptHook(fn func(peerID string, m chat.Message)) Option {
	return func(m *Manager) { m.onUpdate = fn }
}

// NewManager creates a Manager. notifier may be nil.
func NewManager(sub Subscriber, notifier Notifier, opts ...Option) *Manager {
	m := &Manager{
		sub:      sub,
		notifier: notifier,
		logger:   logx.Component("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open switches the view to peerID with history as the initial transcript and resubscribes.
// An empty peerID keeps a subscription with no open conversation.
func (m *Manager) Open(ctx context.Context, peerID string, history []chat.Message) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.mu.Unlock()

	m.teardown()

	transcript := append([]chat.Message(nil), history...)
	chat.SortChronologically(transcript)

	sub, err := m.sub.Subscribe(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.peer = peerID
	m.transcript = transcript
	m.current = sub
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.consume(gen, sub, done)

	m.logger.Debug().Str("peer_id", peerID).Uint64("generation", gen).Msg("Subscription opened.")
	return nil
}

// Close releases the subscription. The Manager cannot be reopened.
func (m *Manager) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.teardown()
}

// teardown closes the current subscription and waits for its consumer. Caller holds opMu.
func (m *Manager) teardown() {
	m.mu.Lock()
	sub, done := m.current, m.done
	m.gen++
	m.current, m.done = nil, nil
	m.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("Subscription close error.")
	}
	<-done
}

func (m *Manager) consume(gen uint64, sub Subscription, done chan struct{}) {
	defer close(done)

	for ev := range sub.Events() {
		m.dispatch(gen, ev)
	}

	m.logger.Debug().Uint64("generation", gen).Msg("Subscription ended.")
}

// dispatch handles ev unless gen was superseded while it was in flight.
func (m *Manager) dispatch(gen uint64, ev Event) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	switch {
	case ev.Type == push.TypeConnection:
		m.mu.Unlock()
		m.logger.Debug().Str("user_id", ev.UserID).Msg("Subscription acknowledged.")
		return

	case ev.Type == push.TypeNewMessage && ev.Message != nil && m.peer != "" && ev.Message.From == m.peer:
		msg := ev.Message.Message
		inserted := m.insert(msg)
		peer := m.peer
		m.mu.Unlock()

		if inserted && m.onUpdate != nil {
			m.onUpdate(peer, msg)
		}
		return
	}
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.Notify(ev)
	}
}

// insert places msg after every message created at or before it. Caller holds mu.
func (m *Manager) insert(msg chat.Message) bool {
	for _, existing := range m.transcript {
		if existing.ID == msg.ID {
			return false
		}
	}

	i := sort.Search(len(m.transcript), func(i int) bool {
		return m.transcript[i].CreatedAt.After(msg.CreatedAt)
	})
	m.transcript = append(m.transcript, chat.Message{})
	copy(m.transcript[i+1:], m.transcript[i:])
	m.transcript[i] = msg
	return true
}

// Append records a message the user sent to the open peer.
func (m *Manager) Append(msg chat.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.peer == "" || (msg.To != m.peer && msg.From != m.peer) {
		return false
	}
	return m.insert(msg)
}

// Peer returns the open conversation's peer id.
func (m *Manager) Peer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peer
}

// Transcript returns a copy of the open conversation.
func (m *Manager) Transcript() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.transcript...)
}
