/*
Package push holds the live push channel of every online user.

The Registry maps a user id to exactly one Sink. Registering a second sink for the same
user replaces and closes the first. Each registration returns a Handle carrying a generation
token, and Unregister only removes the entry the handle registered, so a late cleanup from a
replaced session cannot evict its successor.
*/
package push

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"pingup/internal/pkg/logx"
)

// Close reasons passed to Sink.Close.
const (
	CloseReasonReplaced = "session replaced by a new connection"
	CloseReasonShutdown = "server shutting down"
	CloseReasonClosed   = "connection closed"
)

var (
	// ErrOffline is returned by Publish when the user has no live session.
	ErrOffline = errors.New("push: user offline")

	// ErrSinkClosed is returned by Deliver after the sink was closed.
	ErrSinkClosed = errors.New("push: sink closed")
)

// Sink is one live push channel.
type Sink interface {
	// Deliver queues frame for the subscriber. It must not block past ctx.
	Deliver(ctx context.Context, frame Frame) error

	// Close terminates the channel. It is safe to call more than once.
	Close(reason string)
}

// Handle identifies one registration.
type Handle struct {
	UserID string
	token  uint64
}

type entry struct {
	sink  Sink
	token uint64
}

// Registry is the in-memory userID -> Sink table.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]entry
	next     uint64
	closed   bool
	logger   zerolog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]entry),
		logger:   logx.Component("push"),
	}
}

// Register installs sink as the live session of userID and returns its handle.
// A previous sink for the user is closed after the lock is released.
// After Shutdown the sink is closed immediately and the returned handle is inert.
func (r *Registry) Register(userID string, sink Sink) Handle {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sink.Close(CloseReasonShutdown)
		return Handle{UserID: userID}
	}

	r.next++
	handle := Handle{UserID: userID, token: r.next}

	previous, replaced := r.sessions[userID]
	r.sessions[userID] = entry{sink: sink, token: handle.token}
	total := len(r.sessions)
	r.mu.Unlock()

	if replaced {
		r.logger.Info().
			Str("user_id", userID).
			Msg("User already subscribed. Closing old session for replacement.")
		previous.sink.Close(CloseReasonReplaced)
	}

	r.logger.Debug().
		Str("user_id", userID).
		Int("online_users", total).
		Msg("Session registered.")

	return handle
}

// Unregister removes the session installed by h. It returns false, and changes nothing,
// when the user's current session belongs to a newer registration.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	current, ok := r.sessions[h.UserID]
	if !ok || current.token != h.token {
		r.mu.Unlock()
		if ok {
			r.logger.Debug().
				Str("user_id", h.UserID).
				Msg("Ignoring unregister for stale session.")
		}
		return false
	}
	delete(r.sessions, h.UserID)
	total := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug().
		Str("user_id", h.UserID).
		Int("online_users", total).
		Msg("Session unregistered.")

	return true
}

// Lookup returns the live sink of userID. A miss is a normal outcome.
func (r *Registry) Lookup(userID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return current.sink, true
}

// Publish delivers ev to userID's live session. It returns ErrOffline on a miss.
// The sink is written after the registry lock is released.
func (r *Registry) Publish(ctx context.Context, userID string, ev Event) error {
	sink, ok := r.Lookup(userID)
	if !ok {
		return ErrOffline
	}

	frame, err := ev.Encode()
	if err != nil {
		return err
	}

	return sink.Deliver(ctx, frame)
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every session and rejects later registrations.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sinks := make([]Sink, 0, len(r.sessions))
	for userID, current := range r.sessions {
		sinks = append(sinks, current.sink)
		delete(r.sessions, userID)
	}
	r.closed = true
	r.mu.Unlock()

	for _, sink := range sinks {
		sink.Close(CloseReasonShutdown)
	}

	r.logger.Info().Int("closed_sessions", len(sinks)).Msg("Push registry shut down.")
}
