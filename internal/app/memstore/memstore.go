/*
Package memstore keeps users, connection requests and messages in process memory.

It backs development servers and the domain tests. One mutex guards all state, so every
multi-record mutation is atomic.
*/
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/store"
	"pingup/internal/app/user"
)

type set map[string]struct{}

func (s set) add(id string) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s set) remove(id string) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

// members returns the ids in insertion-independent sorted order.
func (s set) members() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type userRecord struct {
	profile     user.Profile
	createdAt   time.Time
	following   set
	followers   set
	connections set
}

func (r *userRecord) toUser() user.User {
	return user.User{
		ID:             r.profile.ID,
		Username:       r.profile.Username,
		FullName:       r.profile.FullName,
		ProfilePicture: r.profile.ProfilePicture,
		Following:      r.following.members(),
		Followers:      r.followers.members(),
		Connections:    r.connections.members(),
		CreatedAt:      r.createdAt,
	}
}

// Store is the in-memory backend.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*userRecord
	requests map[string]graph.Request
	messages []chat.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*userRecord),
		requests: make(map[string]graph.Request),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// UpsertProfile creates or refreshes a user profile.
func (s *Store) UpsertProfile(_ context.Context, p user.Profile, at time.Time) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[p.ID]
	if !ok {
		rec = &userRecord{
			createdAt:   at,
			following:   set{},
			followers:   set{},
			connections: set{},
		}
		s.users[p.ID] = rec
	}
	rec.profile = p
	return rec.toUser(), nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return user.User{}, store.ErrNotFound
	}
	return rec.toUser(), nil
}

func (s *Store) Profiles(_ context.Context, ids []string) (map[string]user.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]user.Profile, len(ids))
	for _, id := range ids {
		if rec, ok := s.users[id]; ok {
			out[id] = rec.profile
		}
	}
	return out, nil
}

// --- messages ---

func (s *Store) CreateMessage(_ context.Context, m chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.messages {
		if existing.ID == m.ID {
			return store.ErrDuplicate
		}
	}
	if m.Media != nil {
		media := *m.Media
		m.Media = &media
	}
	s.messages = append(s.messages, m)
	return nil
}

func (s *Store) Conversation(_ context.Context, a, b string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Message
	for _, m := range s.messages {
		if (m.From == a && m.To == b) || (m.From == b && m.To == a) {
			out = append(out, m)
		}
	}
	chat.SortChronologically(out)
	return out, nil
}

func (s *Store) MarkSeen(_ context.Context, from, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.From == from && m.To == to && !m.Seen {
			m.Seen = true
			marked++
		}
	}
	return marked, nil
}

func (s *Store) Inbox(_ context.Context, userID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []chat.Message
	for _, m := range s.messages {
		if m.To == userID {
			out = append(out, m)
		}
	}
	chat.SortChronologically(out)

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- graph ---

func (s *Store) FindRequest(_ context.Context, a, b string) (graph.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[graph.PairKey(a, b)]
	if !ok {
		return graph.Request{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) CreateRequest(_ context.Context, r graph.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := graph.PairKey(r.From, r.To)
	if _, ok := s.requests[key]; ok {
		return store.ErrDuplicate
	}
	s.requests[key] = r
	return nil
}

func (s *Store) CountRequestsSince(_ context.Context, from string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.requests {
		if r.From == from && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *Store) PendingRequestsTo(_ context.Context, userID string) ([]graph.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []graph.Request
	for _, r := range s.requests {
		if r.To == userID && r.Status == graph.StatusPending {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeletePendingRequest(_ context.Context, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := graph.PairKey(from, to)
	r, ok := s.requests[key]
	if !ok || r.From != from || r.To != to || r.Status != graph.StatusPending {
		return false, nil
	}
	delete(s.requests, key)
	return true, nil
}

func (s *Store) Follow(_ context.Context, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b, err := s.pair(from, to)
	if err != nil {
		return false, err
	}

	added := a.following.add(to)
	b.followers.add(from)
	return added, nil
}

func (s *Store) Connect(_ context.Context, id, a, b string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ub, err := s.pair(a, b)
	if err != nil {
		return err
	}

	key := graph.PairKey(a, b)
	r, ok := s.requests[key]
	if !ok || r.ID != id || r.Status != graph.StatusPending {
		return store.ErrNotFound
	}

	ua.connections.add(b)
	ub.connections.add(a)

	r.Status = graph.StatusAccepted
	r.UpdatedAt = at
	s.requests[key] = r
	return nil
}

func (s *Store) Disconnect(_ context.Context, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ub, err := s.pair(a, b)
	if err != nil {
		return false, err
	}

	removed := false
	for _, ok := range []bool{
		ua.following.remove(b),
		ub.followers.remove(a),
		ub.following.remove(a),
		ua.followers.remove(b),
		ua.connections.remove(b),
		ub.connections.remove(a),
	} {
		removed = removed || ok
	}

	key := graph.PairKey(a, b)
	if r, ok := s.requests[key]; ok && ((r.From == a && r.To == b) || (r.From == b && r.To == a)) {
		delete(s.requests, key)
		removed = true
	}
	return removed, nil
}

// pair must be called with s.mu held.
func (s *Store) pair(a, b string) (*userRecord, *userRecord, error) {
	ua, ok := s.users[a]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	ub, ok := s.users[b]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	return ua, ub, nil
}
