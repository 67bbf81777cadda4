package graph

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

// requestWindow is the window the daily request cap counts over.
const requestWindow = 24 * time.Hour

// Publisher pushes informational notices to a user's live session.
type Publisher interface {
	Publish(ctx context.Context, userID string, ev push.Event) error
}

// Config tunes the Engine. Zero values pick defaults; a zero DailyRequestLimit disables the cap.
type Config struct {
	DailyRequestLimit int
	PushTimeout       time.Duration
	Clock             func() time.Time
	NewID             func() string
}

// Engine enforces the relationship state machine.
type Engine struct {
	store  Store
	pub    Publisher
	cfg    Config
	locks  *pairLocks
	logger zerolog.Logger
}

// NewEngine creates an Engine. pub may be nil.
func NewEngine(s Store, pub Publisher, cfg Config) *Engine {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = randx.NewID
	}

	return &Engine{
		store:  s,
		pub:    pub,
		cfg:    cfg,
		locks:  newPairLocks(),
		logger: logx.Component("graph"),
	}
}

// checkPair validates a two-party operation and resolves both users.
func (e *Engine) checkPair(ctx context.Context, me, other string) (user.User, user.User, error) {
	other = strings.TrimSpace(other)
	if other == "" {
		return user.User{}, user.User{}, errs.NewError(errs.ErrInvalidParams)
	}
	if me == other {
		return user.User{}, user.User{}, errs.NewError(errs.ErrSelfTarget)
	}

	a, err := e.store.GetUser(ctx, me)
	if err != nil {
		return user.User{}, user.User{}, store.Translate(err, errs.ErrUserNotFound)
	}
	b, err := e.store.GetUser(ctx, other)
	if err != nil {
		return user.User{}, user.User{}, store.Translate(err, errs.ErrUserNotFound)
	}
	return a, b, nil
}

// RequestConnection creates a pending request from me to other.
func (e *Engine) RequestConnection(ctx context.Context, me, other string) (Request, error) {
	a, b, err := e.checkPair(ctx, me, other)
	if err != nil {
		return Request{}, err
	}

	unlock := e.locks.lock(a.ID, b.ID)
	defer unlock()

	now := e.cfg.Clock().UTC()

	if limit := e.cfg.DailyRequestLimit; limit > 0 {
		sent, err := e.store.CountRequestsSince(ctx, a.ID, now.Add(-requestWindow))
		if err != nil {
			return Request{}, store.Translate(err, errs.ErrUserNotFound)
		}
		if sent >= limit {
			return Request{}, errs.NewError(errs.ErrRequestLimitExceeded, limit)
		}
	}

	existing, err := e.store.FindRequest(ctx, a.ID, b.ID)
	switch {
	case err == nil:
		if existing.Status == StatusAccepted {
			return Request{}, errs.NewError(errs.ErrAlreadyConnected)
		}
		return Request{}, errs.NewError(errs.ErrAlreadyRequested)
	case !errors.Is(err, store.ErrNotFound):
		return Request{}, store.Translate(err, errs.ErrRequestNotFound)
	}

	if a.IsConnected(b.ID) {
		return Request{}, errs.NewError(errs.ErrAlreadyConnected)
	}

	req := Request{
		ID:        e.cfg.NewID(),
		From:      a.ID,
		To:        b.ID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Request{}, errs.NewError(errs.ErrAlreadyRequested)
		}
		return Request{}, store.Translate(err, errs.ErrRequestNotFound)
	}

	profile := a.Profile()
	e.notify(ctx, b.ID, push.Event{Type: push.TypeConnectionRequest, User: &profile})

	e.logger.Info().Str("from_user_id", a.ID).Str("to_user_id", b.ID).Msg("Connection request sent.")
	return req, nil
}

// AcceptConnection accepts the pending request requester -> me.
func (e *Engine) AcceptConnection(ctx context.Context, me, requester string) (Request, error) {
	a, b, err := e.checkPair(ctx, me, requester)
	if err != nil {
		return Request{}, err
	}

	unlock := e.locks.lock(a.ID, b.ID)
	defer unlock()

	req, err := e.store.FindRequest(ctx, a.ID, b.ID)
	if err != nil {
		return Request{}, store.Translate(err, errs.ErrRequestNotFound)
	}
	if req.From != b.ID || req.To != a.ID || req.Status != StatusPending {
		return Request{}, errs.NewError(errs.ErrRequestNotFound)
	}

	now := e.cfg.Clock().UTC()
	if err := e.store.Connect(ctx, req.ID, a.ID, b.ID, now); err != nil {
		return Request{}, store.Translate(err, errs.ErrRequestNotFound)
	}

	req.Status = StatusAccepted
	req.UpdatedAt = now

	profile := a.Profile()
	e.notify(ctx, b.ID, push.Event{Type: push.TypeConnectionAccepted, User: &profile})

	e.logger.Info().Str("user_id", a.ID).Str("requester_id", b.ID).Msg("Connection request accepted.")
	return req, nil
}

// DeclineConnection discards the pending request requester -> me.
func (e *Engine) DeclineConnection(ctx context.Context, me, requester string) error {
	a, b, err := e.checkPair(ctx, me, requester)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(a.ID, b.ID)
	defer unlock()

	deleted, err := e.store.DeletePendingRequest(ctx, b.ID, a.ID)
	if err != nil {
		return store.Translate(err, errs.ErrRequestNotFound)
	}
	if !deleted {
		return errs.NewError(errs.ErrRequestNotFound)
	}
	return nil
}

// Follow makes me follow other. An existing edge is a conflict, but the reverse
// membership is re-asserted first so a half-applied earlier call converges.
func (e *Engine) Follow(ctx context.Context, me, other string) error {
	a, b, err := e.checkPair(ctx, me, other)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(a.ID, b.ID)
	defer unlock()

	added, err := e.store.Follow(ctx, a.ID, b.ID)
	if err != nil {
		return store.Translate(err, errs.ErrUserNotFound)
	}
	if !added {
		return errs.NewError(errs.ErrAlreadyFollowing)
	}
	return nil
}

// Unfollow severs every edge between me and other: follows in both directions,
// the connection, and the pair's request.
func (e *Engine) Unfollow(ctx context.Context, me, other string) error {
	a, b, err := e.checkPair(ctx, me, other)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(a.ID, b.ID)
	defer unlock()

	removed, err := e.store.Disconnect(ctx, a.ID, b.ID)
	if err != nil {
		return store.Translate(err, errs.ErrUserNotFound)
	}
	if !removed {
		return errs.NewError(errs.ErrNotFollowing)
	}

	e.logger.Info().Str("user_id", a.ID).Str("other_id", b.ID).Msg("Relationship removed.")
	return nil
}

// Status returns the connection state of me towards other.
func (e *Engine) Status(ctx context.Context, me, other string) (PairState, error) {
	a, b, err := e.checkPair(ctx, me, other)
	if err != nil {
		return "", err
	}

	req, err := e.store.FindRequest(ctx, a.ID, b.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if a.IsConnected(b.ID) {
			return StateConnected, nil
		}
		return StateNone, nil
	case err != nil:
		return "", store.Translate(err, errs.ErrRequestNotFound)
	case req.Status == StatusAccepted:
		return StateConnected, nil
	case req.From == a.ID:
		return StatePending, nil
	default:
		return StateReceived, nil
	}
}

// Network lists me's connections, followers, followees and incoming pending requesters.
func (e *Engine) Network(ctx context.Context, me string) (Network, error) {
	u, err := e.store.GetUser(ctx, me)
	if err != nil {
		return Network{}, store.Translate(err, errs.ErrUserNotFound)
	}

	pending, err := e.store.PendingRequestsTo(ctx, me)
	if err != nil {
		return Network{}, store.Translate(err, errs.ErrUserNotFound)
	}
	requesters := make([]string, 0, len(pending))
	for _, r := range pending {
		requesters = append(requesters, r.From)
	}

	lists := [][]string{dedupe(u.Connections), dedupe(u.Followers), dedupe(u.Following), dedupe(requesters)}

	var ids []string
	for _, list := range lists {
		ids = append(ids, list...)
	}
	profiles, err := e.store.Profiles(ctx, dedupe(ids))
	if err != nil {
		return Network{}, store.Translate(err, errs.ErrUserNotFound)
	}

	resolve := func(list []string) []user.Profile {
		out := make([]user.Profile, 0, len(list))
		for _, id := range list {
			if p, ok := profiles[id]; ok {
				out = append(out, p)
			}
		}
		return out
	}

	return Network{
		Connections:        resolve(lists[0]),
		Followers:          resolve(lists[1]),
		Following:          resolve(lists[2]),
		PendingConnections: resolve(lists[3]),
	}, nil
}

func (e *Engine) notify(ctx context.Context, userID string, ev push.Event) {
	if e.pub == nil {
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PushTimeout)
	defer cancel()

	if err := e.pub.Publish(pushCtx, userID, ev); err != nil && !errors.Is(err, push.ErrOffline) {
		e.logger.Warn().Err(err).Str("to_user_id", userID).Str("event", ev.Type).Msg("Notice delivery failed.")
	}
}

// dedupe keeps the first occurrence of every id.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
