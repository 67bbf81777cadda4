package user

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"pingup/internal/app/store"
	"pingup/internal/pkg/errs"
)

const (
	maxUsernameLength = 64
	maxFullNameLength = 128
)

// Service exposes the identity hand-off and profile reads.
type Service struct {
	store Store
	clock func() time.Time
}

// NewService creates a Service. A nil clock uses time.Now.
func NewService(s Store, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: s, clock: clock}
}

// Sync stores the profile asserted by a verified identity token.
func (s *Service) Sync(ctx context.Context, p Profile) (User, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.Username = strings.TrimSpace(p.Username)
	p.FullName = strings.TrimSpace(p.FullName)

	if p.ID == "" {
		return User{}, errs.NewError(errs.ErrUnauthorized)
	}
	if p.Username == "" {
		p.Username = p.ID
	}
	if utf8.RuneCountInString(p.Username) > maxUsernameLength || utf8.RuneCountInString(p.FullName) > maxFullNameLength {
		return User{}, errs.NewError(errs.ErrInvalidParams)
	}

	u, err := s.store.UpsertProfile(ctx, p, s.clock().UTC())
	if err != nil {
		return User{}, store.Translate(err, errs.ErrUnknown)
	}
	return u, nil
}

// Get returns a user or ErrUserNotFound.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, store.Translate(err, errs.ErrUserNotFound)
	}
	return u, nil
}
