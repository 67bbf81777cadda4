/*
Package user contains the user record shared by the messaging and relationship components.

A User carries its profile plus three adjacency sets: the users it follows, the users
following it, and its mutual connections. Connections is kept symmetric by the stores.
*/
package user

import (
	"context"
	"time"
)

// User is a network member as stored by the persistence layer.
type User struct {
	ID             string    `json:"_id" bson:"_id"`
	Username       string    `json:"username" bson:"username"`
	FullName       string    `json:"full_name" bson:"full_name"`
	ProfilePicture string    `json:"profile_picture,omitempty" bson:"profile_picture,omitempty"`
	Following      []string  `json:"following" bson:"following"`
	Followers      []string  `json:"followers" bson:"followers"`
	Connections    []string  `json:"connections" bson:"connections"`
	CreatedAt      time.Time `json:"createdAt" bson:"created_at"`
}

// Profile is the display subset denormalized into messages, notices and network listings.
type Profile struct {
	ID             string `json:"_id" bson:"_id"`
	Username       string `json:"username" bson:"username"`
	FullName       string `json:"full_name" bson:"full_name"`
	ProfilePicture string `json:"profile_picture,omitempty" bson:"profile_picture,omitempty"`
}

// Profile returns the display subset of u.
func (u User) Profile() Profile {
	return Profile{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		ProfilePicture: u.ProfilePicture,
	}
}

// IsFollowing reports whether u follows other.
func (u User) IsFollowing(other string) bool {
	return contains(u.Following, other)
}

// IsConnected reports whether u and other are connected.
func (u User) IsConnected(other string) bool {
	return contains(u.Connections, other)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// Directory resolves users and profiles. Implementations return store.ErrNotFound for unknown ids.
type Directory interface {
	GetUser(ctx context.Context, id string) (User, error)

	// Profiles returns the profiles of the ids that exist; unknown ids are omitted.
	Profiles(ctx context.Context, ids []string) (map[string]Profile, error)
}

// Store adds the profile write used when an identity is first seen.
type Store interface {
	Directory

	// UpsertProfile creates the user or refreshes its profile fields. Adjacency sets are untouched.
	UpsertProfile(ctx context.Context, p Profile, at time.Time) (User, error)
}
