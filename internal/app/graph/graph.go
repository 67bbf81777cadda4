/*
Package graph implements the relationship engine: follow edges, connection requests and
mutual connections.

A pair of users is in one of three states: no relation, a pending request from one side, or
connected. Follow edges are independent of that state. All store mutations are idempotent set
operations and the engine serializes mutations per unordered pair, so retried or concurrent
calls converge.
*/
package graph

import (
	"context"
	"strconv"
	"time"

	"pingup/internal/app/user"
)

// RequestStatus is the lifecycle state of a connection request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
)

// Request is the connection ledger entry of a pair. A pair has at most one.
type Request struct {
	ID        string        `json:"_id" bson:"_id"`
	From      string        `json:"from_user_id" bson:"from_user_id"`
	To        string        `json:"to_user_id" bson:"to_user_id"`
	Status    RequestStatus `json:"status" bson:"status"`
	CreatedAt time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updated_at"`
}

// PairState is the relationship of the caller to another user.
type PairState string

const (
	StateNone      PairState = "none"
	StatePending   PairState = "pending"
	StateReceived  PairState = "received"
	StateConnected PairState = "connected"
)

// PairKey returns the canonical key of an unordered pair.
// The first id is length-prefixed so ids containing the separator cannot collide.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + "|" + b
}

// Store is the connection graph persistence.
// Every mutation must be idempotent: repeating it leaves the same state.
type Store interface {
	user.Directory

	// FindRequest returns the request between a and b in either direction, or store.ErrNotFound.
	FindRequest(ctx context.Context, a, b string) (Request, error)

	// CreateRequest inserts r. It returns store.ErrDuplicate when the pair already has one.
	CreateRequest(ctx context.Context, r Request) error

	// CountRequestsSince counts requests created by from at or after since.
	CountRequestsSince(ctx context.Context, from string, since time.Time) (int, error)

	// PendingRequestsTo lists pending requests addressed to userID.
	PendingRequestsTo(ctx context.Context, userID string) ([]Request, error)

	// DeletePendingRequest removes the pending request from -> to and reports whether one existed.
	DeletePendingRequest(ctx context.Context, from, to string) (bool, error)

	// Follow adds from to to's followers and to to from's following.
	// It reports whether from's following edge was newly added.
	Follow(ctx context.Context, from, to string) (bool, error)

	// Connect adds each user to the other's connections and marks request id accepted.
	Connect(ctx context.Context, id, a, b string, at time.Time) error

	// Disconnect removes every follow and connection membership between a and b and
	// deletes their request. It reports whether anything was removed.
	Disconnect(ctx context.Context, a, b string) (bool, error)
}

// Network is a user's relationship overview.
type Network struct {
	Connections        []user.Profile `json:"connections"`
	Followers          []user.Profile `json:"followers"`
	Following          []user.Profile `json:"following"`
	PendingConnections []user.Profile `json:"pendingConnections"`
}
