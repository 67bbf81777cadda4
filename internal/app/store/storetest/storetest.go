/*
Package storetest is the behaviour suite every storage backend must pass.
*/
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/store"
	"pingup/internal/app/user"
)

// Backend is the full persistence surface of the server.
type Backend interface {
	user.Store
	chat.Store
	graph.Store
}

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes the suite; newBackend must return an empty backend per call.
func Run(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, newBackend(t)) })
	t.Run("Messages", func(t *testing.T) { testMessages(t, newBackend(t)) })
	t.Run("Requests", func(t *testing.T) { testRequests(t, newBackend(t)) })
	t.Run("FollowAndConnect", func(t *testing.T) { testFollowAndConnect(t, newBackend(t)) })
	t.Run("Disconnect", func(t *testing.T) { testDisconnect(t, newBackend(t)) })
	t.Run("SeparatorInIDs", func(t *testing.T) { testSeparatorInIDs(t, newBackend(t)) })
}

// Seed upserts users with ids and matching usernames.
func Seed(t *testing.T, b user.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := b.UpsertProfile(context.Background(), user.Profile{ID: id, Username: id, FullName: "User " + id}, base); err != nil {
			t.Fatalf("UpsertProfile(%s): %v", id, err)
		}
	}
}

func testProfiles(t *testing.T, b Backend) {
	ctx := context.Background()

	if _, err := b.GetUser(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetUser(ghost) err = %v, want ErrNotFound", err)
	}

	Seed(t, b, "alice")
	if _, err := b.UpsertProfile(ctx, user.Profile{ID: "alice", Username: "alice2", FullName: "Alice"}, base.Add(time.Hour)); err != nil {
		t.Fatalf("second UpsertProfile: %v", err)
	}

	u, err := b.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "alice2" || u.FullName != "Alice" {
		t.Fatalf("profile not refreshed: %+v", u)
	}
	if !u.CreatedAt.Equal(base) {
		t.Fatalf("created_at changed to %s", u.CreatedAt)
	}

	profiles, err := b.Profiles(ctx, []string{"alice", "ghost"})
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(profiles) != 1 || profiles["alice"].Username != "alice2" {
		t.Fatalf("profiles = %+v", profiles)
	}
}

func testMessages(t *testing.T, b Backend) {
	ctx := context.Background()
	Seed(t, b, "a", "b", "c")

	msgs := []chat.Message{
		{ID: "m1", From: "a", To: "b", Text: "one", CreatedAt: base},
		{ID: "m3", From: "b", To: "a", Text: "three", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m2", From: "a", To: "b", Media: &chat.Media{Type: "image", URL: "https://cdn/x.png", Key: "media/a/x.png"}, CreatedAt: base.Add(time.Second)},
		{ID: "m4", From: "c", To: "a", Text: "other", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		if err := b.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage(%s): %v", m.ID, err)
		}
	}

	conv, err := b.Conversation(ctx, "b", "a")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	wantOrder := []string{"m1", "m2", "m3"}
	if len(conv) != len(wantOrder) {
		t.Fatalf("conversation has %d messages, want %d", len(conv), len(wantOrder))
	}
	for i, id := range wantOrder {
		if conv[i].ID != id {
			t.Fatalf("conversation[%d] = %s, want %s", i, conv[i].ID, id)
		}
	}
	if conv[1].Media == nil || conv[1].Media.URL != "https://cdn/x.png" {
		t.Fatalf("media not round-tripped: %+v", conv[1].Media)
	}
	if !conv[0].CreatedAt.Equal(base) {
		t.Fatalf("created_at = %s, want %s", conv[0].CreatedAt, base)
	}

	marked, err := b.MarkSeen(ctx, "a", "b")
	if err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	if marked != 2 {
		t.Fatalf("marked = %d, want 2", marked)
	}
	if again, _ := b.MarkSeen(ctx, "a", "b"); again != 0 {
		t.Fatalf("second MarkSeen marked %d", again)
	}

	conv, _ = b.Conversation(ctx, "a", "b")
	for _, m := range conv {
		wantSeen := m.From == "a"
		if m.Seen != wantSeen {
			t.Fatalf("message %s seen = %v, want %v", m.ID, m.Seen, wantSeen)
		}
	}

	inbox, err := b.Inbox(ctx, "a", 10)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(inbox) != 2 || inbox[0].ID != "m4" || inbox[1].ID != "m3" {
		t.Fatalf("inbox = %+v", inbox)
	}

	limited, _ := b.Inbox(ctx, "a", 1)
	if len(limited) != 1 || limited[0].ID != "m4" {
		t.Fatalf("limited inbox = %+v", limited)
	}
}

func testRequests(t *testing.T, b Backend) {
	ctx := context.Background()
	Seed(t, b, "a", "b", "c")

	if _, err := b.FindRequest(ctx, "a", "b"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("FindRequest err = %v, want ErrNotFound", err)
	}

	req := graph.Request{ID: "r1", From: "a", To: "b", Status: graph.StatusPending, CreatedAt: base, UpdatedAt: base}
	if err := b.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	reverse := graph.Request{ID: "r2", From: "b", To: "a", Status: graph.StatusPending, CreatedAt: base, UpdatedAt: base}
	if err := b.CreateRequest(ctx, reverse); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("reverse CreateRequest err = %v, want ErrDuplicate", err)
	}

	found, err := b.FindRequest(ctx, "b", "a")
	if err != nil {
		t.Fatalf("FindRequest reversed: %v", err)
	}
	if found.ID != "r1" || found.From != "a" || found.Status != graph.StatusPending {
		t.Fatalf("found = %+v", found)
	}

	later := graph.Request{ID: "r3", From: "a", To: "c", Status: graph.StatusPending, CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)}
	if err := b.CreateRequest(ctx, later); err != nil {
		t.Fatalf("CreateRequest(r3): %v", err)
	}

	if n, _ := b.CountRequestsSince(ctx, "a", base); n != 2 {
		t.Fatalf("count since base = %d, want 2", n)
	}
	if n, _ := b.CountRequestsSince(ctx, "a", base.Add(time.Minute)); n != 1 {
		t.Fatalf("count since base+1m = %d, want 1", n)
	}

	pending, err := b.PendingRequestsTo(ctx, "b")
	if err != nil {
		t.Fatalf("PendingRequestsTo: %v", err)
	}
	if len(pending) != 1 || pending[0].From != "a" {
		t.Fatalf("pending = %+v", pending)
	}

	if deleted, _ := b.DeletePendingRequest(ctx, "b", "a"); deleted {
		t.Fatal("delete with reversed direction must not match")
	}
	if deleted, _ := b.DeletePendingRequest(ctx, "a", "b"); !deleted {
		t.Fatal("delete should remove the pending request")
	}
	if _, err := b.FindRequest(ctx, "a", "b"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("request still present: %v", err)
	}
}

func testFollowAndConnect(t *testing.T, b Backend) {
	ctx := context.Background()
	Seed(t, b, "a", "b")

	added, err := b.Follow(ctx, "a", "b")
	if err != nil || !added {
		t.Fatalf("Follow = %v, %v; want true, nil", added, err)
	}
	added, err = b.Follow(ctx, "a", "b")
	if err != nil || added {
		t.Fatalf("repeated Follow = %v, %v; want false, nil", added, err)
	}

	ua, _ := b.GetUser(ctx, "a")
	ub, _ := b.GetUser(ctx, "b")
	if !ua.IsFollowing("b") || len(ub.Followers) != 1 || ub.Followers[0] != "a" {
		t.Fatalf("follow edges: a=%+v b=%+v", ua, ub)
	}

	if _, err := b.Follow(ctx, "a", "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Follow(ghost) err = %v, want ErrNotFound", err)
	}

	req := graph.Request{ID: "r1", From: "a", To: "b", Status: graph.StatusPending, CreatedAt: base, UpdatedAt: base}
	if err := b.CreateRequest(ctx, req); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	at := base.Add(time.Minute)
	if err := b.Connect(ctx, "r1", "b", "a", at); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := b.Connect(ctx, "r1", "b", "a", at.Add(time.Minute)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Connect err = %v, want ErrNotFound", err)
	}

	ua, _ = b.GetUser(ctx, "a")
	ub, _ = b.GetUser(ctx, "b")
	if len(ua.Connections) != 1 || !ua.IsConnected("b") || len(ub.Connections) != 1 || !ub.IsConnected("a") {
		t.Fatalf("connections not symmetric: a=%v b=%v", ua.Connections, ub.Connections)
	}

	found, _ := b.FindRequest(ctx, "a", "b")
	if found.Status != graph.StatusAccepted || !found.UpdatedAt.Equal(at) {
		t.Fatalf("request = %+v", found)
	}

	if pending, _ := b.PendingRequestsTo(ctx, "b"); len(pending) != 0 {
		t.Fatalf("accepted request still pending: %+v", pending)
	}
}

func testDisconnect(t *testing.T, b Backend) {
	ctx := context.Background()
	Seed(t, b, "a", "b")

	if removed, err := b.Disconnect(ctx, "a", "b"); err != nil || removed {
		t.Fatalf("Disconnect on strangers = %v, %v", removed, err)
	}

	b.Follow(ctx, "a", "b")
	b.Follow(ctx, "b", "a")
	b.CreateRequest(ctx, graph.Request{ID: "r1", From: "b", To: "a", Status: graph.StatusPending, CreatedAt: base, UpdatedAt: base})
	if err := b.Connect(ctx, "r1", "a", "b", base); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	removed, err := b.Disconnect(ctx, "a", "b")
	if err != nil || !removed {
		t.Fatalf("Disconnect = %v, %v", removed, err)
	}

	for _, id := range []string{"a", "b"} {
		u, _ := b.GetUser(ctx, id)
		if len(u.Following) != 0 || len(u.Followers) != 0 || len(u.Connections) != 0 {
			t.Fatalf("user %s still has edges: %+v", id, u)
		}
	}
	if _, err := b.FindRequest(ctx, "a", "b"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("request survived disconnect: %v", err)
	}

	if removed, _ := b.Disconnect(ctx, "b", "a"); removed {
		t.Fatal("second Disconnect should remove nothing")
	}
}

// ids may contain the pair separator; {"a|b","c"} and {"a","b|c"} are distinct pairs.
func testSeparatorInIDs(t *testing.T, b Backend) {
	ctx := context.Background()
	Seed(t, b, "a|b", "c", "a", "b|c")

	if graph.PairKey("a|b", "c") == graph.PairKey("a", "b|c") {
		t.Fatal("distinct pairs share a key")
	}

	first := graph.Request{ID: "r1", From: "a|b", To: "c", Status: graph.StatusPending, CreatedAt: base, UpdatedAt: base}
	if err := b.CreateRequest(ctx, first); err != nil {
		t.Fatalf("CreateRequest(a|b, c): %v", err)
	}
	second := graph.Request{ID: "r2", From: "a", To: "b|c", Status: graph.StatusPending, CreatedAt: base, UpdatedAt: base}
	if err := b.CreateRequest(ctx, second); err != nil {
		t.Fatalf("CreateRequest(a, b|c): %v", err)
	}

	found, err := b.FindRequest(ctx, "a", "b|c")
	if err != nil || found.ID != "r2" {
		t.Fatalf("FindRequest(a, b|c) = %+v, %v", found, err)
	}

	if removed, err := b.Disconnect(ctx, "a", "b|c"); err != nil || !removed {
		t.Fatalf("Disconnect(a, b|c) = %v, %v", removed, err)
	}

	found, err = b.FindRequest(ctx, "a|b", "c")
	if err != nil || found.ID != "r1" || found.Status != graph.StatusPending {
		t.Fatalf("unrelated request lost: %+v, %v", found, err)
	}
}
