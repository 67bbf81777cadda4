package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pingup/internal/app/chat"
	"pingup/internal/app/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "pingup.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend { return openTemp(t) })
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pingup.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	storetest.Seed(t, s, "a", "b")
	at := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	if err := s.CreateMessage(ctx, chat.Message{ID: "m1", From: "a", To: "b", Text: "persisted", CreatedAt: at}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	conv, err := s.Conversation(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv) != 1 || conv[0].Text != "persisted" || !conv[0].CreatedAt.Equal(at) {
		t.Fatalf("conversation = %+v", conv)
	}
}

func TestTimeLayoutSortsLexically(t *testing.T) {
	earlier := formatTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	later := formatTime(time.Date(2025, 1, 1, 0, 0, 0, 500, time.UTC))
	if !(earlier < later) {
		t.Fatalf("%q should sort before %q", earlier, later)
	}
	if got := parseTime(later); got.Nanosecond() != 500 {
		t.Fatalf("round trip lost nanoseconds: %v", got)
	}
}
