package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pingup/internal/app/chat"
	"pingup/internal/app/memstore"
	"pingup/internal/app/push"
	"pingup/internal/app/store"
	"pingup/internal/app/store/storetest"
	"pingup/internal/pkg/errs"
)

type published struct {
	userID string
	event  push.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
	// persisted is checked at publish time to prove the write happened first.
	persisted func(id string) bool
	sawStored bool
}

func (p *recordingPublisher) Publish(_ context.Context, userID string, ev push.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.persisted != nil {
		if view, ok := ev.Message.(chat.MessageView); ok {
			p.sawStored = p.persisted(view.ID)
		}
	}
	p.events = append(p.events, published{userID: userID, event: ev})
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type fakeMedia struct {
	objects map[string]chat.ObjectInfo
	err     error
}

func (f *fakeMedia) Stat(_ context.Context, key string) (chat.ObjectInfo, error) {
	if f.err != nil {
		return chat.ObjectInfo{}, f.err
	}
	info, ok := f.objects[key]
	if !ok {
		return chat.ObjectInfo{}, store.ErrNotFound
	}
	return info, nil
}

func (f *fakeMedia) ObjectURL(key string) string { return "https://cdn.example.com/" + key }

type failingStore struct {
	*memstore.Store
}

func (failingStore) CreateMessage(context.Context, chat.Message) error {
	return errors.New("disk full")
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("msg-%03d", n)
	}
}

func newService(t *testing.T, pub chat.Publisher, media chat.MediaHost) (*chat.Service, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	storetest.Seed(t, s, "alice", "bob")
	return chat.NewService(s, media, pub, chat.Config{Clock: fixedClock(), NewID: sequentialIDs()}), s
}

func TestSendMessagePersistsThenPushesOnce(t *testing.T) {
	s := memstore.New()
	storetest.Seed(t, s, "alice", "bob")

	pub := &recordingPublisher{}
	pub.persisted = func(id string) bool {
		conv, _ := s.Conversation(context.Background(), "alice", "bob")
		for _, m := range conv {
			if m.ID == id {
				return true
			}
		}
		return false
	}
	svc := chat.NewService(s, nil, pub, chat.Config{Clock: fixedClock(), NewID: sequentialIDs()})

	view, err := svc.SendMessage(context.Background(), "alice", chat.SendInput{To: "bob", Text: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if view.FromUser == nil || view.FromUser.ID != "alice" {
		t.Fatalf("sender profile not attached: %+v", view.FromUser)
	}

	if pub.count() != 1 {
		t.Fatalf("published %d events, want 1", pub.count())
	}
	ev := pub.events[0]
	if ev.userID != "bob" || ev.event.Type != push.TypeNewMessage {
		t.Fatalf("event = %+v", ev)
	}
	if !pub.sawStored {
		t.Fatal("message was pushed before it was persisted")
	}
}

func TestSendMessageOfflineRecipientStillSucceeds(t *testing.T) {
	svc, s := newService(t, &recordingPublisher{err: push.ErrOffline}, nil)

	if _, err := svc.SendMessage(context.Background(), "alice", chat.SendInput{To: "bob", Text: "are you there"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	conv, _ := s.Conversation(context.Background(), "alice", "bob")
	if len(conv) != 1 {
		t.Fatalf("conversation = %d messages, want 1", len(conv))
	}
}

func TestSendMessageWithRegistry(t *testing.T) {
	registry := push.NewRegistry()
	svc, _ := newService(t, registry, nil)

	if _, err := svc.SendMessage(context.Background(), "alice", chat.SendInput{To: "bob", Text: "offline"}); err != nil {
		t.Fatalf("SendMessage with no session: %v", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _ := newService(t, pub, nil)
	ctx := context.Background()

	long := make([]byte, chat.MaxTextBytes+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name string
		from string
		in   chat.SendInput
		code int
	}{
		{"missing recipient", "alice", chat.SendInput{Text: "hi"}, errs.ErrRecipientRequired},
		{"empty", "alice", chat.SendInput{To: "bob", Text: "   "}, errs.ErrMessageEmpty},
		{"too long", "alice", chat.SendInput{To: "bob", Text: string(long)}, errs.ErrMessageContentTooLong},
		{"unknown recipient", "alice", chat.SendInput{To: "carol", Text: "hi"}, errs.ErrUserNotFound},
		{"unknown sender", "mallory", chat.SendInput{To: "bob", Text: "hi"}, errs.ErrUserNotFound},
		{"media without host", "alice", chat.SendInput{To: "bob", Media: &chat.MediaInput{Type: "image", Key: "media/alice/a.png"}}, errs.ErrMediaUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, tc.from, tc.in)
			if !errs.Is(err, tc.code) {
				t.Fatalf("err = %v, want code %d", err, tc.code)
			}
		})
	}

	if pub.count() != 0 {
		t.Fatalf("rejected sends published %d events", pub.count())
	}
}

func TestSendMessageStoreFailureIsTransientAndNotPushed(t *testing.T) {
	s := memstore.New()
	storetest.Seed(t, s, "alice", "bob")
	pub := &recordingPublisher{}
	svc := chat.NewService(failingStore{s}, nil, pub, chat.Config{})

	_, err := svc.SendMessage(context.Background(), "alice", chat.SendInput{To: "bob", Text: "hi"})
	if errs.KindOf(err) != errs.KindTransient {
		t.Fatalf("kind = %s, want transient", errs.KindOf(err))
	}
	if pub.count() != 0 {
		t.Fatal("failed send must not push")
	}
}

func TestSendMessageMedia(t *testing.T) {
	media := &fakeMedia{objects: map[string]chat.ObjectInfo{
		"media/alice/pic.png":   {ContentType: "image/png", Size: 1024},
		"media/alice/huge.png":  {ContentType: "image/png", Size: chat.MaxMediaSize + 1},
		"media/alice/wrong.png": {ContentType: "image/jpeg", Size: 10},
		"media/bob/pic.png":     {ContentType: "image/png", Size: 10},
	}}
	svc, _ := newService(t, &recordingPublisher{}, media)
	ctx := context.Background()

	view, err := svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Media: &chat.MediaInput{Type: "image", Key: "media/alice/pic.png"}})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if view.Media == nil || view.Media.URL != "https://cdn.example.com/media/alice/pic.png" {
		t.Fatalf("media = %+v", view.Media)
	}

	rejects := map[string]chat.MediaInput{
		"foreign key":   {Type: "image", Key: "media/bob/pic.png"},
		"missing":       {Type: "image", Key: "media/alice/none.png"},
		"mime mismatch": {Type: "image", Key: "media/alice/wrong.png"},
		"video":         {Type: "video", Key: "media/alice/pic.png"},
	}
	for name, in := range rejects {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Media: &in})
			if !errs.Is(err, errs.ErrMediaInvalid) {
				t.Fatalf("err = %v, want ErrMediaInvalid", err)
			}
		})
	}

	_, err = svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Media: &chat.MediaInput{Type: "image", Key: "media/alice/huge.png"}})
	if !errs.Is(err, errs.ErrFileSizeTooLarge) {
		t.Fatalf("err = %v, want ErrFileSizeTooLarge", err)
	}

	media.err = errors.New("timeout")
	_, err = svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Media: &chat.MediaInput{Type: "image", Key: "media/alice/pic.png"}})
	if !errs.Is(err, errs.ErrFileStorageFailed) {
		t.Fatalf("err = %v, want ErrFileStorageFailed", err)
	}
}

func TestGetConversationOrdersAndMarksSeen(t *testing.T) {
	svc, s := newService(t, &recordingPublisher{err: push.ErrOffline}, nil)
	ctx := context.Background()

	for _, send := range []struct{ from, to, text string }{
		{"alice", "bob", "1"},
		{"bob", "alice", "2"},
		{"alice", "bob", "3"},
	} {
		if _, err := svc.SendMessage(ctx, send.from, chat.SendInput{To: send.to, Text: send.text}); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}

	conv, err := svc.GetConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv) != 3 {
		t.Fatalf("conversation = %d messages", len(conv))
	}
	for i, want := range []string{"1", "2", "3"} {
		if conv[i].Text != want {
			t.Fatalf("conv[%d] = %q, want %q", i, conv[i].Text, want)
		}
	}
	for _, m := range conv {
		if m.From == "alice" && !m.Seen {
			t.Fatalf("message %s from alice not marked seen", m.ID)
		}
		if m.From == "bob" && m.Seen {
			t.Fatalf("message %s from bob marked seen by its own sender", m.ID)
		}
	}

	inbox, _ := s.Inbox(ctx, "alice", 10)
	if len(inbox) != 1 || inbox[0].Seen {
		t.Fatalf("alice's inbound message should stay unseen: %+v", inbox)
	}
}

func TestInboxNewestFirstWithProfiles(t *testing.T) {
	svc, _ := newService(t, nil, nil)
	ctx := context.Background()

	svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Text: "first"})
	svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Text: "second"})

	views, err := svc.Inbox(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(views) != 2 || views[0].Text != "second" {
		t.Fatalf("inbox = %+v", views)
	}
	if views[0].FromUser == nil || views[0].FromUser.Username != "alice" {
		t.Fatalf("sender profile missing: %+v", views[0].FromUser)
	}
}

func TestSameInstantSendsKeepSendOrder(t *testing.T) {
	s := memstore.New()
	storetest.Seed(t, s, "alice", "bob")
	instant := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := chat.NewService(s, nil, nil, chat.Config{Clock: func() time.Time { return instant }})
	ctx := context.Background()

	want := []string{"0", "1", "2", "3", "4"}
	for _, text := range want {
		if _, err := svc.SendMessage(ctx, "alice", chat.SendInput{To: "bob", Text: text}); err != nil {
			t.Fatalf("SendMessage(%s): %v", text, err)
		}
	}

	conv, err := svc.GetConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	for i, m := range conv {
		if m.Text != want[i] {
			t.Fatalf("conv[%d] = %q, want %q", i, m.Text, want[i])
		}
	}

	inbox, err := svc.Inbox(ctx, "bob", 0)
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	for i, m := range inbox {
		if m.Text != want[len(want)-1-i] {
			t.Fatalf("inbox[%d] = %q, want %q", i, m.Text, want[len(want)-1-i])
		}
	}
}
