package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/cache"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/queue"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/quota"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/retry"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/store"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/worker"
)

type fixture struct {
	svc    *Service
	store  *store.MemoryStore
	queue  *queue.MemoryQueue
	cache  *cache.Coordinator
	userID uuid.UUID
	roomID uuid.UUID
}

func newFixture(t *testing.T, limits quota.Limits) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	user, err := st.CreateUser(ctx, "chat@test.dev")
	if err != nil {
		t.Fatal(err)
	}
	room, err := st.CreateChatroom(ctx, user.ID, "general", "")
	if err != nil {
		t.Fatal(err)
	}

	q := queue.NewMemoryQueue()
	c := cache.New(cache.NewMemoryBackend(), 0, zerolog.Nop())
	svc := NewService(st, quota.NewAccountant(st, limits), c, q, zerolog.Nop())

	return &fixture{svc: svc, store: st, queue: q, cache: c, userID: user.ID, roomID: room.ID}
}

func TestSendMessagePersistsAndEnqueues(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	ctx := context.Background()

	res, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "  Hello  ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Message.Content != "Hello" {
		t.Fatalf("content = %q, want trimmed %q", res.Message.Content, "Hello")
	}
	if res.Message.Sender != models.SenderUser {
		t.Fatalf("sender = %s", res.Message.Sender)
	}
	if res.JobID != models.JobID(res.Message.ID) {
		t.Fatalf("job id = %q, want %q", res.JobID, models.JobID(res.Message.ID))
	}
	if res.Usage.Used != 1 || res.Usage.Remaining != 4 {
		t.Fatalf("usage = %+v, want used 1 remaining 4", res.Usage)
	}

	job, err := f.queue.Get(ctx, res.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.State != models.JobWaiting {
		t.Fatalf("job not waiting: %+v", job)
	}
	if job.Prompt != "Hello" {
		t.Fatalf("job prompt = %q", job.Prompt)
	}
}

func TestSendMessageQuotaRejectionHasNoSideEffects(t *testing.T) {
	f := newFixture(t, quota.Limits{Basic: 5, Pro: 1000})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.svc.SendMessage(ctx, f.userID, f.roomID, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	_, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "one too many")
	if !errors.Is(err, models.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	msgs, err := f.store.ListMessages(ctx, f.roomID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Fatalf("persisted messages = %d, want 5 (rejection must not persist)", len(msgs))
	}
	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Waiting != 5 {
		t.Fatalf("waiting jobs = %d, want 5", stats.Waiting)
	}
}

func TestSendMessageProTierLimit(t *testing.T) {
	f := newFixture(t, quota.Limits{Basic: 1, Pro: 1000})
	ctx := context.Background()
	if err := f.store.SetSubscription(ctx, f.userID, "pro", "active"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		res, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "hi")
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if res.Usage.Tier != "pro" {
			t.Fatalf("tier = %q, want pro", res.Usage.Tier)
		}
	}
}

func TestSendMessageUnknownChatroom(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	_, err := f.svc.SendMessage(context.Background(), f.userID, uuid.New(), "hello")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSendMessageForeignChatroomIsNotFound(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	ctx := context.Background()
	other, err := f.store.CreateUser(ctx, "other@test.dev")
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.SendMessage(ctx, other.ID, f.roomID, "hello")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for another user's chatroom", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	for _, content := range []string{"", "   "} {
		_, err := f.svc.SendMessage(context.Background(), f.userID, f.roomID, content)
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("content %q: err = %v, want ErrValidation", content, err)
		}
	}
}

// brokenQueue fails every enqueue, standing in for an unreachable Redis.
type brokenQueue struct {
	queue.Queue
}

func (b *brokenQueue) Enqueue(ctx context.Context, job *models.Job) (*models.Job, error) {
	return nil, fmt.Errorf("%w: connection refused", models.ErrQueueUnavailable)
}

func TestSendMessageQueueUnavailableKeepsMessage(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	f.svc.queue = &brokenQueue{}
	ctx := context.Background()

	res, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "hello")
	if !errors.Is(err, models.ErrQueueUnavailable) {
		t.Fatalf("err = %v, want ErrQueueUnavailable", err)
	}
	if res == nil || res.Message == nil {
		t.Fatal("persisted message must be returned alongside the error")
	}

	stored, gerr := f.store.GetMessage(ctx, res.Message.ID)
	if gerr != nil {
		t.Fatal(gerr)
	}
	if stored == nil {
		t.Fatal("message must survive an enqueue failure")
	}
}

// flakyQueue fails the first n enqueues, then delegates.
type flakyQueue struct {
	queue.Queue
	failures int
}

func (f *flakyQueue) Enqueue(ctx context.Context, job *models.Job) (*models.Job, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("%w: connection refused", models.ErrQueueUnavailable)
	}
	return f.Queue.Enqueue(ctx, job)
}

func TestRetryEnqueueDoesNotDuplicateMessage(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	f.svc.queue = &flakyQueue{Queue: f.queue, failures: 1}
	ctx := context.Background()

	res, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "hello")
	if !errors.Is(err, models.ErrQueueUnavailable) {
		t.Fatalf("err = %v, want ErrQueueUnavailable", err)
	}

	// The recovery path re-runs only the hand-off, keyed by the saved
	// message ID.
	retry, err := f.svc.RetryEnqueue(ctx, f.userID, f.roomID, res.Message.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retry.Message.ID != res.Message.ID {
		t.Fatalf("retry returned a different message: %s vs %s", retry.Message.ID, res.Message.ID)
	}
	if retry.JobID != models.JobID(res.Message.ID) {
		t.Fatalf("job id = %q, want %q", retry.JobID, models.JobID(res.Message.ID))
	}

	msgs, err := f.store.ListMessages(ctx, f.roomID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages persisted after retry = %d, want 1", len(msgs))
	}
	job, err := f.queue.Get(ctx, retry.JobID)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.State != models.JobWaiting {
		t.Fatalf("job not queued after retry: %+v", job)
	}
}

func TestRetryEnqueueIsIdempotent(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	ctx := context.Background()

	res, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "hello")
	if err != nil {
		t.Fatal(err)
	}

	// Retrying a send that actually succeeded lands on the same job.
	retry, err := f.svc.RetryEnqueue(ctx, f.userID, f.roomID, res.Message.ID)
	if err != nil {
		t.Fatal(err)
	}
	if retry.JobID != res.JobID {
		t.Fatalf("retry minted a new job: %s vs %s", retry.JobID, res.JobID)
	}
	stats, err := f.queue.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Waiting != 1 {
		t.Fatalf("waiting = %d, want 1", stats.Waiting)
	}
}

func TestRetryEnqueueUnknownMessage(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	_, err := f.svc.RetryEnqueue(context.Background(), f.userID, f.roomID, models.NewMessageID())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// stubGenerator always answers with the same reply.
type stubGenerator struct{ reply string }

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.reply, nil
}
func (g *stubGenerator) Model() string { return "test-model" }

func TestSendMessageEndToEnd(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	ctx := context.Background()

	done := make(chan struct{}, 1)
	f.queue.Subscribe(func(ev queue.Event) {
		if ev.State.Terminal() {
			done <- struct{}{}
		}
	})

	pool := worker.New(f.queue, f.store, &stubGenerator{reply: "Hi there"}, f.cache,
		retry.DefaultPolicy(), worker.Config{Size: 1}, zerolog.Nop())
	pool.Start(ctx)
	defer pool.Stop()

	res, err := f.svc.SendMessage(ctx, f.userID, f.roomID, "Hello")
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not finish")
	}

	detail, err := f.svc.GetChatroom(ctx, f.userID, f.roomID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("messages = %d, want user turn plus ai reply", len(detail.Messages))
	}
	m1, m2 := detail.Messages[0], detail.Messages[1]
	if m1.ID != res.Message.ID || m1.Sender != models.SenderUser {
		t.Fatalf("first message is not the user turn: %+v", m1)
	}
	if m2.Sender != models.SenderAI || m2.Content != "Hi there" {
		t.Fatalf("second message is not the ai reply: %+v", m2)
	}
	if m2.InReplyTo != m1.ID {
		t.Fatalf("in_reply_to = %q, want %q", m2.InReplyTo, m1.ID)
	}
}

func TestListChatroomsReadThrough(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	ctx := context.Background()

	first, err := f.svc.ListChatrooms(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || first[0].Name != "general" {
		t.Fatalf("listing = %+v", first)
	}

	// A second listing is served from cache: mutate the store behind
	// the service's back and expect the stale entry.
	if _, err := f.store.CreateChatroom(ctx, f.userID, "hidden", ""); err != nil {
		t.Fatal(err)
	}
	cached, err := f.svc.ListChatrooms(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected cached listing of 1, got %d", len(cached))
	}
}

func TestChatroomMutationsInvalidateCache(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	ctx := context.Background()

	if _, err := f.svc.ListChatrooms(ctx, f.userID); err != nil {
		t.Fatal(err)
	}

	room, err := f.svc.CreateChatroom(ctx, f.userID, "projects", "work stuff")
	if err != nil {
		t.Fatal(err)
	}
	rooms, err := f.svc.ListChatrooms(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 {
		t.Fatalf("after create: listing = %d rooms, want 2", len(rooms))
	}

	newName := "archive"
	if _, err := f.svc.UpdateChatroom(ctx, f.userID, room.ID, &newName, nil); err != nil {
		t.Fatal(err)
	}
	rooms, err = f.svc.ListChatrooms(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range rooms {
		if r.ID == room.ID && r.Name == "archive" {
			found = true
		}
	}
	if !found {
		t.Fatalf("after rename: listing = %+v, rename not visible", rooms)
	}

	if err := f.svc.DeleteChatroom(ctx, f.userID, room.ID); err != nil {
		t.Fatal(err)
	}
	rooms, err = f.svc.ListChatrooms(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 {
		t.Fatalf("after delete: listing = %d rooms, want 1", len(rooms))
	}
}

func TestDeleteChatroomNotFound(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	err := f.svc.DeleteChatroom(context.Background(), f.userID, uuid.New())
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateChatroomEmptyNameRejected(t *testing.T) {
	f := newFixture(t, quota.DefaultLimits())
	empty := " "
	_, err := f.svc.UpdateChatroom(context.Background(), f.userID, f.roomID, &empty, nil)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
