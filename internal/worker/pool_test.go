package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/cache"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/provider"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/queue"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/retry"
	"github.com/Gouthamsurepally/gemini-backend-clone/internal/store"
)

// scriptedGenerator returns canned outcomes per call, repeating the
// last one when the script runs out.
type scriptedGenerator struct {
	mu     sync.Mutex
	script []func(ctx context.Context) (string, error)
	calls  int
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	if idx >= len(g.script) {
		idx = len(g.script) - 1
	}
	step := g.script[idx]
	g.mu.Unlock()
	return step(ctx)
}

func (g *scriptedGenerator) Model() string { return "test-model" }

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func reply(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

// fastPolicy retries instantly so tests do not sleep through backoff.
func fastPolicy(maxAttempts int) retry.Policy {
	return retry.Policy{Base: time.Millisecond, Factor: 1, Cap: time.Millisecond, MaxAttempts: maxAttempts}
}

type env struct {
	queue *queue.MemoryQueue
	store *store.MemoryStore
	cache *cache.Coordinator
	pool  *Pool
	done  chan queue.Event

	userID  uuid.UUID
	room    *models.Chatroom
	userMsg *models.Message
}

// newEnv wires a pool over in-memory collaborators with one chatroom
// holding one user message.
func newEnv(t *testing.T, gen provider.Generator, policy retry.Policy) *env {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	user, err := st.CreateUser(ctx, "worker@test.dev")
	if err != nil {
		t.Fatal(err)
	}
	room, err := st.CreateChatroom(ctx, user.ID, "general", "")
	if err != nil {
		t.Fatal(err)
	}
	msg := &models.Message{ChatroomID: room.ID, Content: "Hello", Sender: models.SenderUser}
	if err := st.CreateMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	q := queue.NewMemoryQueue()
	done := make(chan queue.Event, 16)
	q.Subscribe(func(ev queue.Event) {
		if ev.State.Terminal() {
			done <- ev
		}
	})

	c := cache.New(cache.NewMemoryBackend(), 0, zerolog.Nop())
	pool := New(q, st, gen, c, policy, Config{Size: 1, CallTimeout: 50 * time.Millisecond}, zerolog.Nop())

	return &env{queue: q, store: st, cache: c, pool: pool, done: done, userID: user.ID, room: room, userMsg: msg}
}

// runJob enqueues the job for the env's user message, runs the pool
// until the job reaches a terminal state, and returns that state.
func (e *env) runJob(t *testing.T) models.JobState {
	t.Helper()
	ctx := context.Background()

	job := models.NewJob(e.userMsg, e.userID, 1)
	if _, err := e.queue.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}

	e.pool.Start(ctx)
	defer e.pool.Stop()

	select {
	case ev := <-e.done:
		return ev.State
	case <-time.After(5 * time.Second):
		t.Fatal("job did not reach a terminal state")
		return ""
	}
}

// aiReply returns the single ai message in the env's chatroom.
func (e *env) aiReply(t *testing.T) *models.Message {
	t.Helper()
	msgs, err := e.store.ListMessages(context.Background(), e.room.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	var ai *models.Message
	for i := range msgs {
		if msgs[i].Sender == models.SenderAI {
			if ai != nil {
				t.Fatal("more than one ai reply persisted")
			}
			ai = &msgs[i]
		}
	}
	if ai == nil {
		t.Fatal("no ai reply persisted")
	}
	return ai
}

func TestProcessSuccess(t *testing.T) {
	gen := &scriptedGenerator{script: []func(context.Context) (string, error){reply("Hi there")}}
	e := newEnv(t, gen, fastPolicy(3))

	if state := e.runJob(t); state != models.JobCompleted {
		t.Fatalf("job state = %s, want completed", state)
	}

	ai := e.aiReply(t)
	if ai.Content != "Hi there" {
		t.Fatalf("reply content = %q", ai.Content)
	}
	if ai.InReplyTo != e.userMsg.ID {
		t.Fatalf("in_reply_to = %q, want %q", ai.InReplyTo, e.userMsg.ID)
	}
	if ai.Metadata["model"] != "test-model" {
		t.Fatalf("metadata model = %v", ai.Metadata["model"])
	}

	// Reading the chatroom yields [user, ai] in creation order.
	msgs, err := e.store.ListMessages(context.Background(), e.room.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Sender != models.SenderUser || msgs[1].Sender != models.SenderAI {
		t.Fatalf("unexpected chatroom contents: %+v", msgs)
	}
}

func TestProcessTransientExhaustionPersistsSentinel(t *testing.T) {
	transient := &provider.Error{Transient: true, Status: 503, Reason: "upstream unavailable"}
	gen := &scriptedGenerator{script: []func(context.Context) (string, error){fail(transient)}}
	e := newEnv(t, gen, fastPolicy(3))

	if state := e.runJob(t); state != models.JobFailed {
		t.Fatalf("job state = %s, want failed", state)
	}
	if calls := gen.callCount(); calls != 3 {
		t.Fatalf("provider calls = %d, want 3", calls)
	}

	ai := e.aiReply(t)
	if ai.Content != SentinelReply {
		t.Fatalf("sentinel content = %q", ai.Content)
	}
	if ai.Metadata["error"] != true {
		t.Fatalf("sentinel metadata error = %v, want true", ai.Metadata["error"])
	}
	if ai.InReplyTo != e.userMsg.ID {
		t.Fatalf("sentinel in_reply_to = %q, want %q", ai.InReplyTo, e.userMsg.ID)
	}

	job, err := e.queue.Get(context.Background(), models.JobID(e.userMsg.ID))
	if err != nil {
		t.Fatal(err)
	}
	if job.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", job.Attempts)
	}
}

func TestProcessPermanentFailureSkipsRetry(t *testing.T) {
	permanent := &provider.Error{Status: 400, Reason: "content rejected"}
	gen := &scriptedGenerator{script: []func(context.Context) (string, error){fail(permanent)}}
	e := newEnv(t, gen, fastPolicy(3))

	if state := e.runJob(t); state != models.JobFailed {
		t.Fatalf("job state = %s, want failed", state)
	}
	if calls := gen.callCount(); calls != 1 {
		t.Fatalf("provider calls = %d, want 1 (no retries for permanent errors)", calls)
	}

	ai := e.aiReply(t)
	if ai.Metadata["error"] != true {
		t.Fatal("sentinel not marked as error")
	}
}

func TestProcessTimeoutRetriesThenSucceeds(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done() // exceed the worker's call timeout
		return "", ctx.Err()
	}
	gen := &scriptedGenerator{script: []func(context.Context) (string, error){slow, reply("recovered")}}
	e := newEnv(t, gen, fastPolicy(3))

	if state := e.runJob(t); state != models.JobCompleted {
		t.Fatalf("job state = %s, want completed", state)
	}
	if calls := gen.callCount(); calls != 2 {
		t.Fatalf("provider calls = %d, want 2", calls)
	}

	ai := e.aiReply(t)
	if ai.Content != "recovered" {
		t.Fatalf("reply content = %q", ai.Content)
	}
	if ai.Metadata["attempts"] != 2 {
		t.Fatalf("metadata attempts = %v, want 2", ai.Metadata["attempts"])
	}
}

// replyDroppingStore rejects real ai replies but lets the sentinel
// through, simulating a store outage that outlasts the retry budget.
type replyDroppingStore struct {
	*store.MemoryStore
}

func (s *replyDroppingStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.Sender == models.SenderAI && msg.Content != SentinelReply {
		return errors.New("disk full")
	}
	return s.MemoryStore.CreateMessage(ctx, msg)
}

func TestPersistFailureExhaustionWritesSentinel(t *testing.T) {
	gen := &scriptedGenerator{script: []func(context.Context) (string, error){reply("Hi there")}}
	e := newEnv(t, gen, fastPolicy(1))
	e.pool.store = &replyDroppingStore{MemoryStore: e.store}

	if state := e.runJob(t); state != models.JobFailed {
		t.Fatalf("job state = %s, want failed", state)
	}

	// Even when the real reply can never be written, the chatroom still
	// gets the terminal-failure marker.
	ai := e.aiReply(t)
	if ai.Content != SentinelReply {
		t.Fatalf("content = %q, want sentinel", ai.Content)
	}
	if ai.Metadata["error"] != true {
		t.Fatalf("metadata error = %v, want true", ai.Metadata["error"])
	}
	if ai.InReplyTo != e.userMsg.ID {
		t.Fatalf("in_reply_to = %q, want %q", ai.InReplyTo, e.userMsg.ID)
	}
}

func TestTransientRetryThenSuccessKeepsJobIdentity(t *testing.T) {
	transient := &provider.Error{Transient: true, Status: 429, Reason: "rate limited"}
	gen := &scriptedGenerator{script: []func(context.Context) (string, error){fail(transient), reply("second try")}}
	e := newEnv(t, gen, fastPolicy(3))

	var states []models.JobState
	var mu sync.Mutex
	e.queue.Subscribe(func(ev queue.Event) {
		mu.Lock()
		states = append(states, ev.State)
		mu.Unlock()
	})

	if state := e.runJob(t); state != models.JobCompleted {
		t.Fatalf("job state = %s, want completed", state)
	}

	// waiting -> active -> waiting (retry) -> active -> completed
	mu.Lock()
	defer mu.Unlock()
	want := []models.JobState{models.JobWaiting, models.JobActive, models.JobWaiting, models.JobActive, models.JobCompleted}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transition %d = %s, want %s", i, states[i], want[i])
		}
	}
}
