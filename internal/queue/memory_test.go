package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

func testJob(t *testing.T, priority int) *models.Job {
	t.Helper()
	msg := &models.Message{
		ID:         models.NewMessageID(),
		ChatroomID: uuid.New(),
		Content:    "hello",
		Sender:     models.SenderUser,
	}
	return models.NewJob(msg, uuid.New(), priority)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	job := testJob(t, 1)
	first, err := q.Enqueue(ctx, job)
	if err != nil {
		t.Fatal(err)
	}

	// Second enqueue for the same triggering message is a no-op that
	// returns the existing job.
	dup := models.NewJob(&models.Message{ID: job.MessageID, ChatroomID: job.ChatroomID, Content: "hello", Sender: models.SenderUser}, job.UserID, 1)
	second, err := q.Enqueue(ctx, dup)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate enqueue created a new job: %s vs %s", second.ID, first.ID)
	}

	stats, _ := q.Stats(ctx)
	if stats.Waiting != 1 {
		t.Fatalf("waiting = %d, want 1", stats.Waiting)
	}
}

func TestDequeueOrderPriorityThenFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	low1 := testJob(t, 2)
	low2 := testJob(t, 2)
	low2.EnqueuedAt = low1.EnqueuedAt.Add(time.Millisecond)
	high := testJob(t, 1)
	high.EnqueuedAt = low1.EnqueuedAt.Add(2 * time.Millisecond)

	for _, job := range []*models.Job{low1, low2, high} {
		if _, err := q.Enqueue(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	// Lower priority value dequeues first despite later enqueue.
	want := []string{high.ID, low1.ID, low2.ID}
	for i, expected := range want {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if job.ID != expected {
			t.Fatalf("dequeue %d = %s, want %s", i, job.ID, expected)
		}
		if job.State != models.JobActive {
			t.Fatalf("dequeued job state = %s, want active", job.State)
		}
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	done := make(chan *models.Job, 1)
	go func() {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		done <- job
	}()

	select {
	case <-done:
		t.Fatal("dequeue returned before any job was enqueued")
	case <-time.After(20 * time.Millisecond):
	}

	job := testJob(t, 1)
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-done:
		if got.ID != job.ID {
			t.Fatalf("dequeued %s, want %s", got.ID, job.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake after enqueue")
	}
}

func TestDequeueHonorsContextCancel(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after cancel")
	}
}

func TestRequeuePreservesIdentityAndDelays(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	job := testJob(t, 1)
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	active, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}

	active.Attempts++
	if err := q.Requeue(ctx, active, 15*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	// Not ready before the delay elapses.
	shortCtx, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(shortCtx); err == nil {
		t.Fatal("job became ready before its retry delay")
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != job.ID {
		t.Fatalf("retry produced a fresh identity: %s vs %s", got.ID, job.ID)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
}

func TestTerminalStatesAndStats(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	a := testJob(t, 1)
	b := testJob(t, 1)
	for _, job := range []*models.Job{a, b} {
		if _, err := q.Enqueue(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	first, _ := q.Dequeue(ctx)
	if err := q.Complete(ctx, first); err != nil {
		t.Fatal(err)
	}
	second, _ := q.Dequeue(ctx)
	if err := q.Fail(ctx, second, "permanent: content rejected"); err != nil {
		t.Fatal(err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Waiting != 0 || stats.Active != 0 || stats.Completed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	failed, err := q.Get(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if failed.State != models.JobFailed || failed.LastError == "" {
		t.Fatalf("failed job record not retained: %+v", failed)
	}
}

func TestTerminalRecordsArePruned(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var oldest, newest string
	for i := 0; i <= memoryTerminalCap; i++ {
		job := testJob(t, 1)
		if i == 0 {
			oldest = job.ID
		}
		newest = job.ID
		if _, err := q.Enqueue(ctx, job); err != nil {
			t.Fatal(err)
		}
		active, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if err := q.Complete(ctx, active); err != nil {
			t.Fatal(err)
		}
	}

	// One past the cap: the first terminal record is gone, the most
	// recent survives, counters keep the full total.
	if got, err := q.Get(ctx, oldest); err != nil || got != nil {
		t.Fatalf("oldest terminal record not evicted: %+v, %v", got, err)
	}
	if got, err := q.Get(ctx, newest); err != nil || got == nil {
		t.Fatalf("newest terminal record missing: %v", err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Completed != memoryTerminalCap+1 {
		t.Fatalf("completed = %d, want %d", stats.Completed, memoryTerminalCap+1)
	}
}

func TestObserversReceiveTransitions(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	var mu sync.Mutex
	var states []models.JobState
	q.Subscribe(func(ev Event) {
		mu.Lock()
		states = append(states, ev.State)
		mu.Unlock()
	})

	job := testJob(t, 1)
	if _, err := q.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	active, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Complete(ctx, active); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []models.JobState{models.JobWaiting, models.JobActive, models.JobCompleted}
	if len(states) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(states), len(want), states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, states[i], want[i])
		}
	}
}
