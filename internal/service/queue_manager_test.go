package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
	"article-pipeline/internal/testsupport"
)

var start = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

func newManager(t *testing.T) (*service.QueueManager, *testsupport.Clock) {
	t.Helper()
	st := testsupport.NewStores(t)
	clock := testsupport.NewClock(start)
	qm := service.NewQueueManager(st.Jobs, service.Options{
		Lease:  5 * time.Minute,
		Now:    clock.Now,
		Logger: testsupport.DiscardLogger(),
	})
	return qm, clock
}

func createVectorize(t *testing.T, qm *service.QueueManager, articleID int64) uuid.UUID {
	t.Helper()
	id, err := qm.Enqueue(context.Background(), entity.VectorizePayload{
		ArticleID:  articleID,
		ContentKey: "content/article_1.json",
	}, entity.DefaultPriority)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func TestQueueManager_CreateJob_Validation(t *testing.T) {
	ctx := context.Background()
	qm, _ := newManager(t)

	cases := []struct {
		name string
		req  service.CreateJobRequest
	}{
		{"unknown type", service.CreateJobRequest{Type: "resize", Payload: json.RawMessage(`{}`)}},
		{"missing payload", service.CreateJobRequest{Type: "extract"}},
		{"missing url", service.CreateJobRequest{Type: "extract", Payload: json.RawMessage(`{"article_id":1}`)}},
		{"wrong shape", service.CreateJobRequest{Type: "vectorize", Payload: json.RawMessage(`{"article_id":1,"url":"https://x"}`)}},
		{"zero article", service.CreateJobRequest{Type: "extract", Payload: json.RawMessage(`{"article_id":0,"url":"https://x"}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := qm.CreateJob(ctx, tc.req)
			if !errors.Is(err, service.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	zero := 0
	_, err := qm.CreateJob(ctx, service.CreateJobRequest{
		Type:        "extract",
		Payload:     json.RawMessage(`{"article_id":1,"url":"https://x"}`),
		MaxAttempts: &zero,
	})
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected ErrValidation for max_attempts=0, got %v", err)
	}
}

func TestQueueManager_CreateJob_Defaults(t *testing.T) {
	ctx := context.Background()
	qm, _ := newManager(t)

	id, err := qm.CreateJob(ctx, service.CreateJobRequest{
		Type:    "extract",
		Payload: json.RawMessage(`{"article_id":42,"url":"https://x"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	job, err := qm.GetJob(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if job.Priority != 1 || job.MaxAttempts != 3 || job.ArticleID != 42 || job.Status != entity.StatusPending {
		t.Fatalf("job: %+v", job)
	}
	p, ok := job.Payload.(entity.ExtractPayload)
	if !ok || p.URL != "https://x" {
		t.Fatalf("payload: %#v", job.Payload)
	}
}

func TestQueueManager_RetryBoundary(t *testing.T) {
	ctx := context.Background()
	qm, _ := newManager(t)

	three := createVectorize(t, qm, 1)
	two := createVectorize(t, qm, 2)

	for i := 0; i < 3; i++ {
		if _, err := qm.FailJob(ctx, three, "embedder unavailable", false); err != nil {
			t.Fatalf("fail #%d: %v", i+1, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := qm.FailJob(ctx, two, "embedder unavailable", false); err != nil {
			t.Fatalf("fail #%d: %v", i+1, err)
		}
	}

	j, _ := qm.GetJob(ctx, three)
	if j.Status != entity.StatusFailed || j.Attempts != 3 {
		t.Fatalf("three fails: %s/%d", j.Status, j.Attempts)
	}
	j, _ = qm.GetJob(ctx, two)
	if j.Status != entity.StatusPending || j.Attempts != 2 {
		t.Fatalf("two fails: %s/%d", j.Status, j.Attempts)
	}

	// once exhausted nothing automatic brings it back
	if _, err := qm.FailJob(ctx, three, "again", false); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := qm.ReclaimFailed(ctx, three, "sweep"); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on reclaim, got %v", err)
	}
	if n, _ := qm.Cleanup(ctx); n != 0 {
		t.Fatalf("cleanup touched %d jobs", n)
	}
	j, _ = qm.GetJob(ctx, three)
	if j.Status != entity.StatusFailed || j.Attempts > j.MaxAttempts {
		t.Fatalf("after cleanup: %s/%d", j.Status, j.Attempts)
	}
}

func TestQueueManager_ExclusiveClaim(t *testing.T) {
	ctx := context.Background()
	qm, _ := newManager(t)

	const n = 7
	for i := 0; i < n; i++ {
		createVectorize(t, qm, int64(i+1))
	}

	const callers = 3
	const limit = 2
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []uuid.UUID
	)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobs, err := qm.ClaimJobsForWorker(ctx, entity.JobVectorize, limit, "")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			mu.Lock()
			for _, j := range jobs {
				all = append(all, j.ID)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	seen := map[uuid.UUID]bool{}
	for _, id := range all {
		if seen[id] {
			t.Fatalf("job %s claimed twice", id)
		}
		seen[id] = true
	}
	if len(all) != callers*limit {
		t.Fatalf("claimed %d, want %d", len(all), callers*limit)
	}
}

func TestQueueManager_CleanupStaleLease(t *testing.T) {
	ctx := context.Background()
	qm, clock := newManager(t)

	stale := createVectorize(t, qm, 1)
	if _, err := qm.ClaimJob(ctx, stale, "crashed"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(9 * time.Minute)
	fresh := createVectorize(t, qm, 2)
	if _, err := qm.ClaimJob(ctx, fresh, "alive"); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute) // stale started 10m ago, fresh 1m ago
	n, err := qm.Cleanup(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleanup: n=%d err=%v", n, err)
	}
	n, err = qm.Cleanup(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second cleanup: n=%d err=%v", n, err)
	}

	j, _ := qm.GetJob(ctx, stale)
	if j.Status != entity.StatusPending || j.AssignedWorker != nil {
		t.Fatalf("stale job: %+v", j)
	}
	j, _ = qm.GetJob(ctx, fresh)
	if j.Status != entity.StatusProcessing || j.AssignedWorker == nil {
		t.Fatalf("fresh job: %+v", j)
	}
}

func TestQueueManager_CompleteAndRetry(t *testing.T) {
	ctx := context.Background()
	qm, _ := newManager(t)

	id := createVectorize(t, qm, 1)
	if err := qm.CompleteJob(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := qm.CompleteJob(ctx, id); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if err := qm.CompleteJob(ctx, uuid.New()); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	failed := createVectorize(t, qm, 2)
	_, _ = qm.FailJob(ctx, failed, "bad content", true)
	if err := qm.CompleteJob(ctx, failed); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("complete on failed: %v", err)
	}
	if err := qm.RetryJob(ctx, failed); err != nil {
		t.Fatalf("retry: %v", err)
	}
	j, _ := qm.GetJob(ctx, failed)
	if j.Status != entity.StatusPending || j.Attempts != 0 {
		t.Fatalf("after retry: %+v", j)
	}

	claimed, _ := qm.ClaimJob(ctx, failed, "w")
	if err := qm.RetryJob(ctx, claimed.ID); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("retry while processing: %v", err)
	}
}

func TestQueueManager_Stats(t *testing.T) {
	ctx := context.Background()
	qm, clock := newManager(t)

	old := createVectorize(t, qm, 1)
	_ = qm.CompleteJob(ctx, old)

	clock.Advance(24 * time.Hour)
	done := createVectorize(t, qm, 2)
	_ = qm.CompleteJob(ctx, done)
	failed := createVectorize(t, qm, 3)
	_, _ = qm.FailJob(ctx, failed, "x", true)
	createVectorize(t, qm, 4)
	running := createVectorize(t, qm, 5)
	_, _ = qm.ClaimJob(ctx, running, "w")

	st, err := qm.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Pending != 1 || st.Processing != 1 || st.CompletedToday != 1 || st.FailedToday != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if st.ByStatus[entity.StatusCompleted] != 2 {
		t.Fatalf("by status: %v", st.ByStatus)
	}

	jobs, err := qm.ListJobs(ctx, repository.JobFilter{Statuses: []entity.JobStatus{entity.StatusCompleted}})
	if err != nil || len(jobs) != 2 {
		t.Fatalf("list: %d err=%v", len(jobs), err)
	}
	if jobs[0].ID != done {
		t.Fatal("list is not newest first")
	}
}

func TestQueueManager_FailJob_ClipsMultiByteError(t *testing.T) {
	ctx := context.Background()
	qm, _ := newManager(t)
	id := createVectorize(t, qm, 1)
	if _, err := qm.ClaimJob(ctx, id, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	res, err := qm.FailJob(ctx, id, "x"+strings.Repeat("é", 600), false)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if res.Status != entity.StatusPending || res.Attempts != 1 {
		t.Fatalf("fail result = %+v", res)
	}

	j, err := qm.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Error == nil {
		t.Fatal("error text not stored")
	}
	if msg := *j.Error; len(msg) > 1000 || !utf8.ValidString(msg) {
		t.Fatalf("stored error len=%d valid=%v", len(msg), utf8.ValidString(msg))
	}
}
