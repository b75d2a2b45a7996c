package worker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
	"article-pipeline/internal/stage"
	"article-pipeline/internal/testsupport"
	"article-pipeline/internal/worker"
)

var start = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	stores  testsupport.Stores
	clock   *testsupport.Clock
	qm      *service.QueueManager
	handoff *handoff.MemoryStore
	remotes *testsupport.Remotes
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := testsupport.NewStores(t)
	clock := testsupport.NewClock(start)
	return &harness{
		t:      t,
		stores: st,
		clock:  clock,
		qm: service.NewQueueManager(st.Jobs, service.Options{
			Now:    clock.Now,
			Logger: testsupport.DiscardLogger(),
		}),
		handoff: handoff.NewMemoryStore(),
		remotes: testsupport.NewRemotes(),
	}
}

func (h *harness) worker(typ entity.JobType, q worker.Queue, next ...entity.JobType) *worker.Worker {
	h.t.Helper()
	if q == nil {
		q = h.qm
	}
	handler, err := stage.New(typ, stage.Deps{
		Handoff:        h.handoff,
		Extractor:      h.remotes,
		Embedder:       h.remotes,
		Summarizer:     h.remotes,
		Translator:     h.remotes,
		Tagger:         h.remotes,
		TargetLanguage: "en",
		Now:            h.clock.Now,
	})
	if err != nil {
		h.t.Fatalf("stage %s: %v", typ, err)
	}
	proc := worker.NewProcessor(handler, q, h.stores.Articles, worker.ProcessorConfig{
		Next:   next,
		Lease:  5 * time.Minute,
		Now:    h.clock.Now,
		Logger: testsupport.DiscardLogger(),
	})
	return worker.New(worker.Config{WorkerID: "test-" + string(typ), Concurrency: 2}, proc, q, h.stores.Articles, testsupport.DiscardLogger())
}

func (h *harness) article(id int64, status entity.ArticleStatus) {
	h.t.Helper()
	_, err := h.stores.Articles.Create(context.Background(), &entity.Article{
		ID: id, URL: "https://news.example/a", Source: "wire", Status: status,
	}, h.clock.Now())
	if err != nil {
		h.t.Fatalf("create article: %v", err)
	}
}

func (h *harness) status(id int64) *entity.Article {
	h.t.Helper()
	a, err := h.stores.Articles.GetByID(context.Background(), id)
	if err != nil {
		h.t.Fatalf("get article: %v", err)
	}
	return a
}

func (h *harness) enqueue(p entity.Payload) uuid.UUID {
	h.t.Helper()
	id, err := h.qm.Enqueue(context.Background(), p, entity.DefaultPriority)
	if err != nil {
		h.t.Fatalf("enqueue: %v", err)
	}
	return id
}

func (h *harness) job(id uuid.UUID) *entity.Job {
	h.t.Helper()
	j, err := h.qm.GetJob(context.Background(), id)
	if err != nil {
		h.t.Fatalf("get job: %v", err)
	}
	return j
}

func (h *harness) jobs(articleID int64) []*entity.Job {
	h.t.Helper()
	jobs, err := h.qm.ListJobs(context.Background(), repository.JobFilter{ArticleID: articleID})
	if err != nil {
		h.t.Fatalf("list jobs: %v", err)
	}
	return jobs
}

func (h *harness) putContent(id int64) {
	h.t.Helper()
	err := handoff.PutJSON(context.Background(), h.handoff, handoff.ContentKey(id), handoff.Content{
		ArticleID: id, Title: "t", Content: testsupport.LongText, Language: "en",
	})
	if err != nil {
		h.t.Fatalf("put content: %v", err)
	}
}

func process(t *testing.T, w *worker.Worker) worker.ProcessResult {
	t.Helper()
	res, err := w.Process(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	return res
}

func TestPipeline_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.article(42, entity.ArticlePending)
	h.enqueue(entity.ExtractPayload{ArticleID: 42, URL: "https://news.example/a"})

	extract := h.worker(entity.JobExtract, nil, entity.JobVectorize)
	vectorize := h.worker(entity.JobVectorize, nil, entity.JobSummarize)
	summarize := h.worker(entity.JobSummarize, nil)

	for _, w := range []*worker.Worker{extract, vectorize, summarize} {
		res := process(t, w)
		if res.ProcessedJobs != 1 || res.TotalJobs != 1 || res.DirectProcessed != 0 {
			t.Fatalf("%s: unexpected result %+v", w.Definition().Type, res)
		}
	}

	a := h.status(42)
	if a.Status != entity.ArticleSummarized {
		t.Fatalf("status = %q, want summarized", a.Status)
	}
	if a.ContentKey != "content/article_42.json" {
		t.Fatalf("content key = %q", a.ContentKey)
	}

	perType := map[entity.JobType]int{}
	for _, j := range h.jobs(42) {
		if j.Status != entity.StatusCompleted {
			t.Fatalf("job %s (%s) is %s", j.ID, j.Type, j.Status)
		}
		perType[j.Type]++
	}
	for _, typ := range []entity.JobType{entity.JobExtract, entity.JobVectorize, entity.JobSummarize} {
		if perType[typ] != 1 {
			t.Fatalf("%s jobs = %d, want 1", typ, perType[typ])
		}
	}
	if len(perType) != 3 {
		t.Fatalf("unexpected job types: %v", perType)
	}

	for _, key := range []string{"content/article_42.json", "vectors/article_42.json", "summaries/article_42.json"} {
		if _, err := h.handoff.Get(context.Background(), key); err != nil {
			t.Fatalf("missing %s: %v", key, err)
		}
	}

	// A second cycle finds nothing left to do.
	if res := process(t, summarize); res != (worker.ProcessResult{}) {
		t.Fatalf("expected idle cycle, got %+v", res)
	}
}

func TestProcess_DirectScanUsesSyntheticJob(t *testing.T) {
	h := newHarness(t)
	h.article(7, entity.ArticleExtracted)
	h.putContent(7)

	w := h.worker(entity.JobVectorize, nil, entity.JobSummarize)
	res := process(t, w)
	if res.TotalJobs != 0 || res.DirectProcessed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.status(7).Status; got != entity.ArticleVectorized {
		t.Fatalf("status = %q", got)
	}

	jobs := h.jobs(7)
	if len(jobs) != 2 {
		t.Fatalf("expected synthetic vectorize job and chained summarize job, got %d", len(jobs))
	}
	for _, j := range jobs {
		switch j.Type {
		case entity.JobVectorize:
			if j.Status != entity.StatusCompleted || j.Attempts != 0 {
				t.Fatalf("synthetic job: %+v", j)
			}
		case entity.JobSummarize:
			if j.Status != entity.StatusPending {
				t.Fatalf("chained job: %+v", j)
			}
		default:
			t.Fatalf("unexpected job type %s", j.Type)
		}
	}
}

func TestProcess_DirectScanSkipsOpenJobsAndRespectsLimit(t *testing.T) {
	h := newHarness(t)
	for id := int64(1); id <= 5; id++ {
		h.article(id, entity.ArticleExtracted)
		h.putContent(id)
	}
	// Article 1 already has a vectorize job leased to someone else.
	id := h.enqueue(entity.VectorizePayload{ArticleID: 1, ContentKey: handoff.ContentKey(1)})
	if _, err := h.qm.ClaimJob(context.Background(), id, "other"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	w := h.worker(entity.JobVectorize, nil)
	res := process(t, w)
	if res.DirectProcessed != worker.DefaultDirectScanLimit {
		t.Fatalf("direct processed = %d", res.DirectProcessed)
	}
	if got := h.status(1).Status; got != entity.ArticleExtracted {
		t.Fatalf("article with open job was touched: %q", got)
	}
	if got := h.status(5).Status; got != entity.ArticleExtracted {
		t.Fatalf("scan exceeded its limit: %q", got)
	}
}

func TestProcess_AlreadyHandledIsNoop(t *testing.T) {
	h := newHarness(t)
	h.article(3, entity.ArticleVectorized)
	id := h.enqueue(entity.VectorizePayload{ArticleID: 3, ContentKey: handoff.ContentKey(3)})

	res := process(t, h.worker(entity.JobVectorize, nil))
	if res.ProcessedJobs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.remotes.Calls("embed") != 0 {
		t.Fatalf("handled article must not be reprocessed")
	}
	if got := h.job(id).Status; got != entity.StatusCompleted {
		t.Fatalf("job status = %s", got)
	}
}

func TestProcess_StatusNeverRegresses(t *testing.T) {
	h := newHarness(t)
	h.article(4, entity.ArticleSummarized)
	h.enqueue(entity.ExtractPayload{ArticleID: 4, URL: "https://news.example/a"})

	process(t, h.worker(entity.JobExtract, nil, entity.JobVectorize))
	if got := h.status(4).Status; got != entity.ArticleSummarized {
		t.Fatalf("status regressed to %q", got)
	}
	if h.remotes.Calls("extract") != 0 {
		t.Fatalf("extractor should not run")
	}
	for _, j := range h.jobs(4) {
		if j.Type == entity.JobVectorize {
			t.Fatalf("no-op must not chain")
		}
	}
}

func TestProcess_BusyArticleKeepsJobLeasedUntilTakeover(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	// Left in vectorizing by a direct invoke that never finished.
	h.article(9, entity.ArticleVectorizing)
	h.putContent(9)
	w := h.worker(entity.JobVectorize, nil)

	h.clock.Advance(time.Minute)
	id := h.enqueue(entity.VectorizePayload{ArticleID: 9, ContentKey: handoff.ContentKey(9)})
	res := process(t, w)
	if res.TotalJobs != 1 || res.ProcessedJobs != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.remotes.Calls("embed") != 0 || h.status(9).Status != entity.ArticleVectorizing {
		t.Fatalf("fresh running row must be left alone")
	}
	if j := h.job(id); j.Status != entity.StatusProcessing || j.Attempts != 0 {
		t.Fatalf("busy job must stay leased without consuming an attempt: %+v", j)
	}

	h.clock.Advance(10 * time.Minute)
	if n, err := h.qm.Cleanup(ctx); err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	res = process(t, w)
	if res.ProcessedJobs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.status(9).Status; got != entity.ArticleVectorized {
		t.Fatalf("stale running row not taken over: %q", got)
	}
	if got := h.job(id).Status; got != entity.StatusCompleted {
		t.Fatalf("job status = %s", got)
	}
}

func (h *harness) putSummary(id int64) {
	h.t.Helper()
	err := handoff.PutJSON(context.Background(), h.handoff, handoff.SummaryKey(id), handoff.Summary{
		ArticleID: id, Title: "t", Summary: "Council approves light rail.",
	})
	if err != nil {
		h.t.Fatalf("put summary: %v", err)
	}
}

func translatePayload(id int64) entity.TranslatePayload {
	return entity.TranslatePayload{ArticleID: id, ContentKey: handoff.ContentKey(id), TargetLanguage: "es"}
}

func TestProcess_TranslateAfterTagReturnsToTagged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.article(7, entity.ArticleSummarized)
	h.putContent(7)
	h.putSummary(7)

	tagJob := h.enqueue(entity.TagPayload{ArticleID: 7, SummaryKey: handoff.SummaryKey(7)})
	process(t, h.worker(entity.JobTagGenerate, nil))
	if got := h.status(7).Status; got != entity.ArticleTagged {
		t.Fatalf("status after tag = %q", got)
	}
	if got := h.job(tagJob).Status; got != entity.StatusCompleted {
		t.Fatalf("tag job = %s", got)
	}

	translate := h.worker(entity.JobTranslate, nil)
	first := h.enqueue(translatePayload(7))
	if res := process(t, translate); res.ProcessedJobs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	a := h.status(7)
	if a.Status != entity.ArticleTagged {
		t.Fatalf("translation must return the article to tagged, got %q", a.Status)
	}
	if a.TranslatedAt == nil {
		t.Fatal("translation not recorded on the article")
	}
	if h.job(first).Status != entity.StatusCompleted || h.remotes.Calls("translate") != 1 {
		t.Fatalf("job=%s calls=%d", h.job(first).Status, h.remotes.Calls("translate"))
	}
	var doc handoff.Translation
	if err := handoff.GetJSON(ctx, h.handoff, handoff.TranslationKey(7), &doc); err != nil {
		t.Fatalf("translation blob: %v", err)
	}
	if doc.TargetLanguage != "es" {
		t.Fatalf("target language = %q", doc.TargetLanguage)
	}

	// A repeated job is a no-op unless forced.
	h.enqueue(translatePayload(7))
	process(t, translate)
	if h.remotes.Calls("translate") != 1 {
		t.Fatalf("translated article was translated again")
	}
	forced := translatePayload(7)
	forced.ForceTranslate = true
	h.enqueue(forced)
	process(t, translate)
	if h.remotes.Calls("translate") != 2 || h.status(7).Status != entity.ArticleTagged {
		t.Fatalf("forced translation: calls=%d status=%q", h.remotes.Calls("translate"), h.status(7).Status)
	}
}

func TestProcess_TranslateBeforeTagKeepsMarker(t *testing.T) {
	h := newHarness(t)
	h.article(8, entity.ArticleSummarized)
	h.putContent(8)
	h.putSummary(8)

	h.enqueue(translatePayload(8))
	process(t, h.worker(entity.JobTranslate, nil))
	if got := h.status(8).Status; got != entity.ArticleTranslated {
		t.Fatalf("status after translate = %q", got)
	}

	// tag picks translated articles up by direct scan
	res := process(t, h.worker(entity.JobTagGenerate, nil))
	if res.DirectProcessed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	a := h.status(8)
	if a.Status != entity.ArticleTagged || a.TranslatedAt == nil {
		t.Fatalf("status=%q translated_at=%v", a.Status, a.TranslatedAt)
	}
}

func TestProcess_TranslateDirectScanFindsUntranslatedTaggedArticles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.article(11, entity.ArticleTagged)
	h.putContent(11)
	h.article(12, entity.ArticleTagged)
	h.putContent(12)
	err := h.stores.Articles.ApplyStatus(ctx, 12, entity.StatusChange{
		From: entity.ArticleTagged, To: entity.ArticleTagged, MarkTranslated: true,
	}, h.clock.Now())
	if err != nil {
		t.Fatalf("mark translated: %v", err)
	}

	res := process(t, h.worker(entity.JobTranslate, nil))
	if res.DirectProcessed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := h.handoff.Get(ctx, handoff.TranslationKey(11)); err != nil {
		t.Fatalf("translation blob: %v", err)
	}
	if _, err := h.handoff.Get(ctx, handoff.TranslationKey(12)); !errors.Is(err, handoff.ErrObjectNotFound) {
		t.Fatalf("translated article was scanned again: %v", err)
	}
	if a := h.status(11); a.Status != entity.ArticleTagged || a.TranslatedAt == nil {
		t.Fatalf("article 11: status=%q translated_at=%v", a.Status, a.TranslatedAt)
	}
	if len(h.jobs(12)) != 0 {
		t.Fatal("translated article must not be scanned")
	}

	// nothing left on the next cycle
	if res := process(t, h.worker(entity.JobTranslate, nil)); res != (worker.ProcessResult{}) {
		t.Fatalf("expected idle cycle, got %+v", res)
	}
}

func TestProcess_TranslateWaitsForRunningTag(t *testing.T) {
	h := newHarness(t)
	h.article(14, entity.ArticleTagging)
	h.putContent(14)

	id := h.enqueue(translatePayload(14))
	res := process(t, h.worker(entity.JobTranslate, nil))
	if res.ProcessedJobs != 0 || h.remotes.Calls("translate") != 0 {
		t.Fatalf("result=%+v calls=%d", res, h.remotes.Calls("translate"))
	}
	if j := h.job(id); j.Status != entity.StatusProcessing {
		t.Fatalf("job = %s, want processing", j.Status)
	}
	if got := h.status(14).Status; got != entity.ArticleTagging {
		t.Fatalf("status = %q", got)
	}
}

func TestProcess_PermanentFailure(t *testing.T) {
	h := newHarness(t)
	h.remotes.Extraction.Content = "short"
	h.article(8, entity.ArticlePending)
	id := h.enqueue(entity.ExtractPayload{ArticleID: 8, URL: "https://news.example/a"})

	res := process(t, h.worker(entity.JobExtract, nil, entity.JobVectorize))
	if res.ProcessedJobs != 0 || res.TotalJobs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	j := h.job(id)
	if j.Status != entity.StatusFailed || j.Attempts != 1 {
		t.Fatalf("job = %s/%d, want failed/1", j.Status, j.Attempts)
	}
	a := h.status(8)
	if a.Status != entity.ArticleExtractionFailed || !strings.Contains(a.Error, "too short") {
		t.Fatalf("article = %q %q", a.Status, a.Error)
	}
}

func TestProcess_TransientFailureRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	h.remotes.ExtractErr = errors.New("dial tcp: connection refused")
	h.article(9, entity.ArticlePending)
	id := h.enqueue(entity.ExtractPayload{ArticleID: 9, URL: "https://news.example/a"})
	w := h.worker(entity.JobExtract, nil, entity.JobVectorize)

	process(t, w)
	j := h.job(id)
	if j.Status != entity.StatusPending || j.Attempts != 1 {
		t.Fatalf("job = %s/%d, want pending/1", j.Status, j.Attempts)
	}
	if got := h.status(9).Status; got != entity.ArticleExtractionException {
		t.Fatalf("article = %q", got)
	}

	h.remotes.ExtractErr = nil
	process(t, w)
	if got := h.job(id).Status; got != entity.StatusCompleted {
		t.Fatalf("job status = %s", got)
	}
	a := h.status(9)
	if a.Status != entity.ArticleExtracted || a.Error != "" {
		t.Fatalf("article = %q %q", a.Status, a.Error)
	}
}

func TestProcess_RetryBoundary(t *testing.T) {
	h := newHarness(t)
	h.remotes.ExtractErr = errors.New("timeout")
	h.article(10, entity.ArticlePending)
	id := h.enqueue(entity.ExtractPayload{ArticleID: 10, URL: "https://news.example/a"})
	w := h.worker(entity.JobExtract, nil)

	for i := 0; i < 3; i++ {
		process(t, w)
	}
	j := h.job(id)
	if j.Status != entity.StatusFailed || j.Attempts != 3 {
		t.Fatalf("job = %s/%d, want failed/3", j.Status, j.Attempts)
	}
	// A failed job is no longer offered; the extract scan then picks nothing
	// because the article is no longer pending.
	res := process(t, w)
	if res.TotalJobs != 0 || res.DirectProcessed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.remotes.Calls("extract") != 3 {
		t.Fatalf("extract calls = %d", h.remotes.Calls("extract"))
	}
}

func TestProcess_PanicBecomesFailure(t *testing.T) {
	h := newHarness(t)
	h.remotes.PanicOnStage = "embed"
	h.article(11, entity.ArticleExtracted)
	h.putContent(11)
	id := h.enqueue(entity.VectorizePayload{ArticleID: 11, ContentKey: handoff.ContentKey(11)})

	res := process(t, h.worker(entity.JobVectorize, nil))
	if res.ProcessedJobs != 0 || res.TotalJobs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	j := h.job(id)
	if j.Status != entity.StatusPending || j.Attempts != 1 || j.Error == nil || !strings.Contains(*j.Error, "panicked") {
		t.Fatalf("job = %+v", j)
	}
	if got := h.status(11).Status; got != entity.ArticleVectorizationFailed {
		t.Fatalf("article = %q", got)
	}
}

func TestProcess_MissingHandoffConsumesAttempt(t *testing.T) {
	h := newHarness(t)
	h.article(12, entity.ArticleExtracted)
	id := h.enqueue(entity.VectorizePayload{ArticleID: 12, ContentKey: handoff.ContentKey(12)})

	process(t, h.worker(entity.JobVectorize, nil))
	j := h.job(id)
	if j.Status != entity.StatusPending || j.Attempts != 1 {
		t.Fatalf("job = %s/%d, want pending/1", j.Status, j.Attempts)
	}
}

func TestProcess_MissingArticleIsPermanent(t *testing.T) {
	h := newHarness(t)
	id := h.enqueue(entity.ExtractPayload{ArticleID: 999, URL: "https://news.example/a"})

	process(t, h.worker(entity.JobExtract, nil))
	if got := h.job(id).Status; got != entity.StatusFailed {
		t.Fatalf("job status = %s", got)
	}
}

type failingEnqueue struct {
	worker.Queue
}

func (failingEnqueue) Enqueue(context.Context, entity.Payload, int) (uuid.UUID, error) {
	return uuid.Nil, errors.New("queue manager unreachable")
}

func TestProcess_ChainFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.article(13, entity.ArticlePending)
	id := h.enqueue(entity.ExtractPayload{ArticleID: 13, URL: "https://news.example/a"})

	w := h.worker(entity.JobExtract, failingEnqueue{Queue: h.qm}, entity.JobVectorize)
	res := process(t, w)
	if res.ProcessedJobs != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := h.job(id).Status; got != entity.StatusCompleted {
		t.Fatalf("job status = %s", got)
	}
	if got := len(h.jobs(13)); got != 1 {
		t.Fatalf("expected no chained job, got %d jobs", got)
	}
}

func TestInvoke(t *testing.T) {
	h := newHarness(t)
	h.article(14, entity.ArticleExtracted)
	h.putContent(14)
	w := h.worker(entity.JobSummarize, nil)

	err := w.Invoke(context.Background(), json.RawMessage(`{"article_id":14,"content_key":"content/article_14.json"}`))
	if !errors.Is(err, entity.ErrIllegalTransition) {
		t.Fatalf("summarize before vectorize should be illegal, got %v", err)
	}

	err = w.Invoke(context.Background(), json.RawMessage(`{"article_id":0}`))
	if !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	h2 := newHarness(t)
	h2.article(15, entity.ArticleVectorized)
	h2.putContent(15)
	w2 := h2.worker(entity.JobSummarize, nil)
	if err := w2.Invoke(context.Background(), json.RawMessage(`{"article_id":15,"content_key":"content/article_15.json"}`)); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := h2.status(15).Status; got != entity.ArticleSummarized {
		t.Fatalf("status = %q", got)
	}
	if got := len(h2.jobs(15)); got != 0 {
		t.Fatalf("invoke must not create jobs, got %d", got)
	}
}

func TestEnqueuePending(t *testing.T) {
	h := newHarness(t)
	h.article(20, entity.ArticlePending)
	h.article(21, entity.ArticlePending)
	h.article(22, entity.ArticleExtracted)
	h.enqueue(entity.ExtractPayload{ArticleID: 21, URL: "https://news.example/a"})

	n, err := h.worker(entity.JobExtract, nil).EnqueuePending(context.Background(), 10)
	if err != nil {
		t.Fatalf("enqueue pending: %v", err)
	}
	if n != 1 {
		t.Fatalf("created = %d, want 1", n)
	}
	if got := len(h.jobs(20)); got != 1 {
		t.Fatalf("article 20 jobs = %d", got)
	}
}

type claimErrQueue struct {
	*service.QueueManager
	err error
}

func (q claimErrQueue) ClaimJob(context.Context, uuid.UUID, string) (*entity.Job, error) {
	return nil, q.err
}

func TestProcess_DirectScanClaimErrorLogLevel(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		level string
	}{
		{"lost race", fmt.Errorf("%w: job is not pending", service.ErrInvalidState), "level=INFO"},
		{"transport", errors.New("dial tcp: connection refused"), "level=WARN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.article(21, entity.ArticleExtracted)
			h.putContent(21)

			q := claimErrQueue{QueueManager: h.qm, err: tc.err}
			handler, err := stage.New(entity.JobVectorize, stage.Deps{Handoff: h.handoff, Embedder: h.remotes})
			if err != nil {
				t.Fatalf("stage: %v", err)
			}
			proc := worker.NewProcessor(handler, q, h.stores.Articles, worker.ProcessorConfig{Logger: testsupport.DiscardLogger()})
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			w := worker.New(worker.Config{WorkerID: "scan"}, proc, q, h.stores.Articles, logger)

			if res := process(t, w); res.DirectProcessed != 0 {
				t.Fatalf("unexpected result %+v", res)
			}
			var line string
			for _, l := range strings.Split(buf.String(), "\n") {
				if strings.Contains(l, "direct scan:") {
					line = l
				}
			}
			if !strings.Contains(line, tc.level) {
				t.Fatalf("log line %q, want %s", line, tc.level)
			}
		})
	}
}
