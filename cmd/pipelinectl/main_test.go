package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/orchestrator"
	"article-pipeline/internal/service"
	"article-pipeline/internal/testsupport"
	httptransport "article-pipeline/internal/transport/http"
)

type cliTestEnv struct {
	qm              *service.QueueManager
	queueURL        string
	orchestratorURL string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	st := testsupport.NewStores(t)
	logger := testsupport.DiscardLogger()
	qm := service.NewQueueManager(st.Jobs, service.Options{Logger: logger})

	queueSrv := httptest.NewServer(httptransport.QueueRoutes(httptransport.NewQueueHandler(qm), logger))
	t.Cleanup(queueSrv.Close)

	o := orchestrator.New(orchestrator.Config{Steps: []entity.JobType{entity.JobExtract}}, qm, st.Articles, nil, logger)
	orchSrv := httptest.NewServer(httptransport.OrchestratorRoutes(httptransport.NewOrchestratorHandler(o), logger))
	t.Cleanup(orchSrv.Close)

	return &cliTestEnv{qm: qm, queueURL: queueSrv.URL, orchestratorURL: orchSrv.URL}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--queue-url", e.queueURL, "--orchestrator-url", e.orchestratorURL}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("output missing %q:\n%s", want, out)
	}
}

func TestIngestThenListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "ingest", "https://news.example/x", "--source", "wire")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	requireContains(t, out, "Article 1 queued")

	out, err = env.run(t, "jobs", "list", "--type", "extract")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "extract")
	requireContains(t, out, "pending")
	requireContains(t, out, "0/3")

	out, err = env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "pending")
	requireContains(t, out, "Jobs: 1 pending")

	out, err = env.run(t, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "completed today")
}

func TestJobsShowAndRetry(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	id, err := env.qm.Enqueue(ctx, entity.ExtractPayload{ArticleID: 7, URL: "https://x"}, 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := env.qm.FailJob(ctx, id, "extractor said no", true); err != nil {
		t.Fatalf("fail: %v", err)
	}

	out, err := env.run(t, "jobs", "show", id.String())
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "failed")
	requireContains(t, out, "extractor said no")

	if _, err := env.run(t, "jobs", "retry", id.String()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	j, _ := env.qm.GetJob(ctx, id)
	if j.Status != entity.StatusPending || j.Attempts != 0 {
		t.Fatalf("job = %s/%d", j.Status, j.Attempts)
	}

	if _, err := env.run(t, "jobs", "show", "nope"); err == nil {
		t.Fatalf("expected invalid id error")
	}
	if _, err := env.run(t, "jobs", "list", "--status", "done"); err == nil {
		t.Fatalf("expected unknown status error")
	}
}

func TestRunReportsFailedSteps(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "run")
	if err == nil {
		t.Fatalf("expected failure when no worker url is configured")
	}
	requireContains(t, out, "no worker url configured")

	out, err = env.run(t, "--json", "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	requireContains(t, out, `"retried": 0`)
}
