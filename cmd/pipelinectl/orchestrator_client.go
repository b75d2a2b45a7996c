package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"article-pipeline/internal/orchestrator"
)

type orchestratorClient struct {
	base string
	http *http.Client
}

func newOrchestratorClient(base string, timeout time.Duration) *orchestratorClient {
	return &orchestratorClient{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *orchestratorClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("orchestrator: http %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("orchestrator: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}

func (c *orchestratorClient) Ingest(ctx context.Context, req orchestrator.IngestRequest) (orchestrator.IngestResult, error) {
	var res orchestrator.IngestResult
	err := c.do(ctx, http.MethodPost, "/articles", req, &res)
	return res, err
}

func (c *orchestratorClient) RunPipeline(ctx context.Context, steps []string) (orchestrator.RunResult, error) {
	var res orchestrator.RunResult
	err := c.do(ctx, http.MethodPost, "/run-pipeline", map[string][]string{"steps": steps}, &res)
	return res, err
}

func (c *orchestratorClient) RetrySweep(ctx context.Context) (orchestrator.SweepResult, error) {
	var res orchestrator.SweepResult
	err := c.do(ctx, http.MethodPost, "/retry", nil, &res)
	return res, err
}

func (c *orchestratorClient) Status(ctx context.Context) (orchestrator.PipelineStatus, error) {
	var res orchestrator.PipelineStatus
	err := c.do(ctx, http.MethodGet, "/pipeline-status", nil, &res)
	return res, err
}
