package stage

import (
	"context"
	"fmt"
	"strings"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
)

type extractHandler struct {
	deps Deps
}

func (h *extractHandler) Definition() Definition { return definitions[entity.JobExtract] }

func (h *extractHandler) Run(ctx context.Context, a *entity.Article, p entity.Payload) (Output, error) {
	in, err := payloadAs[entity.ExtractPayload](p)
	if err != nil {
		return Output{}, err
	}
	url := strings.TrimSpace(in.URL)
	if url == "" {
		url = a.URL
	}
	if url == "" {
		return Output{}, Permanentf("article %d has no url", a.ID)
	}

	ext, err := h.deps.Extractor.Extract(ctx, url)
	if err != nil {
		return Output{}, fmt.Errorf("extract %s: %w", url, err)
	}
	content := strings.TrimSpace(ext.Content)
	if n := len(content); n < MinContentLength {
		return Output{}, Permanentf("content too short: %d chars", n)
	}

	title := strings.TrimSpace(ext.Title)
	if title == "" {
		title = a.Title
	}
	source := in.SourceName
	if source == "" {
		source = ext.SourceName
	}
	if source == "" {
		source = a.Source
	}

	key := handoff.ContentKey(a.ID)
	doc := handoff.Content{
		ArticleID:   a.ID,
		URL:         url,
		Title:       title,
		Content:     content,
		WordCount:   len(strings.Fields(content)),
		SourceName:  source,
		Language:    ext.Language,
		Method:      ext.Method,
		ExtractedAt: h.deps.Now().UTC(),
	}
	if err := handoff.PutJSON(ctx, h.deps.Handoff, key, doc); err != nil {
		return Output{}, err
	}
	return Output{Key: key, ContentKey: key}, nil
}

// payloadAs asserts the payload variant a handler expects.
func payloadAs[T entity.Payload](p entity.Payload) (T, error) {
	v, ok := p.(T)
	if !ok {
		var zero T
		return zero, Permanentf("payload %T does not belong to %s", p, zero.JobType())
	}
	return v, nil
}
