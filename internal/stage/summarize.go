package stage

import (
	"context"
	"fmt"
	"strings"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
)

type summarizeHandler struct {
	deps Deps
}

func (h *summarizeHandler) Definition() Definition { return definitions[entity.JobSummarize] }

func (h *summarizeHandler) Run(ctx context.Context, a *entity.Article, p entity.Payload) (Output, error) {
	in, err := payloadAs[entity.SummarizePayload](p)
	if err != nil {
		return Output{}, err
	}
	content, err := loadContent(ctx, h.deps.Handoff, in.ContentKey)
	if err != nil {
		return Output{}, err
	}

	summary, err := h.deps.Summarizer.Summarize(ctx, content.Title, content.Content)
	if err != nil {
		return Output{}, fmt.Errorf("summarize article %d: %w", a.ID, err)
	}

	key := handoff.SummaryKey(a.ID)
	doc := handoff.Summary{
		ArticleID:    a.ID,
		Title:        content.Title,
		Summary:      strings.TrimSpace(summary),
		SummarizedAt: h.deps.Now().UTC(),
	}
	if err := handoff.PutJSON(ctx, h.deps.Handoff, key, doc); err != nil {
		return Output{}, err
	}
	return Output{Key: key}, nil
}
