package stage

import (
	"context"
	"fmt"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
)

type vectorizeHandler struct {
	deps Deps
}

func (h *vectorizeHandler) Definition() Definition { return definitions[entity.JobVectorize] }

func (h *vectorizeHandler) Run(ctx context.Context, a *entity.Article, p entity.Payload) (Output, error) {
	in, err := payloadAs[entity.VectorizePayload](p)
	if err != nil {
		return Output{}, err
	}
	content, err := loadContent(ctx, h.deps.Handoff, in.ContentKey)
	if err != nil {
		return Output{}, err
	}

	texts := Chunk(content.Content)
	if len(texts) == 0 {
		return Output{}, Permanentf("no chunks produced for article %d", a.ID)
	}
	vectors, err := h.deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return Output{}, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return Output{}, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(texts))
	}

	doc := handoff.Vectors{
		ArticleID:    a.ID,
		Chunks:       make([]handoff.Chunk, len(texts)),
		VectorizedAt: h.deps.Now().UTC(),
	}
	for i := range texts {
		doc.Chunks[i] = handoff.Chunk{Index: i, Text: texts[i], Vector: vectors[i]}
	}
	key := handoff.VectorsKey(a.ID)
	if err := handoff.PutJSON(ctx, h.deps.Handoff, key, doc); err != nil {
		return Output{}, err
	}
	return Output{Key: key}, nil
}
