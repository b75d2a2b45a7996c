package stage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
)

const maxTags = 15

type tagHandler struct {
	deps Deps
}

func (h *tagHandler) Definition() Definition { return definitions[entity.JobTagGenerate] }

func (h *tagHandler) Run(ctx context.Context, a *entity.Article, p entity.Payload) (Output, error) {
	in, err := payloadAs[entity.TagPayload](p)
	if err != nil {
		return Output{}, err
	}
	var summary handoff.Summary
	if err := handoff.GetJSON(ctx, h.deps.Handoff, in.SummaryKey, &summary); err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(summary.Summary) == "" {
		return Output{}, Permanentf("summary of article %d is empty", a.ID)
	}

	raw, err := h.deps.Tagger.Tags(ctx, summary.Title, summary.Summary)
	if err != nil {
		return Output{}, fmt.Errorf("tag article %d: %w", a.ID, err)
	}
	tags := NormalizeTags(raw)
	if len(tags) == 0 {
		return Output{}, fmt.Errorf("tag article %d: no usable tags", a.ID)
	}

	key := handoff.TagsKey(a.ID)
	doc := handoff.Tags{ArticleID: a.ID, Tags: tags, GeneratedAt: h.deps.Now().UTC()}
	if err := handoff.PutJSON(ctx, h.deps.Handoff, key, doc); err != nil {
		return Output{}, err
	}
	return Output{Key: key}, nil
}

// NormalizeTags lowercases, collapses whitespace, drops duplicates and keeps
// at most 15 tags in their original order.
func NormalizeTags(raw []string) []string {
	lower := cases.Lower(language.Und)
	seen := map[string]bool{}
	var out []string
	for _, t := range raw {
		t = strings.Join(strings.Fields(lower.String(t)), " ")
		t = strings.Trim(t, "#,.;:")
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
