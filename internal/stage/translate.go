package stage

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
)

type translateHandler struct {
	deps     Deps
	fallback language.Tag
}

func newTranslateHandler(deps Deps) (*translateHandler, error) {
	tag := language.English
	if s := strings.TrimSpace(deps.TargetLanguage); s != "" {
		parsed, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("stage translate: target language %q: %w", s, err)
		}
		tag = parsed
	}
	return &translateHandler{deps: deps, fallback: tag}, nil
}

func (h *translateHandler) Definition() Definition { return definitions[entity.JobTranslate] }

// Completed reports an existing translation unless the payload forces a new one.
func (h *translateHandler) Completed(a *entity.Article, p entity.Payload) bool {
	if in, ok := p.(entity.TranslatePayload); ok && in.ForceTranslate {
		return false
	}
	return a.TranslatedAt != nil
}

func (h *translateHandler) Run(ctx context.Context, a *entity.Article, p entity.Payload) (Output, error) {
	in, err := payloadAs[entity.TranslatePayload](p)
	if err != nil {
		return Output{}, err
	}
	target := h.fallback
	if s := strings.TrimSpace(in.TargetLanguage); s != "" {
		if target, err = language.Parse(s); err != nil {
			return Output{}, Permanentf("target language %q: %v", s, err)
		}
	}

	content, err := loadContent(ctx, h.deps.Handoff, in.ContentKey)
	if err != nil {
		return Output{}, err
	}

	doc := handoff.Translation{
		ArticleID:      a.ID,
		SourceLanguage: content.Language,
		TargetLanguage: target.String(),
		TranslatedAt:   h.deps.Now().UTC(),
	}
	if !in.ForceTranslate && sameLanguage(content.Language, target) {
		doc.Title = content.Title
		doc.Content = content.Content
	} else {
		res, err := h.deps.Translator.Translate(ctx, content.Title, content.Content, target.String())
		if err != nil {
			return Output{}, fmt.Errorf("translate article %d to %s: %w", a.ID, target, err)
		}
		if strings.TrimSpace(res.Content) == "" {
			return Output{}, fmt.Errorf("translate article %d: empty translation", a.ID)
		}
		doc.Title = res.Title
		doc.Content = res.Content
		if res.SourceLanguage != "" {
			doc.SourceLanguage = res.SourceLanguage
		}
	}

	key := handoff.TranslationKey(a.ID)
	if err := handoff.PutJSON(ctx, h.deps.Handoff, key, doc); err != nil {
		return Output{}, err
	}
	return Output{Key: key}, nil
}

// sameLanguage compares base languages, so "en-GB" matches "en".
func sameLanguage(source string, target language.Tag) bool {
	if strings.TrimSpace(source) == "" {
		return false
	}
	tag, err := language.Parse(source)
	if err != nil {
		return false
	}
	sb, _ := tag.Base()
	tb, _ := target.Base()
	return sb == tb
}
