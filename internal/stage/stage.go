// Package stage defines the per-stage domain work of the pipeline and the
// article statuses each stage moves through.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
	"article-pipeline/internal/services/remote"
)

// MinContentLength is the shortest article body worth processing.
const MinContentLength = 100

// ErrPermanent marks failures that another attempt will not fix.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct{ err error }

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent tags err so that IsPermanent reports true.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent classifies a stage error. Remote rejections and illegal status
// transitions are permanent as well.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, remote.ErrRejected) ||
		errors.Is(err, entity.ErrIllegalTransition) ||
		errors.Is(err, entity.ErrUnknownJobType)
}

// Definition is the static description of a stage.
type Definition struct {
	Type    entity.JobType
	Verb    string
	Running entity.ArticleStatus
	Done    entity.ArticleStatus
	Failed  entity.ArticleStatus
	// Transient is written for non-permanent failures.
	Transient entity.ArticleStatus
	// DirectScan lists the statuses the fallback scan picks up.
	DirectScan []entity.ArticleStatus
	// Branch stages run beside the main chain. Their completion is tracked
	// on the article rather than implied by its rank, and an article entered
	// from further along the chain returns to that status.
	Branch bool
}

// FailureStatus picks the article status recorded for err.
func (d Definition) FailureStatus(err error) entity.ArticleStatus {
	if !IsPermanent(err) && d.Transient != "" {
		return d.Transient
	}
	return d.Failed
}

var definitions = map[entity.JobType]Definition{
	entity.JobExtract: {
		Type:       entity.JobExtract,
		Verb:       "extract",
		Running:    entity.ArticleExtracting,
		Done:       entity.ArticleExtracted,
		Failed:     entity.ArticleExtractionFailed,
		Transient:  entity.ArticleExtractionException,
		DirectScan: []entity.ArticleStatus{entity.ArticlePending},
	},
	entity.JobVectorize: {
		Type:       entity.JobVectorize,
		Verb:       "vectorize",
		Running:    entity.ArticleVectorizing,
		Done:       entity.ArticleVectorized,
		Failed:     entity.ArticleVectorizationFailed,
		DirectScan: []entity.ArticleStatus{entity.ArticleExtracted},
	},
	entity.JobSummarize: {
		Type:       entity.JobSummarize,
		Verb:       "summarize",
		Running:    entity.ArticleSummarizing,
		Done:       entity.ArticleSummarized,
		Failed:     entity.ArticleSummarizationFailed,
		DirectScan: []entity.ArticleStatus{entity.ArticleVectorized},
	},
	entity.JobTranslate: {
		Type:       entity.JobTranslate,
		Verb:       "translate",
		Running:    entity.ArticleTranslating,
		Done:       entity.ArticleTranslated,
		Failed:     entity.ArticleTranslationFailed,
		DirectScan: []entity.ArticleStatus{entity.ArticleSummarized, entity.ArticleTagged, entity.ArticleTaggingFailed},
		Branch:     true,
	},
	entity.JobTagGenerate: {
		Type:       entity.JobTagGenerate,
		Verb:       "tag",
		Running:    entity.ArticleTagging,
		Done:       entity.ArticleTagged,
		Failed:     entity.ArticleTaggingFailed,
		DirectScan: []entity.ArticleStatus{entity.ArticleSummarized, entity.ArticleTranslated},
	},
}

// DefinitionFor returns the definition of typ.
func DefinitionFor(typ entity.JobType) (Definition, bool) {
	d, ok := definitions[typ]
	return d, ok
}

// Output is what a successful Run produced.
type Output struct {
	// Key is the handoff object written by the stage.
	Key string
	// ContentKey, when set, is recorded on the article.
	ContentKey string
}

// Handler runs the domain work of one stage for one article. The article is
// already in the stage's Running status when Run is called.
type Handler interface {
	Definition() Definition
	Run(ctx context.Context, a *entity.Article, p entity.Payload) (Output, error)
}

// Completer is implemented by handlers of branch stages to say whether the
// article already carries their result.
type Completer interface {
	Completed(a *entity.Article, p entity.Payload) bool
}

// BuildPayload reconstructs the payload of typ for a from deterministic keys.
func BuildPayload(typ entity.JobType, a *entity.Article, targetLanguage string) (entity.Payload, error) {
	contentKey := a.ContentKey
	if contentKey == "" {
		contentKey = handoff.ContentKey(a.ID)
	}
	switch typ {
	case entity.JobExtract:
		return entity.ExtractPayload{ArticleID: a.ID, URL: a.URL, SourceName: a.Source}, nil
	case entity.JobVectorize:
		return entity.VectorizePayload{ArticleID: a.ID, ContentKey: contentKey}, nil
	case entity.JobSummarize:
		return entity.SummarizePayload{ArticleID: a.ID, ContentKey: contentKey}, nil
	case entity.JobTranslate:
		return entity.TranslatePayload{ArticleID: a.ID, ContentKey: contentKey, TargetLanguage: targetLanguage}, nil
	case entity.JobTagGenerate:
		return entity.TagPayload{ArticleID: a.ID, SummaryKey: handoff.SummaryKey(a.ID)}, nil
	}
	return nil, fmt.Errorf("%w: %q", entity.ErrUnknownJobType, typ)
}

// Deps are the collaborators stage handlers draw from. Only the ones a given
// stage uses need to be set.
type Deps struct {
	Handoff        handoff.Store
	Extractor      remote.Extractor
	Embedder       remote.Embedder
	Summarizer     remote.Summarizer
	Translator     remote.Translator
	Tagger         remote.Tagger
	TargetLanguage string
	Now            func() time.Time
}

// New builds the handler for typ.
func New(typ entity.JobType, deps Deps) (Handler, error) {
	if deps.Handoff == nil {
		return nil, errors.New("stage: handoff store is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	switch typ {
	case entity.JobExtract:
		if deps.Extractor == nil {
			return nil, errors.New("stage extract: extractor is required")
		}
		return &extractHandler{deps: deps}, nil
	case entity.JobVectorize:
		if deps.Embedder == nil {
			return nil, errors.New("stage vectorize: embedder is required")
		}
		return &vectorizeHandler{deps: deps}, nil
	case entity.JobSummarize:
		if deps.Summarizer == nil {
			return nil, errors.New("stage summarize: summarizer is required")
		}
		return &summarizeHandler{deps: deps}, nil
	case entity.JobTranslate:
		if deps.Translator == nil {
			return nil, errors.New("stage translate: translator is required")
		}
		return newTranslateHandler(deps)
	case entity.JobTagGenerate:
		if deps.Tagger == nil {
			return nil, errors.New("stage tag-generate: tagger is required")
		}
		return &tagHandler{deps: deps}, nil
	}
	return nil, fmt.Errorf("%w: %q", entity.ErrUnknownJobType, typ)
}

// loadContent reads the extracted content blob. A missing object is an
// ordinary failure that consumes one attempt; short content is permanent.
func loadContent(ctx context.Context, store handoff.Store, key string) (handoff.Content, error) {
	var c handoff.Content
	if err := handoff.GetJSON(ctx, store, key, &c); err != nil {
		return c, err
	}
	if n := len(c.Content); n < MinContentLength {
		return c, Permanentf("content too short: %d chars", n)
	}
	return c, nil
}
