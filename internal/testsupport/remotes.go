package testsupport

import (
	"context"
	"strings"
	"sync"

	"article-pipeline/internal/services/remote"
)

// LongText is an article body that survives the length checks and chunks into
// at least one piece.
const LongText = "The city council approved the new transit plan after a long debate on Tuesday evening. " +
	"Officials said construction of the first light rail segment would begin next spring. " +
	"Residents of the eastern districts welcomed the decision but asked for more frequent buses. " +
	"The budget for the project was revised twice during the last planning cycle."

// Remotes is a scripted set of stage services. Each Err field, when set, is
// returned instead of a result. Calls are counted per operation.
type Remotes struct {
	mu sync.Mutex

	Extraction   remote.Extraction
	ExtractErr   error
	EmbedErr     error
	Summary      string
	SummarizeErr error
	Translation  remote.TranslationResult
	TranslateErr error
	TagList      []string
	TagErr       error
	PanicOnStage string
	calls        map[string]int
}

func NewRemotes() *Remotes {
	return &Remotes{
		Extraction: remote.Extraction{
			Title:      "Transit plan approved",
			Content:    LongText,
			SourceName: "City Gazette",
			Language:   "en",
			Method:     "readability",
		},
		Summary:     "Council approves light rail.",
		Translation: remote.TranslationResult{Title: "Plan de transporte", Content: "Texto traducido.", SourceLanguage: "en"},
		TagList:     []string{"Transit", "City Council", "transit"},
		calls:       map[string]int{},
	}
}

func (r *Remotes) record(op string) {
	r.mu.Lock()
	r.calls[op]++
	panicking := r.PanicOnStage == op
	r.mu.Unlock()
	if panicking {
		panic("remote " + op + " exploded")
	}
}

// Calls reports how many times op was invoked.
func (r *Remotes) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Remotes) Extract(_ context.Context, _ string) (remote.Extraction, error) {
	r.record("extract")
	if r.ExtractErr != nil {
		return remote.Extraction{}, r.ExtractErr
	}
	return r.Extraction, nil
}

func (r *Remotes) Embed(_ context.Context, texts []string) ([][]float32, error) {
	r.record("embed")
	if r.EmbedErr != nil {
		return nil, r.EmbedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(strings.Count(t, " "))}
	}
	return out, nil
}

func (r *Remotes) Summarize(_ context.Context, _, _ string) (string, error) {
	r.record("summarize")
	if r.SummarizeErr != nil {
		return "", r.SummarizeErr
	}
	return r.Summary, nil
}

func (r *Remotes) Translate(_ context.Context, _, _, _ string) (remote.TranslationResult, error) {
	r.record("translate")
	if r.TranslateErr != nil {
		return remote.TranslationResult{}, r.TranslateErr
	}
	return r.Translation, nil
}

func (r *Remotes) Tags(_ context.Context, _, _ string) ([]string, error) {
	r.record("tags")
	if r.TagErr != nil {
		return nil, r.TagErr
	}
	return r.TagList, nil
}
