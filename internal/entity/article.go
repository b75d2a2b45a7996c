package entity

import (
	"errors"
	"fmt"
	"time"
)

// ArticleStatus is the coarse pipeline position of an article. The empty value
// is the pending state and is stored as NULL.
type ArticleStatus string

const (
	ArticlePending ArticleStatus = ""

	ArticleExtracting          ArticleStatus = "extracting"
	ArticleExtracted           ArticleStatus = "extracted"
	ArticleExtractionFailed    ArticleStatus = "extraction_failed"
	ArticleExtractionException ArticleStatus = "extraction_exception"

	ArticleVectorizing         ArticleStatus = "vectorizing"
	ArticleVectorized          ArticleStatus = "vectorized"
	ArticleVectorizationFailed ArticleStatus = "vectorization_failed"

	ArticleSummarizing         ArticleStatus = "summarizing"
	ArticleSummarized          ArticleStatus = "summarized"
	ArticleSummarizationFailed ArticleStatus = "summarization_failed"

	ArticleTranslating       ArticleStatus = "translating"
	ArticleTranslated        ArticleStatus = "translated"
	ArticleTranslationFailed ArticleStatus = "translation_failed"

	ArticleTagging       ArticleStatus = "tagging"
	ArticleTagged        ArticleStatus = "tagged"
	ArticleTaggingFailed ArticleStatus = "tagging_failed"
)

var ErrIllegalTransition = errors.New("illegal article status transition")

var statusRank = map[ArticleStatus]int{
	ArticlePending: 0,

	ArticleExtracting:          1,
	ArticleExtractionFailed:    1,
	ArticleExtractionException: 1,
	ArticleExtracted:           2,

	ArticleVectorizing:         3,
	ArticleVectorizationFailed: 3,
	ArticleVectorized:          4,

	ArticleSummarizing:         5,
	ArticleSummarizationFailed: 5,
	ArticleSummarized:          6,

	ArticleTranslating:       7,
	ArticleTranslationFailed: 7,
	ArticleTranslated:        8,

	ArticleTagging:       9,
	ArticleTaggingFailed: 9,
	ArticleTagged:        10,
}

// transitions lists every legal edge. Self-edges on running states are the
// stale-attempt takeover; edges out of *_failed states are explicit retries.
var transitions = map[ArticleStatus][]ArticleStatus{
	ArticlePending: {ArticleExtracting},

	ArticleExtracting:          {ArticleExtracted, ArticleExtractionFailed, ArticleExtractionException, ArticleExtracting},
	ArticleExtractionFailed:    {ArticleExtracting},
	ArticleExtractionException: {ArticleExtracting},
	ArticleExtracted:           {ArticleVectorizing},

	ArticleVectorizing:         {ArticleVectorized, ArticleVectorizationFailed, ArticleVectorizing},
	ArticleVectorizationFailed: {ArticleVectorizing},
	ArticleVectorized:          {ArticleSummarizing},

	ArticleSummarizing:         {ArticleSummarized, ArticleSummarizationFailed, ArticleSummarizing},
	ArticleSummarizationFailed: {ArticleSummarizing},
	ArticleSummarized:          {ArticleTranslating, ArticleTagging},

	ArticleTranslating:       {ArticleTranslated, ArticleTranslationFailed, ArticleTranslating, ArticleTagged, ArticleTaggingFailed},
	ArticleTranslationFailed: {ArticleTranslating},
	ArticleTranslated:        {ArticleTagging, ArticleTranslating},

	ArticleTagging:       {ArticleTagged, ArticleTaggingFailed, ArticleTagging},
	ArticleTaggingFailed: {ArticleTagging, ArticleTranslating},
	ArticleTagged:        {ArticleTranslating},
}

// branchEdges are the translation side trips: an article past the branch
// point may be translated later and then returns to where it was. They are
// the only edges that lower the rank.
var branchEdges = map[[2]ArticleStatus]bool{
	{ArticleTranslated, ArticleTranslating}:    true,
	{ArticleTagged, ArticleTranslating}:        true,
	{ArticleTaggingFailed, ArticleTranslating}: true,
	{ArticleTranslating, ArticleTagged}:        true,
	{ArticleTranslating, ArticleTaggingFailed}: true,
}

// IsBranchEdge reports whether from → to enters or leaves the translation
// branch from further along the main chain.
func IsBranchEdge(from, to ArticleStatus) bool {
	return branchEdges[[2]ArticleStatus{from, to}]
}

// ParseArticleStatus maps a stored value onto the vocabulary. "pending" is
// accepted as an alias of the empty status.
func ParseArticleStatus(s string) (ArticleStatus, bool) {
	if s == "pending" {
		return ArticlePending, true
	}
	st := ArticleStatus(s)
	_, ok := statusRank[st]
	return st, ok
}

// ArticleStatuses returns the vocabulary ordered by rank.
func ArticleStatuses() []ArticleStatus {
	return []ArticleStatus{
		ArticlePending,
		ArticleExtracting, ArticleExtractionFailed, ArticleExtractionException, ArticleExtracted,
		ArticleVectorizing, ArticleVectorizationFailed, ArticleVectorized,
		ArticleSummarizing, ArticleSummarizationFailed, ArticleSummarized,
		ArticleTranslating, ArticleTranslationFailed, ArticleTranslated,
		ArticleTagging, ArticleTaggingFailed, ArticleTagged,
	}
}

// Rank is the progress position of s; unknown statuses rank below pending.
func (s ArticleStatus) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// Active reports whether s is a stage's running status.
func (s ArticleStatus) Active() bool {
	switch s {
	case ArticleExtracting, ArticleVectorizing, ArticleSummarizing, ArticleTranslating, ArticleTagging:
		return true
	}
	return false
}

func (s ArticleStatus) Known() bool {
	_, ok := statusRank[s]
	return ok
}

func (s ArticleStatus) String() string {
	if s == ArticlePending {
		return "pending"
	}
	return string(s)
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to ArticleStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition is CanTransition with a descriptive error.
func ValidateTransition(from, to ArticleStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

type Article struct {
	ID         int64         `json:"id"`
	URL        string        `json:"url"`
	Source     string        `json:"source"`
	Title      string        `json:"title,omitempty"`
	Status     ArticleStatus `json:"status"`
	ContentKey string        `json:"content_key,omitempty"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// TranslatedAt is set once the translation branch succeeded, whatever
	// the main chain status is.
	TranslatedAt *time.Time `json:"translated_at,omitempty"`
}

// StatusChange is a compare-and-swap on the article status. Empty ContentKey
// and Error leave the stored values untouched; ClearError wipes the error.
// MarkTranslated stamps TranslatedAt with the change time.
type StatusChange struct {
	From           ArticleStatus
	To             ArticleStatus
	ContentKey     string
	Error          string
	ClearError     bool
	MarkTranslated bool
}
