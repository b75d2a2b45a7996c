package handoff

import "time"

// Content is written by extract and read by vectorize, summarize and translate.
type Content struct {
	ArticleID   int64     `json:"article_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	WordCount   int       `json:"word_count"`
	SourceName  string    `json:"source_name,omitempty"`
	Language    string    `json:"language,omitempty"`
	Method      string    `json:"extraction_method,omitempty"`
	ExtractedAt time.Time `json:"extracted_at"`
}

type Chunk struct {
	Index  int       `json:"chunk_index"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

type Vectors struct {
	ArticleID    int64     `json:"article_id"`
	Model        string    `json:"model,omitempty"`
	Chunks       []Chunk   `json:"chunks"`
	VectorizedAt time.Time `json:"vectorized_at"`
}

type Summary struct {
	ArticleID    int64     `json:"article_id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	SummarizedAt time.Time `json:"summarized_at"`
}

type Translation struct {
	ArticleID      int64     `json:"article_id"`
	SourceLanguage string    `json:"source_language,omitempty"`
	TargetLanguage string    `json:"target_language"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	TranslatedAt   time.Time `json:"translated_at"`
}

type Tags struct {
	ArticleID   int64     `json:"article_id"`
	Tags        []string  `json:"tags"`
	GeneratedAt time.Time `json:"generated_at"`
}
