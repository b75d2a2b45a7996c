package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Extraction is the readable content of a fetched page.
type Extraction struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	SourceName string `json:"source_name,omitempty"`
	Language   string `json:"language,omitempty"`
	Method     string `json:"method,omitempty"`
}

type Extractor interface {
	Extract(ctx context.Context, url string) (Extraction, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (string, error)
}

type TranslationResult struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	SourceLanguage string `json:"source_language,omitempty"`
}

type Translator interface {
	Translate(ctx context.Context, title, content, targetLanguage string) (TranslationResult, error)
}

type Tagger interface {
	Tags(ctx context.Context, title, summary string) ([]string, error)
}

// ExtractorClient calls POST {base}/extract.
type ExtractorClient struct{ c *client }

func NewExtractor(cfg Config, opts ...Option) *ExtractorClient {
	return &ExtractorClient{c: newClient(cfg, opts...)}
}

func (e *ExtractorClient) Extract(ctx context.Context, url string) (Extraction, error) {
	var out Extraction
	err := e.c.postJSON(ctx, "extract", "/extract", map[string]string{"url": url}, &out)
	return out, err
}

// EmbedderClient calls POST {base}/embed.
type EmbedderClient struct{ c *client }

func NewEmbedder(cfg Config, opts ...Option) *EmbedderClient {
	return &EmbedderClient{c: newClient(cfg, opts...)}
}

func (e *EmbedderClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := struct {
		Model string   `json:"model,omitempty"`
		Texts []string `json:"texts"`
	}{Model: e.c.cfg.Model, Texts: texts}
	var resp struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := e.c.postJSON(ctx, "embed", "/embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(resp.Vectors), len(texts))
	}
	return resp.Vectors, nil
}

// SummarizerClient calls POST {base}/summarize.
type SummarizerClient struct{ c *client }

func NewSummarizer(cfg Config, opts ...Option) *SummarizerClient {
	return &SummarizerClient{c: newClient(cfg, opts...)}
}

func (s *SummarizerClient) Summarize(ctx context.Context, title, content string) (string, error) {
	req := struct {
		Model   string `json:"model,omitempty"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}{Model: s.c.cfg.Model, Title: title, Content: content}
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := s.c.postJSON(ctx, "summarize", "/summarize", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return "", errors.New("summarize: empty summary")
	}
	return resp.Summary, nil
}

// TranslatorClient calls POST {base}/translate.
type TranslatorClient struct{ c *client }

func NewTranslator(cfg Config, opts ...Option) *TranslatorClient {
	return &TranslatorClient{c: newClient(cfg, opts...)}
}

func (t *TranslatorClient) Translate(ctx context.Context, title, content, targetLanguage string) (TranslationResult, error) {
	req := struct {
		Title          string `json:"title"`
		Content        string `json:"content"`
		TargetLanguage string `json:"target_language"`
	}{Title: title, Content: content, TargetLanguage: targetLanguage}
	var out TranslationResult
	err := t.c.postJSON(ctx, "translate", "/translate", req, &out)
	return out, err
}

// TaggerClient calls POST {base}/tags.
type TaggerClient struct{ c *client }

func NewTagger(cfg Config, opts ...Option) *TaggerClient {
	return &TaggerClient{c: newClient(cfg, opts...)}
}

func (t *TaggerClient) Tags(ctx context.Context, title, summary string) ([]string, error) {
	req := struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}{Title: title, Summary: summary}
	var resp struct {
		Tags []string `json:"tags"`
	}
	if err := t.c.postJSON(ctx, "tags", "/tags", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tags, nil
}
