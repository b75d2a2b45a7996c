package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"article-pipeline/internal/entity"
)

var (
	articleIDSchema = map[string]any{"type": "integer", "minimum": 1}
	keySchema       = map[string]any{"type": "string", "minLength": 1}

	payloadSchemas = map[entity.JobType]map[string]any{
		entity.JobExtract: {
			"type":                 "object",
			"required":             []string{"article_id", "url"},
			"additionalProperties": false,
			"properties": map[string]any{
				"article_id":  articleIDSchema,
				"url":         map[string]any{"type": "string", "minLength": 1},
				"source_name": map[string]any{"type": "string"},
			},
		},
		entity.JobVectorize: {
			"type":                 "object",
			"required":             []string{"article_id", "content_key"},
			"additionalProperties": false,
			"properties": map[string]any{
				"article_id":  articleIDSchema,
				"content_key": keySchema,
			},
		},
		entity.JobSummarize: {
			"type":                 "object",
			"required":             []string{"article_id", "content_key"},
			"additionalProperties": false,
			"properties": map[string]any{
				"article_id":  articleIDSchema,
				"content_key": keySchema,
			},
		},
		entity.JobTranslate: {
			"type":                 "object",
			"required":             []string{"article_id", "content_key"},
			"additionalProperties": false,
			"properties": map[string]any{
				"article_id":      articleIDSchema,
				"content_key":     keySchema,
				"target_language": map[string]any{"type": "string"},
				"force_translate": map[string]any{"type": "boolean"},
			},
		},
		entity.JobTagGenerate: {
			"type":                 "object",
			"required":             []string{"article_id", "summary_key"},
			"additionalProperties": false,
			"properties": map[string]any{
				"article_id":  articleIDSchema,
				"summary_key": keySchema,
			},
		},
	}
)

var (
	compileOnce sync.Once
	compiled    map[entity.JobType]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() (map[entity.JobType]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		out := make(map[entity.JobType]*jsonschema.Schema, len(payloadSchemas))
		compiler := jsonschema.NewCompiler()
		for typ, doc := range payloadSchemas {
			b, err := json.Marshal(doc)
			if err != nil {
				compileErr = fmt.Errorf("marshal %s schema: %w", typ, err)
				return
			}
			url := string(typ) + ".json"
			if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
				compileErr = fmt.Errorf("add %s schema: %w", typ, err)
				return
			}
			s, err := compiler.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compile %s schema: %w", typ, err)
				return
			}
			out[typ] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// ValidatePayload checks raw against the schema registered for typ.
func ValidatePayload(typ entity.JobType, raw []byte) error {
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}
	s, ok := schemas[typ]
	if !ok {
		return fmt.Errorf("%w: %q", entity.ErrUnknownJobType, typ)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("payload is not json: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", typ, err)
	}
	return nil
}
