package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownJobType = errors.New("unknown job type")

// Payload is the typed input of one stage. Each variant belongs to exactly one JobType.
type Payload interface {
	JobType() JobType
	ArticleRef() int64
}

type ExtractPayload struct {
	ArticleID  int64  `json:"article_id"`
	URL        string `json:"url"`
	SourceName string `json:"source_name,omitempty"`
}

func (ExtractPayload) JobType() JobType    { return JobExtract }
func (p ExtractPayload) ArticleRef() int64 { return p.ArticleID }

type VectorizePayload struct {
	ArticleID  int64  `json:"article_id"`
	ContentKey string `json:"content_key"`
}

func (VectorizePayload) JobType() JobType    { return JobVectorize }
func (p VectorizePayload) ArticleRef() int64 { return p.ArticleID }

type SummarizePayload struct {
	ArticleID  int64  `json:"article_id"`
	ContentKey string `json:"content_key"`
}

func (SummarizePayload) JobType() JobType    { return JobSummarize }
func (p SummarizePayload) ArticleRef() int64 { return p.ArticleID }

type TranslatePayload struct {
	ArticleID      int64  `json:"article_id"`
	ContentKey     string `json:"content_key"`
	TargetLanguage string `json:"target_language,omitempty"`
	ForceTranslate bool   `json:"force_translate,omitempty"`
}

func (TranslatePayload) JobType() JobType    { return JobTranslate }
func (p TranslatePayload) ArticleRef() int64 { return p.ArticleID }

type TagPayload struct {
	ArticleID  int64  `json:"article_id"`
	SummaryKey string `json:"summary_key"`
}

func (TagPayload) JobType() JobType    { return JobTagGenerate }
func (p TagPayload) ArticleRef() int64 { return p.ArticleID }

// DecodePayload unmarshals raw into the variant registered for typ.
// Unknown fields are rejected so producer/consumer drift surfaces early.
func DecodePayload(typ JobType, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		raw = []byte(`{}`)
	}
	var p Payload
	switch typ {
	case JobExtract:
		var v ExtractPayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		p = v
	case JobVectorize:
		var v VectorizePayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		p = v
	case JobSummarize:
		var v SummarizePayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		p = v
	case JobTranslate:
		var v TranslatePayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		p = v
	case JobTagGenerate:
		var v TagPayload
		if err := decodeStrict(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", typ, err)
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, typ)
	}
	return p, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
