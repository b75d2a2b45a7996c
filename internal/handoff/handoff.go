// Package handoff is the Content Handoff Store: key-addressed JSON blobs that
// carry stage output to the next stage. Keys are derived from the article id,
// so a worker can locate its input without the job payload.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrObjectNotFound = errors.New("handoff object not found")

type Store interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

func ContentKey(articleID int64) string { return fmt.Sprintf("content/article_%d.json", articleID) }
func VectorsKey(articleID int64) string { return fmt.Sprintf("vectors/article_%d.json", articleID) }
func SummaryKey(articleID int64) string { return fmt.Sprintf("summaries/article_%d.json", articleID) }
func TranslationKey(articleID int64) string { return fmt.Sprintf("translations/article_%d.json", articleID) }
func TagsKey(articleID int64) string { return fmt.Sprintf("tags/article_%d.json", articleID) }

// PutJSON marshals v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, body)
}

// GetJSON loads key into v. A missing key yields ErrObjectNotFound.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	body, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
