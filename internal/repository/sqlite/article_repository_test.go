package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

func TestArticleRepository_ApplyStatusIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	_, articles := openRepos(t)

	id, err := articles.Create(ctx, &entity.Article{ID: 42, URL: "https://example.com/42", Source: "example"}, base)
	if err != nil || id != 42 {
		t.Fatalf("create: id=%d err=%v", id, err)
	}

	err = articles.ApplyStatus(ctx, id, entity.StatusChange{From: entity.ArticlePending, To: entity.ArticleExtracting}, base)
	if err != nil {
		t.Fatalf("pending -> extracting: %v", err)
	}
	err = articles.ApplyStatus(ctx, id, entity.StatusChange{
		From:       entity.ArticleExtracting,
		To:         entity.ArticleExtracted,
		ContentKey: "content/article_42.json",
		ClearError: true,
	}, base.Add(time.Second))
	if err != nil {
		t.Fatalf("extracting -> extracted: %v", err)
	}

	// a second writer still believing the article is extracting loses
	err = articles.ApplyStatus(ctx, id, entity.StatusChange{From: entity.ArticleExtracting, To: entity.ArticleExtractionFailed, Error: "late"}, base)
	if !errors.Is(err, repository.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	a, err := articles.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != entity.ArticleExtracted || a.ContentKey != "content/article_42.json" || a.Error != "" {
		t.Fatalf("article: %+v", a)
	}
	if !a.UpdatedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("updated_at = %v", a.UpdatedAt)
	}

	err = articles.ApplyStatus(ctx, 999, entity.StatusChange{From: entity.ArticlePending, To: entity.ArticleExtracting}, base)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArticleRepository_ListPendingMatchesNull(t *testing.T) {
	ctx := context.Background()
	_, articles := openRepos(t)

	first, _ := articles.Create(ctx, &entity.Article{URL: "https://example.com/1"}, base)
	second, _ := articles.Create(ctx, &entity.Article{URL: "https://example.com/2"}, base.Add(time.Second))
	third, _ := articles.Create(ctx, &entity.Article{URL: "https://example.com/3"}, base.Add(2*time.Second))
	_ = articles.ApplyStatus(ctx, third, entity.StatusChange{From: entity.ArticlePending, To: entity.ArticleExtracting}, base)

	got, err := articles.List(ctx, repository.ArticleFilter{Statuses: []entity.ArticleStatus{entity.ArticlePending}, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != first || got[1].ID != second {
		t.Fatalf("pending list: %+v", got)
	}

	got, err = articles.List(ctx, repository.ArticleFilter{
		Statuses:    []entity.ArticleStatus{entity.ArticlePending, entity.ArticleExtracting},
		NewestFirst: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != third {
		t.Fatalf("mixed list: %+v", got)
	}

	counts, err := articles.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[entity.ArticlePending] != 2 || counts[entity.ArticleExtracting] != 1 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestArticleRepository_TranslationMarker(t *testing.T) {
	ctx := context.Background()
	_, articles := openRepos(t)

	for _, id := range []int64{1, 2} {
		if _, err := articles.Create(ctx, &entity.Article{ID: id, URL: "https://example.com", Status: entity.ArticleTagged}, base); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	at := base.Add(time.Minute)
	err := articles.ApplyStatus(ctx, 2, entity.StatusChange{
		From: entity.ArticleTagged, To: entity.ArticleTagged, MarkTranslated: true,
	}, at)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}

	a, err := articles.GetByID(ctx, 2)
	if err != nil || a.TranslatedAt == nil || !a.TranslatedAt.Equal(at) {
		t.Fatalf("translated_at = %v, %v", a.TranslatedAt, err)
	}

	// later status changes keep the marker
	err = articles.ApplyStatus(ctx, 2, entity.StatusChange{From: entity.ArticleTagged, To: entity.ArticleTranslating}, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if a, _ := articles.GetByID(ctx, 2); a.TranslatedAt == nil {
		t.Fatal("marker cleared by a plain status change")
	}

	list, err := articles.List(ctx, repository.ArticleFilter{
		Statuses:     []entity.ArticleStatus{entity.ArticleTagged, entity.ArticleTranslating},
		Untranslated: true,
	})
	if err != nil || len(list) != 1 || list[0].ID != 1 {
		t.Fatalf("untranslated = %+v, %v", list, err)
	}
}
