// Package repository holds the types shared by the Job Store and Article
// store backends (postgresql for production, sqlite for local runs and tests).
package repository

import (
	"errors"
	"time"

	"article-pipeline/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStateConflict is returned when a conditional update matched an
	// existing row whose current state does not allow the change.
	ErrStateConflict = errors.New("state conflict")
)

// JobFilter narrows List. Zero values mean "no constraint"; Limit defaults to 50.
type JobFilter struct {
	Statuses     []entity.JobStatus
	Type         entity.JobType
	ArticleID    int64
	CreatedSince time.Time
	Limit        int
}

// ArticleFilter narrows ListArticles. Statuses may contain ArticlePending,
// which also matches NULL rows.
type ArticleFilter struct {
	Statuses     []entity.ArticleStatus
	UpdatedSince time.Time
	// Untranslated keeps only articles without a translation.
	Untranslated bool
	Limit        int
	NewestFirst  bool
}

// JobStats is the raw aggregate used by the queue manager's /stats.
type JobStats struct {
	ByStatus       map[entity.JobStatus]int
	CompletedToday int
	FailedToday    int
}

// FailResult reports where FailJob left the row.
type FailResult struct {
	Status   entity.JobStatus
	Attempts int
}

const DefaultListLimit = 50

func (f JobFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ArticleFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// HasPending reports whether the filter should also match NULL statuses.
func (f ArticleFilter) HasPending() bool {
	for _, s := range f.Statuses {
		if s == entity.ArticlePending {
			return true
		}
	}
	return false
}
