package ports

import (
	"context"
	"time"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
)

// FeedSource lists the feeds that should be polled.
type FeedSource interface {
	Feeds() []domain.FeedDefinition
}

// Fetcher downloads feed documents and article pages.
type Fetcher interface {
	FetchFeed(ctx context.Context, url string) ([]byte, error)
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// FeedParser turns a fetched feed document into filtered entries.
type FeedParser interface {
	Parse(feed domain.FeedDefinition, body []byte) ([]domain.FeedEntry, error)
}

// Debouncer decides whether an entry is due for (re)processing.
type Debouncer interface {
	IsReady(reference string, updated, now time.Time) bool
	Retry(reference string, at time.Time)
}

// Summarizer produces summary, tags and a search query for an article.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (domain.Summary, error)
}

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ArticleRepository persists enriched articles relationally.
type ArticleRepository interface {
	GetUpdatedTimeIfExists(ctx context.Context, reference string) (time.Time, bool, error)
	UpsertArticle(ctx context.Context, record domain.ArticleRecord) (domain.UpsertOutcome, error)
}

// VectorStore persists article embeddings.
type VectorStore interface {
	UpsertEmbedding(ctx context.Context, reference string, feedID int64, embedding []float32) error
}

// Scheduler drives recurring per-feed jobs.
type Scheduler interface {
	Every(interval time.Duration, name string, job func(ctx context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
