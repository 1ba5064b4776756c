package domain

import (
	"strings"
	"time"
)

// tagSeparator joins tags into the single text column of the relational store.
const tagSeparator = ";"

// Summary is what the AI enrichment boundary returns for one article.
type Summary struct {
	Text        string
	Tags        []string
	SearchQuery string
}

// ArticleRecord is the persisted form of an enriched feed entry.
type ArticleRecord struct {
	ID          int64
	Reference   string
	FeedID      int64
	Author      string
	Title       string
	PublishedAt time.Time
	UpdatedAt   time.Time
	URL         string
	Summary     string
	Tags        []string
	SearchQuery string
}

// NewArticleRecord combines a parsed entry with its enrichment.
func NewArticleRecord(entry FeedEntry, summary Summary) ArticleRecord {
	return ArticleRecord{
		Reference:   entry.Reference,
		FeedID:      entry.FeedID,
		Author:      entry.Author,
		Title:       entry.Title,
		PublishedAt: entry.PublishedAt,
		UpdatedAt:   entry.UpdatedAt,
		URL:         entry.URL,
		Summary:     summary.Text,
		Tags:        summary.Tags,
		SearchQuery: summary.SearchQuery,
	}
}

// JoinedTags returns the tags in their stored form.
func (r ArticleRecord) JoinedTags() string {
	return strings.Join(r.Tags, tagSeparator)
}

// SplitTags parses a stored tag column back into a list.
func SplitTags(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, tagSeparator)
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// UpsertOutcome reports which branch the relational upsert took.
type UpsertOutcome string

const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)
