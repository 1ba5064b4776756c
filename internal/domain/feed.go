package domain

import "time"

// TextExtractor turns a fetched article page into plain text.
type TextExtractor interface {
	Name() string
	ExtractText(page []byte, pageURL string) (string, error)
}

// FeedDefinition describes one configured source. It is built at startup and
// never mutated afterwards.
type FeedDefinition struct {
	ID         int64
	Name       string
	URL        string
	Categories []string
	Extractor  TextExtractor
}

// HasAllowList reports whether the feed restricts entries by category.
func (f FeedDefinition) HasAllowList() bool {
	return len(f.Categories) > 0
}

// FeedEntry is one article occurrence parsed from a feed document.
// Reference and FeedID form the natural key used by the stores.
type FeedEntry struct {
	Reference   string
	FeedID      int64
	Author      string
	Title       string
	PublishedAt time.Time
	UpdatedAt   time.Time
	URL         string
	Categories  []string
}
