package parser

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/ports"
)

var unixEpoch = time.Unix(0, 0).UTC()

// Document is a parsed feed with its feed-level metadata.
type Document struct {
	Title    string
	Language string
	Entries  []domain.FeedEntry
}

// FeedParser normalizes RSS, Atom and JSON feeds into entries. It holds no
// shared state and may be used concurrently for different feeds.
type FeedParser struct{}

var _ ports.FeedParser = (*FeedParser)(nil)

// NewFeedParser builds a parser.
func NewFeedParser() *FeedParser {
	return &FeedParser{}
}

// Parse returns the entries of body that pass the feed's category allow-list.
func (p *FeedParser) Parse(feed domain.FeedDefinition, body []byte) ([]domain.FeedEntry, error) {
	doc, err := p.ParseDocument(feed, body)
	if err != nil {
		return nil, err
	}
	return FilterByCategory(feed, doc.Entries), nil
}

// ParseDocument parses body without applying the category filter.
func (p *FeedParser) ParseDocument(feed domain.FeedDefinition, body []byte) (Document, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return Document{}, fmt.Errorf("%w: %s: %v", domain.ErrFeedMalformed, feed.URL, err)
	}

	doc := Document{
		Title:    strings.TrimSpace(parsed.Title),
		Language: strings.TrimSpace(parsed.Language),
		Entries:  make([]domain.FeedEntry, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entry, ok := parseItem(feed.ID, item)
		if !ok {
			continue
		}
		doc.Entries = append(doc.Entries, entry)
	}

	return doc, nil
}

// FilterByCategory drops entries whose categories miss the allow-list.
// Feeds without an allow-list pass every entry through.
func FilterByCategory(feed domain.FeedDefinition, entries []domain.FeedEntry) []domain.FeedEntry {
	if !feed.HasAllowList() {
		return entries
	}

	kept := make([]domain.FeedEntry, 0, len(entries))
	for _, entry := range entries {
		if intersects(entry.Categories, feed.Categories) {
			kept = append(kept, entry)
		}
	}
	return kept
}

func parseItem(feedID int64, item *gofeed.Item) (domain.FeedEntry, bool) {
	reference := strings.TrimSpace(item.GUID)
	link := strings.TrimSpace(item.Link)
	if reference == "" {
		reference = link
	}
	if reference == "" {
		return domain.FeedEntry{}, false
	}

	published, updated, ok := entryTimes(item)
	if !ok {
		return domain.FeedEntry{}, false
	}

	return domain.FeedEntry{
		Reference:   reference,
		FeedID:      feedID,
		Author:      authorOf(item),
		Title:       html.UnescapeString(strings.TrimSpace(item.Title)),
		PublishedAt: published,
		UpdatedAt:   updated,
		URL:         link,
		Categories:  trimAll(item.Categories),
	}, true
}

// entryTimes applies the epoch rule: feeds that encode "never modified" as
// the Unix epoch get their published time as the effective updated time.
func entryTimes(item *gofeed.Item) (published, updated time.Time, ok bool) {
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil && item.UpdatedParsed.After(unixEpoch) {
		updated = item.UpdatedParsed.UTC()
	} else {
		updated = published
	}

	if published.IsZero() {
		published = updated
	}
	return published, updated, !updated.IsZero()
}

func authorOf(item *gofeed.Item) string {
	names := make([]string, 0, len(item.Authors))
	for _, person := range item.Authors {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 0 {
		return strings.Join(names, ", ")
	}

	if item.DublinCoreExt != nil {
		if creators := trimAll(item.DublinCoreExt.Creator); len(creators) > 0 {
			return strings.Join(creators, ", ")
		}
	}
	return ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func intersects(categories, allowed []string) bool {
	for _, c := range categories {
		for _, a := range allowed {
			if strings.EqualFold(c, strings.TrimSpace(a)) {
				return true
			}
		}
	}
	return false
}
