package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Security Weekly</title>
    <language>en-us</language>
    <item>
      <guid>  sec-1  </guid>
      <title>Patch Tuesday &amp; friends</title>
      <link>https://news.example.org/sec-1</link>
      <pubDate>Mon, 03 Mar 2025 10:00:00 GMT</pubDate>
      <dc:creator>Alice Analyst</dc:creator>
      <category> Security </category>
    </item>
    <item>
      <guid>gadget-1</guid>
      <title>New phone</title>
      <link>https://news.example.org/gadget-1</link>
      <pubDate>Mon, 03 Mar 2025 11:00:00 GMT</pubDate>
      <category>Gadgets</category>
    </item>
    <item>
      <title>No guid here</title>
      <link>https://news.example.org/no-guid</link>
      <pubDate>Mon, 03 Mar 2025 12:00:00 GMT</pubDate>
    </item>
    <item>
      <guid>undated</guid>
      <title>Undated</title>
      <link>https://news.example.org/undated</link>
    </item>
  </channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Vendor Advisories</title>
  <id>urn:feed</id>
  <updated>2025-03-03T12:00:00Z</updated>
  <entry>
    <id>urn:advisory:1</id>
    <title>Advisory one</title>
    <link href="https://vendor.example.org/a1"/>
    <published>2025-03-01T08:00:00Z</published>
    <updated>1970-01-01T00:00:00Z</updated>
    <author><name>Bob</name></author>
    <author><name>Carol</name></author>
  </entry>
  <entry>
    <id>urn:advisory:2</id>
    <title>Advisory two</title>
    <link href="https://vendor.example.org/a2"/>
    <published>2025-03-01T08:00:00Z</published>
    <updated>2025-03-02T09:30:00Z</updated>
  </entry>
</feed>`

func TestParseDocumentRSS(t *testing.T) {
	t.Parallel()

	p := NewFeedParser()
	doc, err := p.ParseDocument(domain.FeedDefinition{ID: 7, URL: "https://news.example.org/rss"}, []byte(rssFeed))
	require.NoError(t, err)

	assert.Equal(t, "Security Weekly", doc.Title)
	assert.Equal(t, "en-us", doc.Language)
	require.Len(t, doc.Entries, 3, "undated entry is dropped")

	first := doc.Entries[0]
	assert.Equal(t, "sec-1", first.Reference)
	assert.Equal(t, int64(7), first.FeedID)
	assert.Equal(t, "Patch Tuesday & friends", first.Title)
	assert.Equal(t, "Alice Analyst", first.Author)
	assert.Equal(t, []string{"Security"}, first.Categories)
	assert.Equal(t, "https://news.example.org/sec-1", first.URL)

	want := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)
	assert.True(t, first.PublishedAt.Equal(want))
	assert.True(t, first.UpdatedAt.Equal(want), "rss items without an updated time use published")

	assert.Equal(t, "https://news.example.org/no-guid", doc.Entries[2].Reference)
	assert.Equal(t, "", doc.Entries[1].Author)
}

func TestParseDocumentAtomEpochUpdated(t *testing.T) {
	t.Parallel()

	p := NewFeedParser()
	doc, err := p.ParseDocument(domain.FeedDefinition{ID: 1}, []byte(atomFeed))
	require.NoError(t, err)
	require.Len(t, doc.Entries, 2)

	published := time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

	epoch := doc.Entries[0]
	assert.Equal(t, "urn:advisory:1", epoch.Reference)
	assert.True(t, epoch.UpdatedAt.Equal(published), "epoch updated falls back to published, got %v", epoch.UpdatedAt)
	assert.Equal(t, "Bob, Carol", epoch.Author)

	modified := doc.Entries[1]
	assert.True(t, modified.UpdatedAt.Equal(time.Date(2025, time.March, 2, 9, 30, 0, 0, time.UTC)))
	assert.True(t, modified.PublishedAt.Equal(published))
}

func TestParseAppliesAllowList(t *testing.T) {
	t.Parallel()

	p := NewFeedParser()

	filtered, err := p.Parse(domain.FeedDefinition{ID: 7, Categories: []string{"security"}}, []byte(rssFeed))
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "sec-1", filtered[0].Reference)

	unfiltered, err := p.Parse(domain.FeedDefinition{ID: 7}, []byte(rssFeed))
	require.NoError(t, err)
	assert.Len(t, unfiltered, 3)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	_, err := NewFeedParser().Parse(domain.FeedDefinition{URL: "https://bad.example.org"}, []byte("<html><body>nope</body></html>"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFeedMalformed))
}

func TestFilterByCategory(t *testing.T) {
	t.Parallel()

	entries := []domain.FeedEntry{
		{Reference: "a", Categories: []string{"Security", "Cloud"}},
		{Reference: "b", Categories: []string{"Gadgets"}},
		{Reference: "c"},
	}

	kept := FilterByCategory(domain.FeedDefinition{Categories: []string{"Cloud", "Privacy"}}, entries)
	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].Reference)

	for _, entry := range kept {
		assert.True(t, intersects(entry.Categories, []string{"Cloud", "Privacy"}))
	}

	assert.Len(t, FilterByCategory(domain.FeedDefinition{}, entries), 3)
}
