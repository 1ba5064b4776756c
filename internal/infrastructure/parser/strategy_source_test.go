package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/config"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/extractor"
)

func TestStrategySourceResolvesFeeds(t *testing.T) {
	t.Parallel()

	reg := extractor.NewRegistry()
	RegisterExtractors(reg)

	source := NewStrategySource(reg, []config.FeedConfig{
		{ID: 1, Name: "one", URL: "https://one.example.org/rss", Categories: []string{" Security "}, Extractor: "selector"},
		{ID: 2, Name: "two", URL: "https://two.example.org/rss"},
		{ID: 3, Name: "broken", URL: "https://three.example.org/rss", Extractor: "cloudflare"},
		{ID: 4, Name: "dup", URL: "https://one.example.org/rss"},
		{ID: 5, Name: "empty"},
	}, nil)

	feeds := source.Feeds()
	require.Len(t, feeds, 2)

	assert.Equal(t, int64(1), feeds[0].ID)
	assert.Equal(t, []string{"Security"}, feeds[0].Categories)
	assert.Equal(t, SelectorExtractorName, feeds[0].Extractor.Name())

	assert.Equal(t, int64(2), feeds[1].ID)
	assert.False(t, feeds[1].HasAllowList())
	assert.Equal(t, ReadabilityExtractorName, feeds[1].Extractor.Name())
}
