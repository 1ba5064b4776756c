package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/extractor"
)

const (
	SelectorExtractorName    = "selector"
	ReadabilityExtractorName = "readability"

	defaultSelector = "article"
)

// SelectorExtractor returns the text of every element matching a CSS selector.
type SelectorExtractor struct {
	selector string
}

var _ domain.TextExtractor = (*SelectorExtractor)(nil)

// NewSelectorExtractor defaults the selector to "article".
func NewSelectorExtractor(selector string) *SelectorExtractor {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = defaultSelector
	}
	return &SelectorExtractor{selector: selector}
}

func (s *SelectorExtractor) Name() string {
	return SelectorExtractorName
}

// ExtractText joins the text of all matched elements, one per line.
func (s *SelectorExtractor) ExtractText(page []byte, _ string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var parts []string
	doc.Find(s.selector).Each(func(_ int, sel *goquery.Selection) {
		if text := collapseSpaces(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	if len(parts) == 0 {
		return "", fmt.Errorf("selector %q matched no text", s.selector)
	}
	return strings.Join(parts, "\n"), nil
}

// ReadabilityExtractor isolates the main content of a page before flattening it.
type ReadabilityExtractor struct{}

var _ domain.TextExtractor = (*ReadabilityExtractor)(nil)

func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{}
}

func (r *ReadabilityExtractor) Name() string {
	return ReadabilityExtractorName
}

func (r *ReadabilityExtractor) ExtractText(page []byte, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %s: %w", pageURL, err)
	}

	article, err := readability.FromReader(bytes.NewReader(page), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", fmt.Errorf("parse readable content: %w", err)
	}

	text := collapseSpaces(doc.Text())
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", pageURL)
	}
	return text, nil
}

// RegisterExtractors adds the built-in strategies to reg.
func RegisterExtractors(reg *extractor.Registry) {
	reg.Register(SelectorExtractorName, func(options map[string]string) (domain.TextExtractor, error) {
		return NewSelectorExtractor(options["selector"]), nil
	})
	reg.Register(ReadabilityExtractorName, func(map[string]string) (domain.TextExtractor, error) {
		return NewReadabilityExtractor(), nil
	})
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
