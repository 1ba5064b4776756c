package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkemkes/the-gist-of-it-sec-sub001/internal/domain"
)

type namedExtractor string

func (n namedExtractor) Name() string { return string(n) }

func (n namedExtractor) ExtractText([]byte, string) (string, error) { return "", nil }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("css", func(options map[string]string) (domain.TextExtractor, error) {
		return namedExtractor("css:" + options["selector"]), nil
	})

	ext, err := reg.Resolve("css", map[string]string{"selector": "main"})
	require.NoError(t, err)
	assert.Equal(t, "css:main", ext.Name())

	_, err = reg.Resolve("missing", nil)
	assert.Error(t, err)
}
