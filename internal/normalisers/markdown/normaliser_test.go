package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()
	assert.Contains(t, mimeTypes, "text/markdown")
	assert.Contains(t, mimeTypes, "text/x-markdown")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:      "/path/to/doc.md",
		MIMEType: "text/markdown",
		Content:  []byte("# Hello World\n\nThis is a test."),
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "Hello World", result.Title)
	assert.Equal(t, []string{"Hello World\n\nThis is a test."}, result.Pages)
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	result, err := New().Normalise(context.Background(), &domain.RawDocument{URI: "/path/empty.md"})
	require.NoError(t, err)
	assert.Empty(t, result.Text())
}

func TestNormalise_TitleExtraction(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		uri           string
		expectedTitle string
	}{
		{
			name:          "h1 heading",
			content:       "# My Document\n\nContent here.",
			uri:           "/path/file.md",
			expectedTitle: "My Document",
		},
		{
			name:          "h1 with extra spaces",
			content:       "#   Spaced Title   \n\nContent",
			uri:           "/path/file.md",
			expectedTitle: "Spaced Title",
		},
		{
			name:          "no heading falls back to filename",
			content:       "Just some content",
			uri:           "/path/my-document.md",
			expectedTitle: "my document",
		},
		{
			name:          "h2 only falls back to filename",
			content:       "## Not H1\n\nContent",
			uri:           "/path/readme.md",
			expectedTitle: "readme",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := New().Normalise(context.Background(), &domain.RawDocument{
				URI:     tc.uri,
				Content: []byte(tc.content),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.expectedTitle, result.Title)
		})
	}
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "headings removed",
			input:    "# Title\n## Subtitle\n### Third",
			expected: "Title\nSubtitle\nThird",
		},
		{
			name:     "bold removed",
			input:    "This is **bold** text",
			expected: "This is bold text",
		},
		{
			name:     "links converted",
			input:    "Click [here](https://example.com)",
			expected: "Click here",
		},
		{
			name:     "images keep alt text",
			input:    "See ![alt text](image.png) here",
			expected: "See alt text here",
		},
		{
			name:     "code fences removed, code kept",
			input:    "Before\n```go\ncode here\n```\nAfter",
			expected: "Before\ncode here\nAfter",
		},
		{
			name:     "inline code unwrapped",
			input:    "Use `code` here",
			expected: "Use code here",
		},
		{
			name:     "blockquotes cleaned",
			input:    "> This is a quote",
			expected: "This is a quote",
		},
		{
			name:     "list markers removed",
			input:    "- Item 1\n* Item 2",
			expected: "Item 1\nItem 2",
		},
		{
			name:     "numbered list markers removed",
			input:    "1. First\n2. Second",
			expected: "First\nSecond",
		},
		{
			name:     "table rule removed",
			input:    "| Test | Value |\n|------|:-----:|\n| HbA1c | 6.1 |",
			expected: "| Test | Value |\n\n| HbA1c | 6.1 |",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, stripMarkdown(tc.input))
		})
	}
}

func TestNormalise_ComplexMarkdown(t *testing.T) {
	complexMarkdown := `# Main Title

## Section 1

This is a paragraph with **bold** and *italic* text.

- List item 1
- List item 2

` + "```" + `
HbA1c 6.1 %
` + "```" + `

[Link](https://example.com)
`

	result, err := New().Normalise(context.Background(), &domain.RawDocument{
		URI:     "/path/complex.md",
		Content: []byte(complexMarkdown),
	})
	require.NoError(t, err)

	text := result.Text()
	assert.Equal(t, "Main Title", result.Title)
	assert.NotContains(t, text, "**bold**")
	assert.Contains(t, text, "bold")
	assert.NotContains(t, text, "[Link]")
	assert.Contains(t, text, "Link")
	assert.NotContains(t, text, "```")
	assert.Contains(t, text, "HbA1c 6.1 %")
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
