package plaintext

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/csv",
		"text/tab-separated-values",
		"text/yaml",
		"text/toml",
		"text/x-log",
		"text/calendar",
		"text/html",
		"text/markdown",
		"application/json",
		"application/xml",
		"text/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise decodes the raw bytes as a single page of text.
// Bytes that are not valid UTF-8 are read as Latin-1.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	text := DecodeText(raw.Content)
	return &driven.NormaliseResult{
		Title: TitleFor(raw),
		Pages: []string{text},
	}, nil
}

// DecodeText returns content as a string with normalised line endings.
func DecodeText(content []byte) string {
	var text string
	if utf8.Valid(content) {
		text = string(content)
	} else {
		runes := make([]rune, len(content))
		for i, b := range content {
			runes[i] = rune(b)
		}
		text = string(runes)
	}
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// TitleFor checks metadata for a title first, then falls back to the
// filename and finally the URI.
func TitleFor(raw *domain.RawDocument) string {
	if title := raw.Metadata["title"]; title != "" {
		return title
	}
	if raw.Filename != "" {
		return extractTitle(raw.Filename)
	}
	return extractTitle(raw.URI)
}

// extractTitle extracts a human-readable title from a path.
func extractTitle(uri string) string {
	if uri == "" {
		return ""
	}

	// Get filename from path
	filename := filepath.Base(uri)

	// Remove common extensions for cleaner title
	ext := filepath.Ext(filename)
	if ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}

	// Replace underscores and dashes with spaces
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")

	return filename
}
