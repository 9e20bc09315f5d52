// Package pdf extracts per-page text from PDF documents with MuPDF
// through go-fitz.
package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxTitleLength bounds a first line that is used as title.
const maxTitleLength = 200

// PageExtractor returns the text of every page in a PDF, in page order.
type PageExtractor interface {
	ExtractPages(ctx context.Context, content []byte) ([]string, error)
}

// fitzExtractor reads PDFs from memory with MuPDF.
type fitzExtractor struct{}

func (fitzExtractor) ExtractPages(ctx context.Context, content []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", domain.ErrUnextractable, err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: extract page %d: %v", domain.ErrUnextractable, i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// Normaliser handles PDF documents.
type Normaliser struct {
	extractor PageExtractor
}

// New creates a PDF normaliser backed by MuPDF.
func New() *Normaliser {
	return &Normaliser{extractor: fitzExtractor{}}
}

// NewWithExtractor creates a PDF normaliser with a custom page extractor.
func NewWithExtractor(extractor PageExtractor) *Normaliser {
	return &Normaliser{extractor: extractor}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise returns one page of text per PDF page. Blank pages are kept so
// page numbers line up with the document.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if len(raw.Content) == 0 {
		return &driven.NormaliseResult{Title: plaintext.TitleFor(raw)}, nil
	}

	pages, err := n.extractor.ExtractPages(ctx, raw.Content)
	if err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	for i, p := range pages {
		pages[i] = strings.TrimSpace(strings.ReplaceAll(p, "\r\n", "\n"))
	}

	title := raw.Metadata["title"]
	if title == "" {
		title = extractTitle(strings.Join(pages, "\n"), raw)
	}
	return &driven.NormaliseResult{Title: title, Pages: pages}, nil
}

// extractTitle uses the first short non-empty line, then the filename.
func extractTitle(content string, raw *domain.RawDocument) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsRune(line, 0) {
			continue
		}
		if len(line) < maxTitleLength {
			return line
		}
	}
	return plaintext.TitleFor(raw)
}
