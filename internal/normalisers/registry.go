package normalisers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/normalisers/docx"
	"github.com/custodia-labs/jarvis/internal/normalisers/eml"
	"github.com/custodia-labs/jarvis/internal/normalisers/html"
	"github.com/custodia-labs/jarvis/internal/normalisers/ics"
	"github.com/custodia-labs/jarvis/internal/normalisers/markdown"
	"github.com/custodia-labs/jarvis/internal/normalisers/pdf"
	"github.com/custodia-labs/jarvis/internal/normalisers/plaintext"
)

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches raw content to the highest priority normaliser that
// supports its MIME type. Normalisers with equal priority are tried in
// registration order.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty normaliser registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterDefaults adds every built-in normaliser to r.
func RegisterDefaults(r *Registry) {
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	r.Register(eml.New())
	r.Register(ics.New())
	r.Register(docx.New())
	r.Register(pdf.New())
}

// Register adds a normaliser to the registry.
func (r *Registry) Register(normaliser driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers = append(r.normalisers, normaliser)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// SupportedMIMETypes returns all MIME types that can be normalised, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var types []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if !seen[t] {
				seen[t] = true
				types = append(types, t)
			}
		}
	}
	sort.Strings(types)
	return types
}

// ExtractText normalises the raw bytes of item. It returns
// domain.ErrUnsupportedType when no normaliser handles the MIME type.
func (r *Registry) ExtractText(
	ctx context.Context, item *domain.ContentItem, raw []byte,
) (*driven.NormaliseResult, error) {
	if item == nil {
		return nil, domain.ErrInvalidInput
	}

	doc := rawDocument(item, raw)
	normaliser := r.lookup(doc.MIMEType)
	if normaliser == nil {
		return nil, fmt.Errorf("%w: no normaliser for %q", domain.ErrUnsupportedType, doc.MIMEType)
	}

	result, err := normaliser.Normalise(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", item.ContentID, err)
	}
	return result, nil
}

// lookup finds the normaliser for mimeType. Unclaimed text/* types fall
// back to the text/plain normaliser.
func (r *Registry) lookup(mimeType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n := r.find(mimeType); n != nil {
		return n
	}
	if strings.HasPrefix(mimeType, "text/") {
		return r.find("text/plain")
	}
	return nil
}

func (r *Registry) find(mimeType string) driven.Normaliser {
	for _, n := range r.normalisers {
		for _, t := range n.SupportedMIMETypes() {
			if t == mimeType {
				return n
			}
		}
	}
	return nil
}

// rawDocument builds the normaliser input from a registered item.
func rawDocument(item *domain.ContentItem, raw []byte) *domain.RawDocument {
	p := item.Provenance

	uri := p.Path
	if uri == "" {
		uri = item.ContentID
	}
	mimeType := normaliseMIMEType(item.MIMEType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		name := p.Filename
		if name == "" {
			name = p.Path
		}
		mimeType = domain.DetectMIMEType(name, raw)
	}

	var metadata map[string]string
	if p.Subject != "" {
		metadata = map[string]string{"title": p.Subject}
	}

	return &domain.RawDocument{
		ContentID: item.ContentID,
		URI:       uri,
		Filename:  p.Filename,
		MIMEType:  mimeType,
		Content:   raw,
		Metadata:  metadata,
	}
}

func normaliseMIMEType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
