package eml

import (
	"context"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles EML (email) documents.
type Normaliser struct{}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"message/rfc822",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise renders the message headers and body text as one page.
// Attachments are not included; they are registered as their own items.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	msg, err := Parse(raw.Content)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, h := range [][2]string{
		{"From", msg.From},
		{"To", msg.To},
		{"Date", msg.Date},
		{"Subject", msg.Subject},
	} {
		if h[1] != "" {
			content.WriteString(h[0])
			content.WriteString(": ")
			content.WriteString(h[1])
			content.WriteString("\n")
		}
	}
	content.WriteString("\n")
	content.WriteString(msg.Text)

	// Use subject as title, fall back to filename
	title := msg.Subject
	if title == "" {
		title = plaintext.TitleFor(raw)
	}

	return &driven.NormaliseResult{
		Title: title,
		Pages: []string{strings.TrimSpace(content.String())},
	}, nil
}
