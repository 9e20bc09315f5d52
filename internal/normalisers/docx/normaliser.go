package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// maxPartSize bounds how much of one archive member is read.
const maxPartSize = 64 << 20

// Normaliser handles DOCX documents.
type Normaliser struct{}

// New creates a new DOCX normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

// Normalise extracts paragraph and table text from word/document.xml.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	reader, err := zip.NewReader(bytes.NewReader(raw.Content), int64(len(raw.Content)))
	if err != nil {
		return nil, fmt.Errorf("%w: open docx: %v", domain.ErrUnextractable, err)
	}

	content, err := readPart(reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	text, err := parseDocumentXML(content)
	if err != nil {
		return nil, err
	}

	title := extractTitle(reader)
	if title == "" {
		title = plaintext.TitleFor(raw)
	}

	return &driven.NormaliseResult{
		Title: title,
		Pages: []string{text},
	}, nil
}

// readPart returns the named archive member, or nil if absent.
func readPart(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", domain.ErrUnextractable, name, err)
		}
		defer rc.Close()

		content, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", domain.ErrUnextractable, name, err)
		}
		return content, nil
	}
	return nil, nil
}

// parseDocumentXML walks the WordprocessingML body. Paragraphs end lines,
// table rows become one line with tab separated cells.
func parseDocumentXML(content []byte) (string, error) {
	if len(content) == 0 {
		return "", nil
	}

	var (
		result strings.Builder
		row    []string
		cell   strings.Builder
		inText bool
		inCell int
	)
	out := func() *strings.Builder {
		if inCell > 0 {
			return &cell
		}
		return &result
	}

	dec := xml.NewDecoder(bytes.NewReader(content))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: parse document.xml: %v", domain.ErrUnextractable, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out().WriteString("\t")
			case "br", "cr":
				out().WriteString("\n")
			case "tc":
				inCell++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out().WriteString("\n")
			case "tc":
				if inCell > 0 {
					inCell--
				}
				if inCell == 0 {
					row = append(row, strings.Join(strings.Fields(cell.String()), " "))
					cell.Reset()
				}
			case "tr":
				if inCell == 0 && len(row) > 0 {
					result.WriteString(strings.Join(row, "\t"))
					result.WriteString("\n")
					row = row[:0]
				}
			}
		case xml.CharData:
			if inText {
				out().Write(t)
			}
		}
	}

	lines := strings.Split(result.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n"), nil
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

// extractTitle returns the title from docProps/core.xml, if any.
func extractTitle(reader *zip.Reader) string {
	content, err := readPart(reader, "docProps/core.xml")
	if err != nil || content == nil {
		return ""
	}
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
