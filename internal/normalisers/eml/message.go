package eml

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strconv"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/normalisers/html"
	"github.com/custodia-labs/jarvis/internal/normalisers/plaintext"
)

// maxDepth bounds nested multipart recursion.
const maxDepth = 8

// Attachment is a non-body part of a message.
type Attachment struct {
	// ID is the 1-based position of the attachment within the message.
	ID       string
	Filename string
	MIMEType string
	Content  []byte
}

// Message is a parsed RFC 822 message.
type Message struct {
	MessageID   string
	Subject     string
	From        string
	To          string
	Date        string
	Text        string
	Attachments []Attachment
}

// Parse reads an RFC 822 message. Plain text bodies are preferred over HTML.
// A message without a Message-ID header gets one derived from its bytes.
func Parse(raw []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse message: %v", domain.ErrUnextractable, err)
	}

	m := &Message{
		MessageID: strings.Trim(strings.TrimSpace(msg.Header.Get("Message-ID")), "<>"),
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		From:      decodeHeader(msg.Header.Get("From")),
		To:        decodeHeader(msg.Header.Get("To")),
		Date:      msg.Header.Get("Date"),
	}
	if m.MessageID == "" {
		m.MessageID = domain.HashContent(raw)[:32]
	}

	var w walker
	if err := w.walk(msg.Header.Get, msg.Body, 0); err != nil {
		return nil, err
	}

	switch {
	case len(w.text) > 0:
		m.Text = strings.Join(w.text, "\n")
	case len(w.html) > 0:
		m.Text = strings.Join(w.html, "\n")
	}
	m.Text = strings.TrimSpace(m.Text)
	m.Attachments = w.attachments
	return m, nil
}

type walker struct {
	text        []string
	html        []string
	attachments []Attachment
}

func (w *walker) walk(header func(string) string, body io.Reader, depth int) error {
	contentType := header("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		if depth >= maxDepth || params["boundary"] == "" {
			return nil
		}
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// Truncated multipart: keep what was read.
				return nil
			}
			err = w.walk(part.Header.Get, part, depth+1)
			part.Close()
			if err != nil {
				return err
			}
		}
	}

	content, err := decodeBody(header("Content-Transfer-Encoding"), body)
	if err != nil {
		return fmt.Errorf("%w: decode %s part: %v", domain.ErrUnextractable, mediaType, err)
	}

	filename := partFilename(header)
	disposition, _, _ := mime.ParseMediaType(header("Content-Disposition"))
	isBody := disposition != "attachment" && filename == ""

	switch {
	case isBody && mediaType == "text/plain":
		w.text = append(w.text, plaintext.DecodeText(content))
	case isBody && mediaType == "text/html":
		w.html = append(w.html, html.StripHTML(plaintext.DecodeText(content)))
	case isBody && mediaType == "message/rfc822":
		// Forwarded messages read as body text.
		if inner, err := Parse(content); err == nil && inner.Text != "" {
			w.text = append(w.text, inner.Text)
		}
	case len(content) > 0:
		w.attachments = append(w.attachments, Attachment{
			ID:       strconv.Itoa(len(w.attachments) + 1),
			Filename: filename,
			MIMEType: mediaType,
			Content:  content,
		})
	}
	return nil
}

// decodeBody undoes the transfer encoding. multipart.Reader already
// decodes quoted-printable parts and drops the header.
func decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		clean := strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, string(data))
		return base64.StdEncoding.DecodeString(clean)
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(body))
	default:
		return io.ReadAll(body)
	}
}

func partFilename(header func(string) string) string {
	if _, params, err := mime.ParseMediaType(header("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return decodeHeader(name)
		}
	}
	if _, params, err := mime.ParseMediaType(header("Content-Type")); err == nil {
		if name := params["name"]; name != "" {
			return decodeHeader(name)
		}
	}
	return ""
}

// decodeHeader decodes RFC 2047 encoded headers.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header // Return original if decoding fails
	}
	return decoded
}
