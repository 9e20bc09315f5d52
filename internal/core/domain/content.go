package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ContentKind is the namespace of a content identifier.
type ContentKind string

// Supported content kinds.
const (
	KindMessage    ContentKind = "message"
	KindAttachment ContentKind = "attachment"
	KindFile       ContentKind = "file"
)

// Valid reports whether k is a known kind.
func (k ContentKind) Valid() bool {
	switch k {
	case KindMessage, KindAttachment, KindFile:
		return true
	}
	return false
}

// Provenance records where a content item came from.
type Provenance struct {
	// Source names the ingestion collaborator (e.g. "gmail", "local").
	Source string `json:"source,omitempty"`

	// MessageID is the parent message for messages and attachments.
	MessageID string `json:"message_id,omitempty"`

	// AttachmentID identifies an attachment within its message.
	AttachmentID string `json:"attachment_id,omitempty"`

	// Path is the absolute path for local files.
	Path string `json:"path,omitempty"`

	// Filename is the display filename, used in fact provenance.
	Filename string `json:"filename,omitempty"`

	// Subject is the message subject, if any.
	Subject string `json:"subject,omitempty"`

	// Extra holds collaborator-specific fields.
	Extra map[string]string `json:"extra,omitempty"`
}

// ContentItem is one deduplicated ingestible unit.
// Items are immutable once registered.
type ContentItem struct {
	ContentID   string
	Kind        ContentKind
	ContentHash string
	MIMEType    string
	Size        int64
	Provenance  Provenance
	CreatedAt   time.Time
}

// ContentFilter narrows content listings.
type ContentFilter struct {
	Kind  ContentKind
	Limit int
}

// HashContent returns the hex sha256 digest used as the dedup key.
func HashContent(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// BuildContentID derives the namespaced content identifier for kind.
// contentHash is the HashContent digest of the raw bytes.
//
//	message:<message_id>
//	attachment:<message_id>:<attachment_id>
//	file:<content hash>
//
// File ids follow the bytes, not the path: an edited file is a new item and
// its path stays in the provenance.
func BuildContentID(kind ContentKind, p Provenance, contentHash string) (string, error) {
	switch kind {
	case KindMessage:
		if p.MessageID == "" {
			return "", fmt.Errorf("%w: message id required", ErrInvalidInput)
		}
		return "message:" + p.MessageID, nil
	case KindAttachment:
		if p.MessageID == "" || p.AttachmentID == "" {
			return "", fmt.Errorf("%w: message and attachment id required", ErrInvalidInput)
		}
		return "attachment:" + p.MessageID + ":" + p.AttachmentID, nil
	case KindFile:
		if p.Path == "" {
			return "", fmt.Errorf("%w: file path required", ErrInvalidInput)
		}
		if contentHash == "" {
			return "", fmt.Errorf("%w: content hash required", ErrInvalidInput)
		}
		return "file:" + contentHash, nil
	default:
		return "", fmt.Errorf("%w: unknown content kind %q", ErrInvalidInput, kind)
	}
}

// ContentNodeID is the graph node id of a content item.
func ContentNodeID(contentID string) string {
	return "content:" + contentID
}

// KindOf returns the kind prefix of a content id.
func KindOf(contentID string) ContentKind {
	prefix, _, _ := strings.Cut(contentID, ":")
	return ContentKind(prefix)
}
