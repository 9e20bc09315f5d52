package domain

// RawDocument is the input to text extraction: raw bytes plus the little
// context a normaliser needs to interpret them.
type RawDocument struct {
	// ContentID links to the registered content item, when known.
	ContentID string

	// URI is the original location (file path, message id, etc).
	URI string

	// Filename is the display name, used for titles.
	Filename string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains collaborator-specific key-value pairs.
	Metadata map[string]string
}

// ChangeType represents the type of file change seen by a watcher.
type ChangeType int

const (
	// ChangeCreated indicates a new file.
	ChangeCreated ChangeType = iota

	// ChangeUpdated indicates a modified file.
	ChangeUpdated

	// ChangeDeleted indicates a removed file.
	ChangeDeleted
)

// String returns the lower-case change name.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// RawDocumentChange represents a change event from a file source.
type RawDocumentChange struct {
	Type     ChangeType
	Document RawDocument
}
