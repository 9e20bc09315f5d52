package driving

import (
	"context"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// IngestSummary reports an ingestion pass.
type IngestSummary struct {
	Seen       int
	Registered int
	Duplicates int
	Errors     int
}

// Attachment is one attachment of an ingested message.
type Attachment struct {
	AttachmentID string
	Filename     string
	MIMEType     string
	Content      []byte
}

// Message is an email handed over by an ingestion collaborator.
type Message struct {
	MessageID   string
	Subject     string
	Source      string
	Body        []byte
	BodyMIME    string
	Attachments []Attachment
}

// Ingestor feeds external content into the registry.
type Ingestor interface {
	// IngestPath registers every file under root.
	IngestPath(ctx context.Context, root string) (IngestSummary, error)

	// IngestMessage registers a message body and its attachments.
	IngestMessage(ctx context.Context, msg Message) (IngestSummary, error)

	// Watch registers files as they change under roots until ctx ends.
	Watch(ctx context.Context, roots []string) error

	// IngestRaw registers one raw document as a local file.
	IngestRaw(ctx context.Context, doc domain.RawDocument) (string, error)
}
