package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

func newIngestFixture(files *mockFileSource) (*Ingestor, *mockContentStore) {
	store := newMockContentStore()
	return NewIngestor(NewRegistry(store, nil), store, files, nil), store
}

func TestIngestor_IngestPathCountsDuplicates(t *testing.T) {
	files := &mockFileSource{docs: []domain.RawDocument{
		{URI: "/docs/a.txt", Filename: "a.txt", Content: []byte("alpha")},
		{URI: "/docs/b.md", Filename: "b.md", MIMEType: "text/markdown", Content: []byte("# beta")},
		{URI: "/docs/copy-of-a.txt", Content: []byte("alpha")},
	}}
	g, store := newIngestFixture(files)
	ctx := context.Background()

	summary, err := g.IngestPath(ctx, "/docs")
	require.NoError(t, err)
	assert.Equal(t, driving.IngestSummary{Seen: 3, Registered: 2, Duplicates: 1}, summary)

	id, _ := domain.BuildContentID(domain.KindFile, domain.Provenance{Path: "/docs/b.md"},
		domain.HashContent([]byte("# beta")))
	item := store.items[id]
	assert.Equal(t, "text/markdown", item.MIMEType)
	assert.Equal(t, SourceLocal, item.Provenance.Source)
	assert.Equal(t, "b.md", item.Provenance.Filename)

	// A rescan registers nothing new.
	summary, err = g.IngestPath(ctx, "/docs")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Registered)
	assert.Equal(t, 3, summary.Duplicates)
}

func TestIngestor_RescanRegistersEditedFile(t *testing.T) {
	files := &mockFileSource{docs: []domain.RawDocument{
		{URI: "/docs/notes.txt", Filename: "notes.txt", Content: []byte("version one")},
	}}
	g, store := newIngestFixture(files)
	ctx := context.Background()

	_, err := g.IngestPath(ctx, "/docs")
	require.NoError(t, err)

	files.docs[0].Content = []byte("version two")
	summary, err := g.IngestPath(ctx, "/docs")
	require.NoError(t, err)
	assert.Equal(t, driving.IngestSummary{Seen: 1, Registered: 1}, summary)
	assert.Len(t, store.items, 2)
}

func TestIngestor_IngestPathCountsErrors(t *testing.T) {
	files := &mockFileSource{docs: []domain.RawDocument{{URI: "/docs/a.txt", Content: []byte("a")}}}
	g, store := newIngestFixture(files)
	store.err = errors.New("disk full")

	summary, err := g.IngestPath(context.Background(), "/docs")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
}

func TestIngestor_WalkFailure(t *testing.T) {
	g, _ := newIngestFixture(&mockFileSource{walkErr: errors.New("no such directory")})
	_, err := g.IngestPath(context.Background(), "/missing")
	assert.ErrorContains(t, err, "no such directory")
}

func TestIngestor_IngestMessage(t *testing.T) {
	g, store := newIngestFixture(nil)

	summary, err := g.IngestMessage(context.Background(), driving.Message{
		MessageID: "18c2",
		Subject:   "Your lab report",
		Source:    "gmail",
		Body:      []byte("<p>Report attached</p>"),
		BodyMIME:  "text/html",
		Attachments: []driving.Attachment{
			{AttachmentID: "att-1", Filename: "report.pdf", MIMEType: "application/pdf", Content: []byte("%PDF-1.4")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Registered)

	body := store.items["message:18c2"]
	assert.Equal(t, "text/html", body.MIMEType)
	assert.Equal(t, "Your lab report", body.Provenance.Subject)

	att := store.items["attachment:18c2:att-1"]
	assert.Equal(t, "application/pdf", att.MIMEType)
	assert.Equal(t, "report.pdf", att.Provenance.Filename)

	_, err = g.IngestMessage(context.Background(), driving.Message{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestor_Watch(t *testing.T) {
	changes := make(chan domain.RawDocumentChange, 3)
	g, store := newIngestFixture(&mockFileSource{changes: changes})

	changes <- domain.RawDocumentChange{Type: domain.ChangeCreated,
		Document: domain.RawDocument{URI: "/docs/new.txt", Content: []byte("new")}}
	changes <- domain.RawDocumentChange{Type: domain.ChangeDeleted,
		Document: domain.RawDocument{URI: "/docs/old.txt"}}
	close(changes)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Watch(ctx, []string{"/docs"}))
	assert.Len(t, store.items, 1)
}

func TestIngestor_NoFileSource(t *testing.T) {
	g, _ := newIngestFixture(nil)
	_, err := g.IngestPath(context.Background(), "/docs")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, g.Watch(context.Background(), nil), domain.ErrInvalidInput)
}
