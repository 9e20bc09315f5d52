package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

func TestRegistry_RegisterNewContent(t *testing.T) {
	store := newMockContentStore()
	reg := NewRegistry(store, nil)

	id, err := reg.Register(context.Background(), []byte("HbA1c 6.1 %"), domain.KindFile,
		domain.Provenance{Path: "/docs/lab.txt", Filename: "lab.txt"})
	require.NoError(t, err)

	assert.Equal(t, "file:"+domain.HashContent([]byte("HbA1c 6.1 %")), id)

	item := store.items[id]
	assert.Equal(t, domain.HashContent([]byte("HbA1c 6.1 %")), item.ContentHash)
	assert.Equal(t, "text/plain", item.MIMEType)
	assert.Equal(t, int64(11), item.Size)

	require.Len(t, store.tasks, 1)
	assert.Equal(t, domain.TaskSemanticIndex, store.tasks[0].Type)
	assert.Equal(t, id, store.tasks[0].ContentID)
	assert.Equal(t, domain.TaskPending, store.tasks[0].Status)
}

func TestRegistry_DuplicateHashReturnsExistingID(t *testing.T) {
	store := newMockContentStore()
	reg := NewRegistry(store, nil)
	ctx := context.Background()

	first, err := reg.Register(ctx, []byte("same bytes"), domain.KindMessage, domain.Provenance{MessageID: "m1"})
	require.NoError(t, err)
	second, err := reg.Register(ctx, []byte("same bytes"), domain.KindAttachment,
		domain.Provenance{MessageID: "m2", AttachmentID: "a1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, store.items, 1)
	assert.Len(t, store.tasks, 1)
}

func TestRegistry_EditedFileIsNewItem(t *testing.T) {
	store := newMockContentStore()
	reg := NewRegistry(store, nil)
	ctx := context.Background()
	prov := domain.Provenance{Path: "/notes/a.txt", Filename: "a.txt"}

	first, err := reg.Register(ctx, []byte("version one"), domain.KindFile, prov)
	require.NoError(t, err)
	second, err := reg.Register(ctx, []byte("version two"), domain.KindFile, prov)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "/notes/a.txt", store.items[second].Provenance.Path)
	require.Len(t, store.tasks, 2)
	assert.Equal(t, second, store.tasks[1].ContentID)

	again, err := reg.Register(ctx, []byte("version two"), domain.KindFile, prov)
	require.NoError(t, err)
	assert.Equal(t, second, again)
	assert.Len(t, store.tasks, 2)
}

func TestRegistry_MIMEOverride(t *testing.T) {
	store := newMockContentStore()
	reg := NewRegistry(store, nil)

	id, err := reg.Register(context.Background(), []byte("<p>hi</p>"), domain.KindMessage, domain.Provenance{
		MessageID: "m1",
		Extra:     map[string]string{domain.ExtraMIMEType: "text/html"},
	})
	require.NoError(t, err)
	assert.Equal(t, "text/html", store.items[id].MIMEType)
}

func TestRegistry_ErrorsAreRegistrationErrors(t *testing.T) {
	t.Run("invalid provenance", func(t *testing.T) {
		reg := NewRegistry(newMockContentStore(), nil)
		_, err := reg.Register(context.Background(), []byte("x"), domain.KindAttachment,
			domain.Provenance{MessageID: "m1"})

		var regErr *domain.RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown kind", func(t *testing.T) {
		reg := NewRegistry(newMockContentStore(), nil)
		_, err := reg.Register(context.Background(), []byte("x"), "fax", domain.Provenance{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := newMockContentStore()
		store.err = errors.New("disk full")
		reg := NewRegistry(store, nil)

		_, err := reg.Register(context.Background(), []byte("x"), domain.KindMessage,
			domain.Provenance{MessageID: "m1"})

		var regErr *domain.RegistrationError
		require.ErrorAs(t, err, &regErr)
		assert.Equal(t, "message:m1", regErr.ContentID)
		assert.EqualError(t, errors.Unwrap(err), "disk full")
	})
}

func TestRegistry_GetAndList(t *testing.T) {
	store := newMockContentStore()
	reg := NewRegistry(store, nil)
	ctx := context.Background()

	id, err := reg.Register(ctx, []byte("a"), domain.KindMessage, domain.Provenance{MessageID: "m1"})
	require.NoError(t, err)
	_, err = reg.Register(ctx, []byte("b"), domain.KindFile, domain.Provenance{Path: "/b.txt"})
	require.NoError(t, err)

	item, err := reg.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.KindMessage, item.Kind)

	_, err = reg.Get(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	items, err := reg.List(ctx, domain.ContentFilter{Kind: domain.KindFile})
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
