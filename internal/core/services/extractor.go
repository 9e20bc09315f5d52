package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/core/ports/driving"
)

// Ensure Extractor implements the interface.
var _ driving.EntityExtractor = (*Extractor)(nil)

// Extractor scans indexed chunks with one entity backend and folds the
// mentions into the entity graph.
type Extractor struct {
	content   driven.ContentStore
	mentions  driven.MentionStore
	backend   driven.EntityBackend
	queue     driving.TaskQueue
	factTypes []domain.TaskType
	logger    *slog.Logger
}

// NewExtractor creates an entity extractor for backend. factTypes are the
// fact-builder stages enqueued after each extraction.
func NewExtractor(
	content driven.ContentStore,
	mentions driven.MentionStore,
	backend driven.EntityBackend,
	queue driving.TaskQueue,
	factTypes []domain.TaskType,
	logger *slog.Logger,
) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		content:   content,
		mentions:  mentions,
		backend:   backend,
		queue:     queue,
		factTypes: factTypes,
		logger:    logger.With("component", "extractor"),
	}
}

// Backend returns the active backend name.
func (e *Extractor) Backend() string {
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

// Handle runs an entity_extract task.
func (e *Extractor) Handle(ctx context.Context, task *domain.Task) error {
	if want := task.Backend(); want != "" && want != e.Backend() {
		e.logger.Warn("task queued for another backend; using active backend",
			"task_id", task.TaskID, "queued", want, "active", e.Backend())
	}
	if _, err := e.Extract(ctx, task.ContentID); err != nil {
		return err
	}

	payload := map[string]string{domain.PayloadBackend: e.Backend()}
	for _, t := range e.factTypes {
		if _, err := e.queue.Enqueue(ctx, t, task.ContentID, payload); err != nil {
			return err
		}
	}
	return nil
}

// Extract scans the chunks of contentID the backend has not processed.
func (e *Extractor) Extract(ctx context.Context, contentID string) ([]domain.EntityMention, error) {
	if e.backend == nil {
		return nil, fmt.Errorf("%w: no extraction backend", domain.ErrInvalidInput)
	}
	name := e.backend.Name()

	item, err := e.content.GetContent(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("load content: %w", err)
	}
	chunks, err := e.mentions.PendingChunks(ctx, contentID, name)
	if err != nil {
		return nil, fmt.Errorf("load pending chunks: %w", err)
	}

	var all []domain.EntityMention
	for _, chunk := range chunks {
		candidates, err := e.backend.Scan(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("scan chunk %d with %s: %w", chunk.ChunkIndex, name, err)
		}
		extraction := buildExtraction(item, chunk, name, candidates, time.Now().UTC())
		if err := e.mentions.SaveChunkExtraction(ctx, extraction); err != nil {
			return nil, fmt.Errorf("save chunk %d: %w", chunk.ChunkIndex, err)
		}
		all = append(all, extraction.Mentions...)
	}

	e.logger.Info("entities extracted", "content_id", contentID, "backend", name,
		"chunks", len(chunks), "mentions", len(all))
	return all, nil
}

// PurgeBackend removes every mention produced by backend.
func (e *Extractor) PurgeBackend(ctx context.Context, backend string) (int64, error) {
	if strings.TrimSpace(backend) == "" {
		return 0, fmt.Errorf("%w: backend name required", domain.ErrInvalidInput)
	}
	n, err := e.mentions.PurgeBackend(ctx, backend)
	if err != nil {
		return 0, fmt.Errorf("purge backend %s: %w", backend, err)
	}
	e.logger.Info("backend purged", "backend", backend, "mentions", n)
	return n, nil
}

// buildExtraction turns backend candidates into mentions, entity nodes and
// MENTIONED_IN edges for one chunk.
func buildExtraction(
	item *domain.ContentItem,
	chunk domain.TextChunk,
	backend string,
	candidates []domain.MentionCandidate,
	now time.Time,
) driven.ChunkExtraction {
	contentNode := domain.ContentNodeID(chunk.ContentID)
	ex := driven.ChunkExtraction{
		Backend: backend,
		Chunk:   chunk,
		Entities: []domain.GraphEntity{{
			EntityID:   contentNode,
			Label:      domain.ContentNodeLabel,
			Name:       chunk.ContentID,
			Properties: contentProperties(item),
		}},
	}

	seen := make(map[string]bool)
	entityIndex := make(map[string]int)
	cursor := make(map[string]int)
	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		label := domain.NormaliseLabel(c.Label)
		if text == "" {
			continue
		}
		if label == "" {
			label = "ENTITY"
		}

		start, end, ok := resolveOffsets(chunk.Text, text, c.Start, c.End, cursor[strings.ToLower(text)])
		if !ok {
			continue
		}
		cursor[strings.ToLower(text)] = end

		entityID := domain.EntityID(label, text)
		mentionID := domain.MentionID(chunk.ContentID, chunk.ChunkIndex, start, end, entityID, backend)
		if seen[mentionID] {
			continue
		}
		seen[mentionID] = true

		ex.Mentions = append(ex.Mentions, domain.EntityMention{
			MentionID:  mentionID,
			Backend:    backend,
			ContentID:  chunk.ContentID,
			ChunkIndex: chunk.ChunkIndex,
			EntityID:   entityID,
			Label:      label,
			Text:       text,
			Start:      start,
			End:        end,
			Confidence: c.Confidence,
			Attributes: c.Attributes,
			CreatedAt:  now,
		})

		if i, ok := entityIndex[entityID]; ok {
			ex.Entities[i].Aliases = appendUnique(ex.Entities[i].Aliases, text)
		} else {
			entityIndex[entityID] = len(ex.Entities)
			ex.Entities = append(ex.Entities, domain.GraphEntity{
				EntityID: entityID,
				Label:    label,
				Name:     domain.NormaliseEntityText(text),
				Aliases:  []string{text},
			})
		}

		ex.Relations = append(ex.Relations, domain.GraphRelation{
			RelationID: domain.MentionRelationID(mentionID),
			SourceID:   entityID,
			TargetID:   contentNode,
			Type:       domain.RelationMentionedIn,
			Properties: map[string]string{
				"mention_id":  mentionID,
				"backend":     backend,
				"chunk_index": strconv.Itoa(chunk.ChunkIndex),
			},
		})
	}
	return ex
}

// resolveOffsets returns rune offsets of text inside chunk. Reported offsets
// are kept when they cover the text; otherwise the text is searched for
// case-insensitively from rune offset from, then from the start.
func resolveOffsets(chunk, text string, start, end, from int) (int, int, bool) {
	runes := []rune(chunk)
	if start >= 0 && start < end && end <= len(runes) {
		if strings.Contains(strings.ToLower(string(runes[start:end])), strings.ToLower(text)) {
			return start, end, true
		}
	}

	lowerChunk := []rune(strings.ToLower(chunk))
	lowerText := []rune(strings.ToLower(text))
	if len(lowerChunk) != len(runes) {
		// Case mapping changed the rune count; search the original text.
		lowerChunk, lowerText = runes, []rune(text)
	}
	if idx := runeIndex(lowerChunk, lowerText, from); idx >= 0 {
		return idx, idx + len(lowerText), true
	}
	if from > 0 {
		if idx := runeIndex(lowerChunk, lowerText, 0); idx >= 0 {
			return idx, idx + len(lowerText), true
		}
	}
	return -1, -1, false
}

func runeIndex(haystack, needle []rune, from int) int {
	if len(needle) == 0 || from < 0 {
		return -1
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func contentProperties(item *domain.ContentItem) map[string]string {
	if item == nil {
		return nil
	}
	props := map[string]string{"content_type": string(item.Kind)}
	p := item.Provenance
	for k, v := range map[string]string{
		"message_id":    p.MessageID,
		"attachment_id": p.AttachmentID,
		"filename":      p.Filename,
		"subject":       p.Subject,
		"path":          p.Path,
		"mime_type":     item.MIMEType,
	} {
		if v != "" {
			props[k] = v
		}
	}
	return props
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
