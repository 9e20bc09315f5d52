package domain

import (
	"crypto/sha1" //nolint:gosec // identifiers only
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// RelationMentionedIn links an entity node to the content node it appears in.
const RelationMentionedIn = "MENTIONED_IN"

// ContentNodeLabel is the graph label of content nodes.
const ContentNodeLabel = "Content"

// MentionCandidate is what a backend reports for one chunk.
// Start and End are rune offsets into the chunk text; -1 means unknown.
type MentionCandidate struct {
	Label      string
	Text       string
	Start      int
	End        int
	Confidence float64
	Attributes map[string]string
}

// EntityMention is one persisted occurrence of an entity inside a chunk.
type EntityMention struct {
	MentionID  string
	Backend    string
	ContentID  string
	ChunkIndex int
	EntityID   string
	Label      string
	Text       string
	Start      int
	End        int
	Confidence float64
	Attributes map[string]string
	CreatedAt  time.Time
}

// GraphEntity is a deduplicated entity node.
type GraphEntity struct {
	EntityID   string
	Label      string
	Name       string
	Aliases    []string
	Properties map[string]string
}

// GraphRelation is a typed edge between two nodes.
type GraphRelation struct {
	RelationID string
	SourceID   string
	TargetID   string
	Type       string
	Properties map[string]string
}

// NormaliseLabel upper-cases a label and replaces separators with underscores.
func NormaliseLabel(label string) string {
	label = strings.TrimSpace(strings.ToUpper(label))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '_'
		}
		return r
	}, label)
}

// NormaliseEntityText lower-cases text, collapses whitespace and trims
// surrounding punctuation. Two mentions with the same label and normalised
// text refer to the same entity.
func NormaliseEntityText(text string) string {
	text = strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) && r != '%'
	})
}

// EntityID returns the stable node id for a label and surface text.
func EntityID(label, text string) string {
	label = NormaliseLabel(label)
	digest := sha1Hex(label + ":" + NormaliseEntityText(text))
	return label + ":" + digest[:16]
}

// MentionID returns the stable id of a mention.
func MentionID(contentID string, chunkIndex, start, end int, entityID, backend string) string {
	return sha1Hex(fmt.Sprintf("%s:%d:%d:%d:%s:%s", contentID, chunkIndex, start, end, entityID, backend))
}

// MentionRelationID returns the id of the MENTIONED_IN edge for a mention.
func MentionRelationID(mentionID string) string {
	return "mention:" + mentionID
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // identifiers only
	return hex.EncodeToString(sum[:])
}

// FactKey hashes natural key parts into a fact row id.
func FactKey(parts ...string) string {
	return sha1Hex(strings.Join(parts, ":"))
}
