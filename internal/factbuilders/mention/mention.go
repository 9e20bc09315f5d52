// Package mention holds the helpers shared by the fact builders: grouping
// mentions by chunk, proximity matching and value parsing.
package mention

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// Group is the mentions of one chunk, ordered by start offset.
type Group struct {
	ChunkIndex int
	Mentions   []domain.EntityMention
}

// GroupByChunk splits mentions per chunk. Groups are ordered by chunk
// index and mentions by start offset, then mention id.
func GroupByChunk(mentions []domain.EntityMention) []Group {
	byChunk := make(map[int][]domain.EntityMention)
	for _, m := range mentions {
		byChunk[m.ChunkIndex] = append(byChunk[m.ChunkIndex], m)
	}

	groups := make([]Group, 0, len(byChunk))
	for idx, ms := range byChunk {
		sort.SliceStable(ms, func(i, j int) bool {
			if ms[i].Start != ms[j].Start {
				return ms[i].Start < ms[j].Start
			}
			return ms[i].MentionID < ms[j].MentionID
		})
		groups = append(groups, Group{ChunkIndex: idx, Mentions: ms})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ChunkIndex < groups[j].ChunkIndex })
	return groups
}

// Labels is a set of normalised mention labels.
type Labels map[string]struct{}

// NewLabels builds a label set.
func NewLabels(labels ...string) Labels {
	set := make(Labels, len(labels))
	for _, l := range labels {
		set[domain.NormaliseLabel(l)] = struct{}{}
	}
	return set
}

// Has reports whether label is in the set, ignoring case.
func (l Labels) Has(label string) bool {
	_, ok := l[domain.NormaliseLabel(label)]
	return ok
}

// Slice returns the labels sorted.
func (l Labels) Slice() []string {
	out := make([]string, 0, len(l))
	for label := range l {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Filter returns the mentions whose label is in labels, in order.
func (g Group) Filter(labels Labels) []domain.EntityMention {
	var out []domain.EntityMention
	for _, m := range g.Mentions {
		if labels.Has(m.Label) {
			out = append(out, m)
		}
	}
	return out
}

// Distance is the gap in runes between two mentions, zero when they touch
// or overlap. Mentions without offsets are infinitely far apart.
func Distance(a, b domain.EntityMention) int {
	if a.Start < 0 || b.Start < 0 {
		return math.MaxInt
	}
	return min(abs(a.Start-b.End), abs(b.Start-a.End))
}

// Nearest returns the option closest to target. Ties go to the earlier
// option.
func Nearest(target domain.EntityMention, options []domain.EntityMention) (domain.EntityMention, bool) {
	best := -1
	bestDistance := math.MaxInt
	for i, o := range options {
		if d := Distance(target, o); best < 0 || d < bestDistance {
			best, bestDistance = i, d
		}
	}
	if best < 0 {
		return domain.EntityMention{}, false
	}
	return options[best], true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)*`)

// ParseNumber returns the first number in s. Commas are treated as
// thousands separators, so "1,500.50" is 1500.5.
func ParseNumber(s string) *float64 {
	match := numberPattern.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// NormaliseDate parses the common day-first layouts into YYYY-MM-DD.
// It returns "" when s matches none of them.
func NormaliseDate(s string) string {
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".,"))
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// Provenance builds the provenance of a row derived from mentions of one
// chunk. Mentions with an empty id are skipped.
func Provenance(item *domain.ContentItem, backend string, chunk int, mentions ...domain.EntityMention) domain.FactProvenance {
	p := domain.FactProvenance{
		ChunkIndex: chunk,
		Backend:    backend,
	}
	if item != nil {
		p.ContentID = item.ContentID
		p.Filename = item.Provenance.Filename
		p.MessageID = item.Provenance.MessageID
		p.AttachmentID = item.Provenance.AttachmentID
	}
	seen := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		if m.MentionID == "" || seen[m.MentionID] {
			continue
		}
		seen[m.MentionID] = true
		p.MentionIDs = append(p.MentionIDs, m.MentionID)
	}
	return p
}
