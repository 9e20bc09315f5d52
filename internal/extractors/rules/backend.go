// Package rules is a deterministic entity backend built from regular
// expressions and term dictionaries. It needs no model or network access
// and produces identical mentions for identical text.
package rules

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
)

// Ensure Backend implements the interface.
var _ driven.EntityBackend = (*Backend)(nil)

// DefaultRuleset covers dates, lab, financial and medical entities.
const DefaultRuleset = "default"

// Backend scans chunks with one named ruleset.
type Backend struct {
	ruleset string
	rules   []Rule
}

// New creates a backend for ruleset. An empty name selects DefaultRuleset.
func New(ruleset string) (*Backend, error) {
	if ruleset == "" {
		ruleset = DefaultRuleset
	}
	rules, ok := rulesets[ruleset]
	if !ok {
		return nil, fmt.Errorf("%w: ruleset %q", domain.ErrUnsupportedType, ruleset)
	}
	return &Backend{ruleset: ruleset, rules: rules}, nil
}

// NewWithRules creates a backend from custom rules.
func NewWithRules(name string, rules []Rule) *Backend {
	return &Backend{ruleset: name, rules: rules}
}

// Rulesets returns the built-in ruleset names, sorted.
func Rulesets() []string {
	names := make([]string, 0, len(rulesets))
	for name := range rulesets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns "rules:<ruleset>".
func (b *Backend) Name() string {
	return "rules:" + b.ruleset
}

type match struct {
	rule       int
	start, end int // byte offsets
	candidate  domain.MentionCandidate
}

// Scan returns non-overlapping mentions in text order. Overlaps resolve to
// the earliest start, then the longest span, then the earlier rule.
func (b *Backend) Scan(ctx context.Context, chunk domain.TextChunk) ([]domain.MentionCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := chunk.Text

	var matches []match
	for i, rule := range b.rules {
		for _, loc := range rule.Pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*rule.Group], loc[2*rule.Group+1]
			if start < 0 {
				continue
			}
			raw := text[start:end]
			trimmed := strings.TrimSpace(raw)
			if trimmed == "" {
				continue
			}
			start += strings.Index(raw, trimmed)
			end = start + len(trimmed)

			var attrs map[string]string
			if rule.Attributes != nil {
				attrs = rule.Attributes(submatches(text, loc))
			}
			matches = append(matches, match{
				rule:  i,
				start: start,
				end:   end,
				candidate: domain.MentionCandidate{
					Label:      rule.Label,
					Text:       trimmed,
					Confidence: rule.Confidence,
					Attributes: attrs,
				},
			})
		}
	}

	slices.SortStableFunc(matches, func(a, b match) int {
		if a.start != b.start {
			return a.start - b.start
		}
		if la, lb := a.end-a.start, b.end-b.start; la != lb {
			return lb - la
		}
		return a.rule - b.rule
	})

	candidates := make([]domain.MentionCandidate, 0, len(matches))
	lastEnd := 0
	for _, m := range matches {
		if m.start < lastEnd {
			continue
		}
		lastEnd = m.end
		c := m.candidate
		c.Start = utf8.RuneCountInString(text[:m.start])
		c.End = c.Start + utf8.RuneCountInString(text[m.start:m.end])
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}
