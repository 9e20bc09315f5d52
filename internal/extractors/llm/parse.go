package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

// entity is one element of the model's JSON answer. Models vary in the key
// names they use, so a few aliases are accepted.
type entity struct {
	Text       string         `json:"text"`
	Span       string         `json:"span"`
	Label      string         `json:"label"`
	Type       string         `json:"type"`
	Start      *int           `json:"start"`
	End        *int           `json:"end"`
	Confidence *float64       `json:"confidence"`
	Attributes map[string]any `json:"attributes"`
}

var errNoJSON = errors.New("no JSON value in output")

// parseEntities accepts a JSON array, an object with an "entities" array or
// a single entity object. Markdown fences and surrounding prose are
// ignored. An empty response means no entities.
func parseEntities(output string) ([]entity, error) {
	cleaned := stripFences(output)
	if cleaned == "" {
		return nil, nil
	}

	cleaned, err := extractJSON(cleaned)
	if err != nil {
		return nil, err
	}
	cleaned = repairJSON(cleaned)

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}

	switch cleaned[0] {
	case '[':
		var list []entity
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode entity list: %w", err)
		}
		return list, nil
	default:
		var wrapper struct {
			Entities *[]entity `json:"entities"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Entities != nil {
			return *wrapper.Entities, nil
		}
		var single entity
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("decode entity: %w", err)
		}
		return []entity{single}, nil
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimLeft(s, " ")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSON returns the outermost array or object in s.
func extractJSON(s string) (string, error) {
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", errNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}

// repairJSON fixes the most common model mistakes: trailing commas before a
// closing bracket and keys missing their opening quote.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)
	inString := false

	for i := 0; i < len(in); i++ {
		ch := in[i]
		if inString {
			out = append(out, ch)
			if ch == '\\' && i+1 < len(in) {
				i++
				out = append(out, in[i])
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			out = append(out, ch)
		case ',':
			j := i + 1
			for j < len(in) && isSpace(in[j]) {
				j++
			}
			if j < len(in) && (in[j] == ']' || in[j] == '}') {
				continue
			}
			out = append(out, ch)
			out, i = quoteKey(in, out, i)
		case '{':
			out = append(out, ch)
			out, i = quoteKey(in, out, i)
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

// quoteKey copies whitespace after position i and, when it is followed by
// a bare word and `":`, adds the missing opening quote.
func quoteKey(in, out []rune, i int) ([]rune, int) {
	j := i + 1
	for j < len(in) && isSpace(in[j]) {
		out = append(out, in[j])
		j++
	}
	k := j
	for k < len(in) && (isLetter(in[k]) || in[k] == '_') {
		k++
	}
	if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
		out = append(out, '"')
		out = append(out, in[j:k]...)
		out = append(out, '"')
		return out, k
	}
	return out, j - 1
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// toCandidates converts parsed entities. Entities without text are
// dropped; missing offsets are reported as -1 for later recovery.
func toCandidates(entities []entity) []domain.MentionCandidate {
	out := make([]domain.MentionCandidate, 0, len(entities))
	for _, e := range entities {
		text := strings.TrimSpace(e.Text)
		if text == "" {
			text = strings.TrimSpace(e.Span)
		}
		if text == "" {
			continue
		}
		label := strings.TrimSpace(e.Label)
		if label == "" {
			label = strings.TrimSpace(e.Type)
		}
		if label == "" {
			label = "ENTITY"
		}

		c := domain.MentionCandidate{
			Label:      label,
			Text:       text,
			Start:      -1,
			End:        -1,
			Confidence: 1,
			Attributes: stringify(e.Attributes),
		}
		if e.Start != nil && e.End != nil {
			c.Start, c.End = *e.Start, *e.End
		}
		if e.Confidence != nil {
			c.Confidence = *e.Confidence
		}
		out = append(out, c)
	}
	return out
}

func stringify(attrs map[string]any) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			b, err := json.Marshal(t)
			if err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}
