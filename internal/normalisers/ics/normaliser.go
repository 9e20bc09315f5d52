// Package ics renders iCalendar files, typically invitations attached to
// email, as readable event text.
package ics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles iCalendar documents.
type Normaliser struct{}

// New creates a new iCalendar normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/calendar"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser
}

type property struct {
	name   string
	params map[string]string
	value  string
}

type event struct {
	summary     string
	description string
	location    string
	start       string
	end         string
	organizer   string
	attendees   []string
	status      string
}

// Normalise renders every VEVENT as a block of labelled lines on one page.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	var (
		events  []event
		current *event
		calName string
	)
	for _, line := range unfold(plaintext.DecodeText(raw.Content)) {
		prop, ok := parseProperty(line)
		if !ok {
			continue
		}
		switch {
		case prop.name == "BEGIN" && strings.EqualFold(prop.value, "VEVENT"):
			current = &event{}
		case prop.name == "END" && strings.EqualFold(prop.value, "VEVENT"):
			if current != nil {
				events = append(events, *current)
				current = nil
			}
		case current != nil:
			current.apply(prop)
		case prop.name == "X-WR-CALNAME":
			calName = decodeValue(prop.value)
		}
	}

	blocks := make([]string, 0, len(events))
	for _, ev := range events {
		if b := ev.render(); b != "" {
			blocks = append(blocks, b)
		}
	}

	return &driven.NormaliseResult{
		Title: titleFor(events, calName, raw),
		Pages: []string{strings.Join(blocks, "\n\n")},
	}, nil
}

func (e *event) apply(p property) {
	switch p.name {
	case "SUMMARY":
		e.summary = decodeValue(p.value)
	case "DESCRIPTION":
		e.description = decodeValue(p.value)
	case "LOCATION":
		e.location = decodeValue(p.value)
	case "DTSTART":
		e.start = formatDateTime(p.value)
	case "DTEND":
		e.end = formatDateTime(p.value)
	case "STATUS":
		e.status = strings.ToLower(p.value)
	case "ORGANIZER":
		e.organizer = person(p)
	case "ATTENDEE":
		if who := person(p); who != "" {
			e.attendees = append(e.attendees, who)
		}
	}
}

func (e *event) render() string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}

	line("Event", e.summary)
	when := e.start
	if e.end != "" && e.end != e.start {
		when += " - " + e.end
	}
	line("When", when)
	line("Location", e.location)
	line("Status", e.status)
	line("Organizer", e.organizer)
	line("Attendees", strings.Join(e.attendees, ", "))
	if e.description != "" {
		b.WriteString(e.description)
	}
	return strings.TrimSpace(b.String())
}

func titleFor(events []event, calName string, raw *domain.RawDocument) string {
	if len(events) > 0 && events[0].summary != "" {
		if len(events) > 1 {
			return events[0].summary + " (and more)"
		}
		return events[0].summary
	}
	if calName != "" {
		return calName
	}
	return plaintext.TitleFor(raw)
}

// unfold joins continuation lines, which start with a space or tab.
func unfold(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if len(lines) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// parseProperty splits NAME;PARAM=V:VALUE. Quoted parameter values may
// contain colons.
func parseProperty(line string) (property, bool) {
	inQuote := false
	colon := -1
	for i, r := range line {
		if r == '"' {
			inQuote = !inQuote
		}
		if r == ':' && !inQuote {
			colon = i
			break
		}
	}
	if colon <= 0 {
		return property{}, false
	}

	head := strings.Split(line[:colon], ";")
	prop := property{
		name:  strings.ToUpper(strings.TrimSpace(head[0])),
		value: strings.TrimSpace(line[colon+1:]),
	}
	for _, param := range head[1:] {
		k, v, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		if prop.params == nil {
			prop.params = make(map[string]string)
		}
		prop.params[strings.ToUpper(k)] = strings.Trim(v, `"`)
	}
	return prop, true
}

// decodeValue reverses iCalendar text escaping.
func decodeValue(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// formatDateTime renders DATE and DATE-TIME values. Unknown formats are
// returned unchanged.
func formatDateTime(value string) string {
	if t, err := time.Parse("20060102", value); err == nil {
		return t.Format("January 2, 2006")
	}
	v := strings.TrimSuffix(value, "Z")
	if t, err := time.Parse("20060102T150405", v); err == nil {
		return t.Format("January 2, 2006 at 3:04 PM")
	}
	return value
}

// person formats an ORGANIZER or ATTENDEE as "Name <email>" when a common
// name is given.
func person(p property) string {
	email := extractEmail(p.value)
	name := decodeValue(p.params["CN"])
	switch {
	case name != "" && email != "" && name != email:
		return name + " <" + email + ">"
	case email != "":
		return email
	default:
		return name
	}
}

func extractEmail(value string) string {
	if len(value) >= 7 && strings.EqualFold(value[:7], "mailto:") {
		value = value[7:]
	}
	if !strings.Contains(value, "@") || strings.ContainsAny(value, " \t") {
		return ""
	}
	return value
}
