// Package medical builds diagnosis, medication, procedure and related
// events from clinical mentions.
package medical

import (
	"context"
	"fmt"
	"strconv"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/factbuilders/mention"
)

// Ensure Builder implements the interface.
var _ driven.FactBuilder = (*Builder)(nil)

var (
	eventLabels     = mention.NewLabels("DIAGNOSIS", "MEDICATION", "PRESCRIPTION", "PROCEDURE", "TREATMENT", "TEST")
	patientLabels   = mention.NewLabels("PATIENT", "PERSON", "NAME")
	clinicianLabels = mention.NewLabels("CLINICIAN", "DOCTOR", "PHYSICIAN")
	facilityLabels  = mention.NewLabels("FACILITY", "ORGANIZATION", "HOSPITAL")
	dateLabels      = mention.NewLabels("DATE", "APPOINTMENT", "SCHEDULE")
	dosageLabels    = mention.NewLabels("DOSAGE", "FREQUENCY")
)

// Builder emits one MedicalEvent per event mention, with the people,
// place, date and dosage nearest to it.
type Builder struct{}

// New creates a medical event builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) TaskType() domain.TaskType {
	return domain.TaskMedicalEvents
}

func (b *Builder) Labels() []string {
	all := mention.NewLabels()
	for _, set := range []mention.Labels{
		eventLabels, patientLabels, clinicianLabels, facilityLabels, dateLabels, dosageLabels,
	} {
		for l := range set {
			all[l] = struct{}{}
		}
	}
	return all.Slice()
}

func (b *Builder) Build(ctx context.Context, input domain.FactInput) ([]domain.FactRow, error) {
	if input.Item == nil || input.Item.ContentID == "" {
		return nil, fmt.Errorf("%w: medical events need a content item", domain.ErrInvalidInput)
	}

	var rows []domain.FactRow
	for _, group := range mention.GroupByChunk(input.Mentions) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		events := group.Filter(eventLabels)
		if len(events) == 0 {
			continue
		}
		patients := group.Filter(patientLabels)
		clinicians := group.Filter(clinicianLabels)
		facilities := group.Filter(facilityLabels)
		dates := group.Filter(dateLabels)
		dosages := group.Filter(dosageLabels)

		for _, ev := range events {
			used := []domain.EntityMention{ev}
			e := domain.MedicalEvent{
				EventType:   domain.NormaliseLabel(ev.Label),
				Description: ev.Text,
				Attributes:  make(map[string]string, len(ev.Attributes)+1),
			}
			for k, v := range ev.Attributes {
				e.Attributes[k] = v
			}

			if dosage, ok := mention.Nearest(ev, dosages); ok {
				used = append(used, dosage)
				if _, set := e.Attributes["dosage"]; !set {
					e.Attributes["dosage"] = dosage.Text
				}
				for k, v := range dosage.Attributes {
					if _, set := e.Attributes["dosage_"+k]; !set {
						e.Attributes["dosage_"+k] = v
					}
				}
			}
			if p, ok := mention.Nearest(ev, patients); ok {
				used = append(used, p)
				e.Patient = p.Text
			}
			if c, ok := mention.Nearest(ev, clinicians); ok {
				used = append(used, c)
				e.Clinician = c.Text
			}
			if f, ok := mention.Nearest(ev, facilities); ok {
				used = append(used, f)
				e.Facility = f.Text
			}
			if d, ok := mention.Nearest(ev, dates); ok {
				used = append(used, d)
				e.DateRaw = d.Text
				e.DateParsed = mention.NormaliseDate(d.Text)
			}
			if len(e.Attributes) == 0 {
				e.Attributes = nil
			}

			e.Provenance = mention.Provenance(input.Item, input.Backend, group.ChunkIndex, used...)
			if err := e.Provenance.Validate(); err != nil {
				return nil, err
			}
			e.EventID = domain.FactKey(input.Item.ContentID, strconv.Itoa(group.ChunkIndex), input.Backend, ev.EntityID)
			rows = append(rows, e)
		}
	}
	return rows, nil
}
