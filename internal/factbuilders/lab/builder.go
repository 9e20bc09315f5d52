// Package lab builds lab results from measurement mentions.
package lab

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/factbuilders/mention"
)

// Ensure Builder implements the interface.
var _ driven.FactBuilder = (*Builder)(nil)

var (
	measurementLabels = mention.NewLabels("MEASUREMENT", "VALUE")
	testLabels        = mention.NewLabels("LAB_TEST", "TEST")
	referenceLabels   = mention.NewLabels("REFERENCE_RANGE")
	dateLabels        = mention.NewLabels("DATE")
	patientLabels     = mention.NewLabels("PATIENT", "PERSON", "NAME")
)

// Builder pairs each measurement with the nearest test, reference range
// and date in the same chunk.
type Builder struct{}

// New creates a lab result builder.
func New() *Builder {
	return &Builder{}
}

// TaskType returns domain.TaskLabResults.
func (b *Builder) TaskType() domain.TaskType {
	return domain.TaskLabResults
}

// Labels returns the mention labels the builder reads.
func (b *Builder) Labels() []string {
	all := mention.NewLabels()
	for _, set := range []mention.Labels{measurementLabels, testLabels, referenceLabels, dateLabels, patientLabels} {
		for l := range set {
			all[l] = struct{}{}
		}
	}
	return all.Slice()
}

// Build returns one LabResult per measurement mention.
func (b *Builder) Build(ctx context.Context, input domain.FactInput) ([]domain.FactRow, error) {
	if input.Item == nil || input.Item.ContentID == "" {
		return nil, fmt.Errorf("%w: lab results need a content item", domain.ErrInvalidInput)
	}

	var rows []domain.FactRow
	for _, group := range mention.GroupByChunk(input.Mentions) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		measurements := group.Filter(measurementLabels)
		if len(measurements) == 0 {
			continue
		}
		tests := group.Filter(testLabels)
		references := group.Filter(referenceLabels)
		dates := group.Filter(dateLabels)
		patients := group.Filter(patientLabels)

		for _, m := range measurements {
			row := b.result(input, group.ChunkIndex, m, tests, references, dates, patients)
			if err := row.Provenance.Validate(); err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (b *Builder) result(
	input domain.FactInput,
	chunk int,
	measurement domain.EntityMention,
	tests, references, dates, patients []domain.EntityMention,
) domain.LabResult {
	used := []domain.EntityMention{measurement}
	r := domain.LabResult{
		MeasurementEntityID: measurement.EntityID,
		MeasurementText:     measurement.Text,
	}

	valueText := measurement.Text
	if v := measurement.Attributes["value"]; v != "" {
		valueText = v
	}
	r.MeasurementValue = mention.ParseNumber(valueText)
	r.MeasurementUnits = measurement.Attributes["units"]
	if r.MeasurementUnits == "" {
		r.MeasurementUnits = trailingUnit(measurement.Text)
	}

	if test, ok := mention.Nearest(measurement, tests); ok {
		used = append(used, test)
		r.TestEntityID = test.EntityID
		r.TestName = test.Text
	}
	if ref, ok := mention.Nearest(measurement, references); ok {
		used = append(used, ref)
		r.ReferenceEntityID = ref.EntityID
		r.ReferenceRange = ref.Text
		if rng := ref.Attributes["range"]; rng != "" {
			r.ReferenceRange = rng
		}
	}
	if date, ok := mention.Nearest(measurement, dates); ok {
		used = append(used, date)
		r.DateRaw = date.Text
		r.DateParsed = mention.NormaliseDate(date.Text)
	}
	if len(patients) > 0 {
		used = append(used, patients[0])
		r.Patient = patients[0].Text
	}

	r.Provenance = mention.Provenance(input.Item, input.Backend, chunk, used...)
	r.ResultID = domain.FactKey(
		input.Item.ContentID,
		strconv.Itoa(chunk),
		input.Backend,
		r.TestEntityID,
		r.MeasurementEntityID,
	)
	return r
}

// trailingUnit returns the last token of "6.1 %" or "95 mg/dL" style text.
func trailingUnit(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	unit := fields[len(fields)-1]
	if mention.ParseNumber(unit) != nil && strings.IndexFunc(unit, isLetterOrPercent) < 0 {
		return ""
	}
	return unit
}

func isLetterOrPercent(r rune) bool {
	return r == '%' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == 'µ'
}
