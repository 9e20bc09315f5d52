// Package factbuilders reduces entity mentions into domain fact rows.
//
// Each sub-package implements driven.FactBuilder for one domain:
//
//	lab        lab_results        measurements paired with tests and ranges
//	financial  financial_records  amounts with counterparty and reference
//	medical    medical_events     diagnoses, medications and procedures
//
// Builders are pure. They read the mentions of one content item and one
// backend, associate mentions within a chunk by proximity, and return rows
// keyed by a natural key so reruns converge.
package factbuilders

import (
	"fmt"

	"github.com/custodia-labs/jarvis/internal/core/domain"
	"github.com/custodia-labs/jarvis/internal/core/ports/driven"
	"github.com/custodia-labs/jarvis/internal/factbuilders/financial"
	"github.com/custodia-labs/jarvis/internal/factbuilders/lab"
	"github.com/custodia-labs/jarvis/internal/factbuilders/medical"
)

// New returns the builders for types in order. Unknown types return
// domain.ErrUnsupportedType.
func New(types []domain.TaskType) ([]driven.FactBuilder, error) {
	out := make([]driven.FactBuilder, 0, len(types))
	for _, t := range types {
		switch t {
		case domain.TaskLabResults:
			out = append(out, lab.New())
		case domain.TaskFinancialRecords:
			out = append(out, financial.New())
		case domain.TaskMedicalEvents:
			out = append(out, medical.New())
		default:
			return nil, fmt.Errorf("%w: fact builder %q", domain.ErrUnsupportedType, t)
		}
	}
	return out, nil
}
