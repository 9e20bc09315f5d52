package domain

import (
	"fmt"
	"time"
)

// FactDomain names a fact-builder domain; it equals the builder's task type.
type FactDomain = TaskType

// FactProvenance traces a fact back to its source text.
type FactProvenance struct {
	ContentID    string
	ChunkIndex   int
	Backend      string
	MentionIDs   []string
	Filename     string
	MessageID    string
	AttachmentID string
}

// Validate rejects facts that cannot be traced to source text.
func (p FactProvenance) Validate() error {
	if p.ContentID == "" {
		return fmt.Errorf("%w: fact without content id", ErrInvalidInput)
	}
	if len(p.MentionIDs) == 0 {
		return fmt.Errorf("%w: fact without mention provenance", ErrInvalidInput)
	}
	return nil
}

// FactRow is a domain-typed record built from entity mentions.
type FactRow interface {
	// Domain returns the builder task type that owns the row.
	Domain() FactDomain

	// Key returns the natural key the row is upserted by.
	Key() string

	// Source returns the row provenance.
	Source() FactProvenance
}

// LabResult is one measured lab value.
type LabResult struct {
	ResultID            string
	TestEntityID        string
	MeasurementEntityID string
	ReferenceEntityID   string
	TestName            string
	MeasurementText     string
	MeasurementValue    *float64
	MeasurementUnits    string
	ReferenceRange      string
	DateRaw             string
	DateParsed          string
	Patient             string
	Provenance          FactProvenance
	CreatedAt           time.Time
}

func (r LabResult) Domain() FactDomain     { return TaskLabResults }
func (r LabResult) Key() string            { return r.ResultID }
func (r LabResult) Source() FactProvenance { return r.Provenance }

// FinancialRecord is one payment, invoice, bill or receipt amount.
type FinancialRecord struct {
	RecordID     string
	RecordType   string
	AmountValue  *float64
	AmountText   string
	Currency     string
	Counterparty string
	Reference    string
	DateRaw      string
	DateParsed   string
	Provenance   FactProvenance
	CreatedAt    time.Time
}

func (r FinancialRecord) Domain() FactDomain     { return TaskFinancialRecords }
func (r FinancialRecord) Key() string            { return r.RecordID }
func (r FinancialRecord) Source() FactProvenance { return r.Provenance }

// MedicalEvent is a diagnosis, medication, procedure or similar event.
type MedicalEvent struct {
	EventID     string
	EventType   string
	Description string
	Attributes  map[string]string
	Patient     string
	Clinician   string
	Facility    string
	DateRaw     string
	DateParsed  string
	Provenance  FactProvenance
	CreatedAt   time.Time
}

func (e MedicalEvent) Domain() FactDomain     { return TaskMedicalEvents }
func (e MedicalEvent) Key() string            { return e.EventID }
func (e MedicalEvent) Source() FactProvenance { return e.Provenance }

// FactInput is everything a builder needs for one content item.
type FactInput struct {
	Item     *ContentItem
	Backend  string
	Mentions []EntityMention
}
