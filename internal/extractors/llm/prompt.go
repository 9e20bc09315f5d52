package llm

import "github.com/custodia-labs/jarvis/internal/core/ports/driven"

const defaultSystem = `You extract entities from personal documents: medical records, lab reports, invoices, receipts and correspondence. You answer with JSON only.`

//nolint:lll // Prompt content is intentionally long and should not be wrapped.
const defaultPrompt = `Identify the entities in the text below that matter for personal health, finances and communications:
- people (patients, relatives, clinicians) and organizations (hospitals, labs, insurers, employers, vendors)
- lab tests, measurements with units, reference ranges and clinical findings
- diagnoses, medications, dosages, prescriptions, procedures and treatments
- invoices, bills, receipts, payments, monetary amounts and their currency
- invoice, order and transaction references
- dates and appointments

Return a JSON array. Each element is an object with:
- "text": the exact substring from the text
- "label": one of PATIENT, CLINICIAN, PERSON, ORGANIZATION, FACILITY, LAB_TEST, MEASUREMENT, REFERENCE_RANGE, DIAGNOSIS, MEDICATION, DOSAGE, PRESCRIPTION, PROCEDURE, TREATMENT, INVOICE, BILL, RECEIPT, PAYMENT, MONEY, INVOICE_NUMBER, ORDER_NUMBER, REFERENCE, DATE, OTHER
- optional "attributes": structured detail such as {"value": "13", "units": "IU/L"} or {"currency": "INR", "amount": "1500"}
- optional "start" and "end": character offsets of the text, end exclusive

Output [] when there are no entities.

Text:
{text}
JSON:`

// DefaultPrompts returns the built-in templates keyed by prompt name, for
// seeding a user-editable prompt directory.
func DefaultPrompts() map[string]string {
	return map[string]string{
		driven.PromptEntityExtraction: defaultPrompt,
		driven.PromptEntitySystem:     defaultSystem,
	}
}
