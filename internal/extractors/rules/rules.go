package rules

import (
	"regexp"
	"strings"
)

// Rule finds one kind of entity in chunk text.
type Rule struct {
	// Label is the entity label emitted for every match.
	Label string

	// Pattern is matched against the chunk text.
	Pattern *regexp.Regexp

	// Group selects the submatch used as mention text; 0 is the whole match.
	Group int

	// Confidence is reported on every mention.
	Confidence float64

	// Attributes derives structured detail from the submatches.
	Attributes func(match []string) map[string]string
}

// dictionaryRule matches any of terms as whole words, case-insensitively.
// Longer terms are tried first so "fasting glucose" beats "glucose".
func dictionaryRule(label string, confidence float64, terms ...string) Rule {
	sorted := make([]string, len(terms))
	copy(sorted, terms)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j]) > len(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return Rule{
		Label:      label,
		Pattern:    regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
		Confidence: confidence,
	}
}

const number = `-?\d+(?:[.,]\d+)?`

var measurementUnits = []string{
	"mg/dL", "mg/dl", "g/dL", "g/dl", "mmol/L", "mmol/l", "µmol/L", "umol/L",
	"mEq/L", "IU/L", "U/L", "mIU/L", "µIU/mL", "uIU/mL", "mIU/mL",
	"ng/mL", "ng/ml", "ng/dL", "pg/mL", "mg/L", "cells/mcL", "/µL", "/uL",
	"x10^3/µL", "x10^3/uL", "mm/hr", "fL", "pg", "%",
}

var (
	datePattern = regexp.MustCompile(`(?i)\b(?:` +
		`\d{4}-\d{2}-\d{2}` +
		`|\d{1,2}[/-]\d{1,2}[/-]\d{4}` +
		`|\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4}` +
		`)\b`)

	moneyPattern = regexp.MustCompile(`(?i)(?:(₹|\$|€|£|rs\.?|inr|usd|eur|gbp)\s?(\d[\d,]*(?:\.\d{1,2})?)` +
		`|(\d[\d,]*(?:\.\d{1,2})?)\s?(inr|usd|eur|gbp|rupees|dollars|euros|pounds)\b)`)

	measurementPattern = regexp.MustCompile(`(` + number + `)\s?(` + unitAlternation() + `)`)

	referenceRangePattern = regexp.MustCompile(`(?i)\b(?:ref(?:erence)?\.?(?:\s+(?:range|interval))?|normal(?:\s+range)?|range)` +
		`\s*[:\-]?\s*(` + `(?:` + number + `\s?(?:-|–|to)\s?` + number + `|[<>]=?\s?` + number + `))`)

	dosagePattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:mg|mcg|µg|g|ml|iu|units?)\b` +
		`(?:\s+(?:once|twice|thrice|daily|bd|tds|od|qd|bid|tid|at night|in the morning))*`)

	invoiceNumberPattern = regexp.MustCompile(`(?i)\b(?:INV[-/#]?\d[\w-]*` +
		`|invoice\s*(?:no\.?|number|#)\s*[:\-]?\s*([A-Z0-9][\w/-]{2,}))`)

	orderNumberPattern = regexp.MustCompile(`(?i)\b(?:order|po)\s*(?:no\.?|number|#|id)\s*[:\-]?\s*([A-Z0-9][\w/-]{2,})`)

	referencePattern = regexp.MustCompile(`(?i)\b(?:ref(?:erence)?|txn|transaction(?:\s+id)?|utr)\s*(?:no\.?|number|#|id)?\s*[:\-]\s*([A-Z0-9][\w/-]{3,})`)

	clinicianPattern = regexp.MustCompile(`\b(?:Dr|Doctor)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2}`)

	patientPattern = regexp.MustCompile(`\b(?:[Pp]atient(?:\s+[Nn]ame)?|PATIENT(?:\s+NAME)?|Name)\s*[:\-]\s*` +
		`((?:Mr|Mrs|Ms|Miss)?\.?\s?[A-Z][a-z]+(?:\s+[A-Z]\.?)?(?:\s+[A-Z][a-z]+){0,2})`)

	facilityPattern = regexp.MustCompile(`\b(?:[A-Z][A-Za-z&'.]*\s+){1,4}` +
		`(?:Hospital|Hospitals|Clinic|Laboratories|Laboratory|Labs|Diagnostics|Medical Centre|Medical Center|Health)\b`)

	organizationPattern = regexp.MustCompile(`\b(?:[A-Z][A-Za-z&'.]*\s+){1,4}` +
		`(?:Ltd|Limited|Inc|LLC|LLP|Pvt\.? Ltd|Corp|Corporation|Bank|Pharmacy|Insurance|Services)\b\.?`)

	diagnosisPattern = regexp.MustCompile(`(?i)\b(?:diagnosis|diagnosed with|impression|assessment)\s*[:\-]?\s*` +
		`([a-z][a-z '\-]{2,60}?)\s*(?:[.,;\n]|$)`)
)

func unitAlternation() string {
	quoted := make([]string, len(measurementUnits))
	for i, u := range measurementUnits {
		quoted[i] = regexp.QuoteMeta(u)
	}
	return strings.Join(quoted, "|")
}

var currencyCodes = map[string]string{
	"₹": "INR", "rs": "INR", "rs.": "INR", "inr": "INR", "rupees": "INR",
	"$": "USD", "usd": "USD", "dollars": "USD",
	"€": "EUR", "eur": "EUR", "euros": "EUR",
	"£": "GBP", "gbp": "GBP", "pounds": "GBP",
}

func moneyAttributes(m []string) map[string]string {
	symbol, amount := m[1], m[2]
	if symbol == "" {
		symbol, amount = m[4], m[3]
	}
	return map[string]string{
		"currency": currencyCodes[strings.ToLower(symbol)],
		"amount":   strings.ReplaceAll(amount, ",", ""),
	}
}

func measurementAttributes(m []string) map[string]string {
	return map[string]string{"value": m[1], "units": m[2]}
}

var (
	dateRules = []Rule{
		{Label: "DATE", Pattern: datePattern, Confidence: 0.9},
	}

	labRules = []Rule{
		dictionaryRule("LAB_TEST", 0.85,
			"HbA1c", "A1c", "glycated haemoglobin", "glycated hemoglobin",
			"haemoglobin", "hemoglobin", "glucose", "fasting glucose", "fasting blood sugar",
			"cholesterol", "total cholesterol", "LDL", "HDL", "VLDL", "triglycerides",
			"TSH", "T3", "T4", "free T4", "creatinine", "urea", "BUN", "uric acid",
			"ALT", "AST", "SGPT", "SGOT", "ALP", "bilirubin", "albumin",
			"vitamin D", "vitamin B12", "ferritin", "iron", "calcium", "sodium", "potassium",
			"platelets", "platelet count", "WBC", "RBC", "ESR", "CRP", "PSA", "eGFR"),
		{Label: "MEASUREMENT", Pattern: measurementPattern, Confidence: 0.8, Attributes: measurementAttributes},
		{Label: "REFERENCE_RANGE", Pattern: referenceRangePattern, Group: 1, Confidence: 0.8},
		{Label: "PATIENT", Pattern: patientPattern, Group: 1, Confidence: 0.7},
		{Label: "FACILITY", Pattern: facilityPattern, Confidence: 0.7},
	}

	financialRules = []Rule{
		{Label: "MONEY", Pattern: moneyPattern, Confidence: 0.85, Attributes: moneyAttributes},
		{Label: "INVOICE_NUMBER", Pattern: invoiceNumberPattern, Confidence: 0.8},
		{Label: "ORDER_NUMBER", Pattern: orderNumberPattern, Group: 1, Confidence: 0.8},
		{Label: "REFERENCE", Pattern: referencePattern, Group: 1, Confidence: 0.75},
		dictionaryRule("INVOICE", 0.7, "invoice", "tax invoice"),
		dictionaryRule("RECEIPT", 0.7, "receipt", "payment receipt"),
		dictionaryRule("BILL", 0.7, "bill"),
		dictionaryRule("PAYMENT", 0.7, "payment", "paid", "refund"),
		{Label: "ORGANIZATION", Pattern: organizationPattern, Confidence: 0.7},
	}

	medicalRules = []Rule{
		dictionaryRule("MEDICATION", 0.85,
			"metformin", "atorvastatin", "rosuvastatin", "amlodipine", "losartan", "telmisartan",
			"lisinopril", "levothyroxine", "thyroxine", "insulin", "glimepiride", "aspirin",
			"paracetamol", "acetaminophen", "ibuprofen", "amoxicillin", "azithromycin",
			"omeprazole", "pantoprazole", "cetirizine", "montelukast", "salbutamol", "prednisolone"),
		{Label: "DOSAGE", Pattern: dosagePattern, Confidence: 0.75},
		dictionaryRule("PROCEDURE", 0.8,
			"MRI", "CT scan", "X-ray", "ultrasound", "ECG", "EKG", "echocardiogram",
			"colonoscopy", "endoscopy", "biopsy", "angiography", "mammogram", "vaccination"),
		dictionaryRule("DIAGNOSIS", 0.75,
			"type 2 diabetes", "diabetes", "prediabetes", "hypertension", "hypothyroidism",
			"hyperthyroidism", "anaemia", "anemia", "asthma", "dyslipidemia", "hyperlipidemia",
			"vitamin D deficiency", "fatty liver", "migraine"),
		{Label: "DIAGNOSIS", Pattern: diagnosisPattern, Group: 1, Confidence: 0.65},
		dictionaryRule("PRESCRIPTION", 0.7, "prescription", "prescribed", "rx"),
		{Label: "CLINICIAN", Pattern: clinicianPattern, Confidence: 0.8},
	}
)

// rulesets lists the named rule collections. Earlier rules win when two
// matches start at the same offset and have the same length.
var rulesets = map[string][]Rule{
	"default":   concat(dateRules, labRules, financialRules, medicalRules),
	"lab":       concat(dateRules, labRules),
	"financial": concat(dateRules, financialRules),
	"medical":   concat(dateRules, medicalRules, labRules[3:]),
}

func concat(groups ...[]Rule) []Rule {
	var out []Rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
