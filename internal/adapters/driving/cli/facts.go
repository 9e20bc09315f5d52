package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jarvis/internal/core/domain"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Show facts built from entity mentions",
}

var (
	factsContentID string
	factsJSON      bool
)

// factCommands maps subcommand names to fact domains.
var factCommands = []struct {
	name   string
	short  string
	domain domain.FactDomain
}{
	{"lab", "List lab results", domain.TaskLabResults},
	{"financial", "List financial records", domain.TaskFinancialRecords},
	{"medical", "List medical events", domain.TaskMedicalEvents},
}

func init() {
	for _, fc := range factCommands {
		factDomain := fc.domain
		sub := &cobra.Command{
			Use:   fc.name,
			Short: fc.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runFacts(cmd, factDomain)
			},
		}
		sub.Flags().StringVar(&factsContentID, "content-id", "", "only facts from this content item")
		sub.Flags().BoolVar(&factsJSON, "json", false, "output as JSON")
		factsCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(factsCmd)
}

func runFacts(cmd *cobra.Command, factDomain domain.FactDomain) error {
	if services == nil || services.Facts == nil {
		return errors.New("fact service not configured")
	}

	rows, err := services.Facts.List(commandContext(cmd), factDomain, factsContentID)
	if err != nil {
		return fmt.Errorf("failed to list facts: %w", err)
	}

	if factsJSON {
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal facts: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(rows) == 0 {
		cmd.Println("No facts found.")
		return nil
	}

	st := newStyler(cmd.OutOrStdout())
	for _, row := range rows {
		switch r := row.(type) {
		case domain.LabResult:
			cmd.Println(st.header(r.TestName))
			printField(cmd, "Value", joinNonEmpty(r.MeasurementText, r.MeasurementUnits))
			printField(cmd, "Parsed", formatValue(r.MeasurementValue))
			printField(cmd, "Reference", r.ReferenceRange)
			printField(cmd, "Date", firstNonEmpty(r.DateParsed, r.DateRaw))
			printField(cmd, "Patient", r.Patient)
		case domain.FinancialRecord:
			cmd.Println(st.header(firstNonEmpty(r.RecordType, "record")))
			printField(cmd, "Amount", joinNonEmpty(r.AmountText, r.Currency))
			printField(cmd, "Parsed", formatValue(r.AmountValue))
			printField(cmd, "Counterparty", r.Counterparty)
			printField(cmd, "Reference", r.Reference)
			printField(cmd, "Date", firstNonEmpty(r.DateParsed, r.DateRaw))
		case domain.MedicalEvent:
			cmd.Println(st.header(r.EventType + ": " + r.Description))
			printField(cmd, "Patient", r.Patient)
			printField(cmd, "Clinician", r.Clinician)
			printField(cmd, "Facility", r.Facility)
			printField(cmd, "Date", firstNonEmpty(r.DateParsed, r.DateRaw))
		}
		src := row.Source()
		printField(cmd, "Source", firstNonEmpty(src.Filename, src.ContentID))
		printField(cmd, "Backend", src.Backend)
		cmd.Println()
	}
	cmd.Printf("Total: %d\n", len(rows))
	return nil
}

func printField(cmd *cobra.Command, label, value string) {
	if value == "" {
		return
	}
	cmd.Printf("  %-13s %s\n", label+":", value)
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}
