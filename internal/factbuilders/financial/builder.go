// Package financial builds payment, invoice, bill and receipt records from
// money mentions.
package financial

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

// DefaultRecordType is used when no record mention is present.
const DefaultRecordType = "PAYMENT"

var (
	moneyLabels        = mention.NewLabels("MONEY", "AMOUNT", "TOTAL")
	recordLabels       = mention.NewLabels("INVOICE", "PAYMENT", "BILL", "RECEIPT")
	counterpartyLabels = mention.NewLabels("ORGANIZATION", "VENDOR", "CUSTOMER", "PERSON")
	dateLabels         = mention.NewLabels("DATE", "PAYMENT_DATE", "DUE_DATE")
	referenceLabels    = mention.NewLabels("REFERENCE", "INVOICE_REFERENCE", "INVOICE_NUMBER", "ORDER_NUMBER")
)

// Builder turns every money mention into a FinancialRecord.
type Builder struct{}

// New creates a financial record builder.
func New() *Builder {
	return &Builder{}
}

func (b *Builder) TaskType() domain.TaskType {
	return domain.TaskFinancialRecords
}

func (b *Builder) Labels() []string {
	all := mention.NewLabels()
	for _, set := range []mention.Labels{moneyLabels, recordLabels, counterpartyLabels, dateLabels, referenceLabels} {
		for l := range set {
			all[l] = struct{}{}
		}
	}
	return all.Slice()
}

// Build returns one FinancialRecord per money mention.
func (b *Builder) Build(ctx context.Context, input domain.FactInput) ([]domain.FactRow, error) {
	if input.Item == nil || input.Item.ContentID == "" {
		return nil, fmt.Errorf("%w: financial records need a content item", domain.ErrInvalidInput)
	}

	var rows []domain.FactRow
	for _, group := range mention.GroupByChunk(input.Mentions) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		amounts := group.Filter(moneyLabels)
		if len(amounts) == 0 {
			continue
		}
		records := group.Filter(recordLabels)
		counterparties := group.Filter(counterpartyLabels)
		dates := group.Filter(dateLabels)
		references := group.Filter(referenceLabels)

		for _, money := range amounts {
			used := []domain.EntityMention{money}
			r := domain.FinancialRecord{RecordType: DefaultRecordType}

			var recordEntity string
			if rec, ok := mention.Nearest(money, records); ok {
				used = append(used, rec)
				r.RecordType = domain.NormaliseLabel(rec.Label)
				recordEntity = rec.EntityID
			}

			r.AmountText = money.Text
			if amount := money.Attributes["amount"]; amount != "" {
				r.AmountText = amount
			}
			r.AmountValue = mention.ParseNumber(r.AmountText)
			r.Currency = strings.ToUpper(money.Attributes["currency"])
			if r.Currency == "" {
				r.Currency = Currency(money.Text)
			}

			if cp, ok := mention.Nearest(money, counterparties); ok {
				used = append(used, cp)
				r.Counterparty = NormaliseCounterparty(cp.Text)
			}
			if ref, ok := mention.Nearest(money, references); ok {
				used = append(used, ref)
				r.Reference = strings.TrimSpace(ref.Text)
			}
			if date, ok := mention.Nearest(money, dates); ok {
				used = append(used, date)
				r.DateRaw = date.Text
				r.DateParsed = mention.NormaliseDate(date.Text)
			}

			r.Provenance = mention.Provenance(input.Item, input.Backend, group.ChunkIndex, used...)
			if err := r.Provenance.Validate(); err != nil {
				return nil, err
			}
			r.RecordID = domain.FactKey(
				input.Item.ContentID,
				strconv.Itoa(group.ChunkIndex),
				input.Backend,
				money.EntityID,
				recordEntity,
			)
			rows = append(rows, r)
		}
	}
	return rows, nil
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"₹", "INR"},
	{"Rs.", "INR"},
	{"Rs", "INR"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
}

// Currency returns the ISO code named or symbolised in text, or "".
func Currency(text string) string {
	upper := strings.ToUpper(text)
	for _, code := range []string{"INR", "USD", "EUR", "GBP"} {
		if strings.Contains(upper, code) {
			return code
		}
	}
	trimmed := strings.TrimSpace(text)
	for _, c := range currencySymbols {
		if strings.HasPrefix(trimmed, c.symbol) {
			return c.code
		}
	}
	return ""
}

// NormaliseCounterparty collapses whitespace and strips separators left
// over from the surrounding sentence. Case and the period of suffixes such
// as "Ltd." are preserved.
func NormaliseCounterparty(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	name = strings.TrimRight(name, ",;:")
	name = strings.Trim(name, `"'`)
	return strings.TrimRight(name, ",;: ")
}
