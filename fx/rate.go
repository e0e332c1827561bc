package fx

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source records where a resolved rate came from, so downstream records can
// tell a real provider quote from the last-resort default.
type Source string

const (
	SourceProvider Source = "provider"
	SourceMirror   Source = "mirror"
	SourceDefault  Source = "default"
)

// Rate is a USD-base quote: Rate is QuoteCurrency units per one BaseCurrency
// unit. Converting an EUR amount to USD therefore divides by Rate.
type Rate struct {
	Rate          decimal.Decimal `json:"rate"`
	BaseCurrency  string          `json:"base_currency"`
	QuoteCurrency string          `json:"quote_currency"`
	AsOf          string          `json:"as_of"`
	Source        Source          `json:"source"`
}

func (r Rate) IsDefault() bool {
	return r.Source == SourceDefault
}

// DefaultRate is the fixed last-resort USD->EUR rate. Payout computation must
// never block on FX availability; records created with it carry the default
// provenance for later reconciliation review.
var defaultRateValue = decimal.NewFromFloat(0.92)

func Fallback() Rate {
	return Rate{
		Rate:          defaultRateValue,
		BaseCurrency:  "USD",
		QuoteCurrency: "EUR",
		AsOf:          time.Now().UTC().Format("2006-01-02"),
		Source:        SourceDefault,
	}
}
