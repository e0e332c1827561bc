package workflow

import (
	"encoding/json"
	"testing"

	"bitbucket.org/mmdatafocus/payouts_backend/fx"
	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. ComputeLine is pure, and the
// money vectors here pin the exact rounding and conversion behavior that the
// reconciliation layer depends on for idempotent upserts.

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func testRate(t *testing.T, rate string) fx.Rate {
	t.Helper()
	return fx.Rate{
		Rate:          mustDecimal(t, rate),
		BaseCurrency:  "USD",
		QuoteCurrency: "EUR",
		AsOf:          "2025-07-31",
		Source:        fx.SourceProvider,
	}
}

func percentageMember(t *testing.T, id int, pct string) *models.TeamMember {
	t.Helper()
	return &models.TeamMember{
		ID:               id,
		Name:             "Percentage Member",
		PayoutType:       models.PayoutTypePercentage,
		PayoutPercentage: mustDecimal(t, pct),
		Currency:         "EUR",
	}
}

func TestComputeLinePercentageConversionVector(t *testing.T) {
	member := percentageMember(t, 1, "0.1")
	agg := AggregatedBasis{
		Webapp: mustDecimal(t, "1000.00"),
		Total:  mustDecimal(t, "1000.00"),
	}

	line, err := ComputeLine(member, agg, testRate(t, "0.92"))
	if err != nil {
		t.Fatalf("ComputeLine: %v", err)
	}

	if got, want := line.AmountEur.String(), "100"; got != want {
		t.Errorf("amount_eur = %s; want %s", got, want)
	}
	// 100.00 EUR at 0.92 EUR-per-USD is 108.6956... USD, rounded half-up.
	if got, want := line.AmountUsd.String(), "108.7"; got != want {
		t.Errorf("amount_usd = %s; want %s", got, want)
	}
	if !line.PayoutAmount.Equal(line.AmountEur) {
		t.Errorf("payout_amount %s != amount_eur %s", line.PayoutAmount, line.AmountEur)
	}
}

func TestComputeLineFlatFeeIgnoresBasisTotal(t *testing.T) {
	member := &models.TeamMember{
		ID:            2,
		Name:          "Flat Fee Member",
		PayoutType:    models.PayoutTypeFlatFee,
		PayoutFlatFee: mustDecimal(t, "850.00"),
		Currency:      "USD",
	}

	for _, total := range []string{"0", "1000.00", "-250.00"} {
		agg := AggregatedBasis{Total: mustDecimal(t, total)}
		line, err := ComputeLine(member, agg, testRate(t, "0.92"))
		if err != nil {
			t.Fatalf("ComputeLine(total=%s): %v", total, err)
		}
		if got, want := line.AmountEur.String(), "850"; got != want {
			t.Errorf("total=%s: amount_eur = %s; want %s", total, got, want)
		}
	}
}

func TestComputeLineBreakdownReproducesInputs(t *testing.T) {
	member := percentageMember(t, 3, "0.15")
	agg := AggregatedBasis{
		Webapp:      mustDecimal(t, "400.00"),
		Manual:      mustDecimal(t, "100.00"),
		Bonus:       mustDecimal(t, "50.00"),
		Adjustments: mustDecimal(t, "-25.00"),
		Total:       mustDecimal(t, "525.00"),
	}
	rate := testRate(t, "0.9213")

	line, err := ComputeLine(member, agg, rate)
	if err != nil {
		t.Fatalf("ComputeLine: %v", err)
	}

	var b map[string]interface{}
	if err := json.Unmarshal([]byte(line.BreakdownJson), &b); err != nil {
		t.Fatalf("unmarshal breakdown: %v", err)
	}
	checks := map[string]string{
		"basis_total":      "525",
		"payout_type":      "percentage",
		"payout_parameter": "0.15",
		"fx_rate":          "0.9213",
		"fx_base":          "USD",
		"fx_quote":         "EUR",
		"fx_as_of":         "2025-07-31",
		"fx_source":        "provider",
	}
	for key, want := range checks {
		raw, ok := b[key]
		if !ok {
			t.Errorf("breakdown missing %q", key)
			continue
		}
		got := toBreakdownString(raw)
		if got != want {
			t.Errorf("breakdown %s = %q; want %q", key, got, want)
		}
	}

	// Re-derive the payout from the breakdown alone.
	rederived := utils.Round2(agg.Total.Mul(member.PayoutPercentage))
	if !line.AmountEur.Equal(rederived) {
		t.Errorf("amount_eur %s not reproducible from breakdown (%s)", line.AmountEur, rederived)
	}
}

func toBreakdownString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	default:
		return ""
	}
}

func TestComputeLineRejectsNonPositiveRate(t *testing.T) {
	member := percentageMember(t, 4, "0.1")
	agg := AggregatedBasis{Total: mustDecimal(t, "100.00")}

	for _, r := range []string{"0", "-0.92"} {
		rate := testRate(t, r)
		if _, err := ComputeLine(member, agg, rate); err == nil {
			t.Errorf("rate=%s: expected error", r)
		}
	}
}

func TestComputeLineRejectsUnknownPayoutType(t *testing.T) {
	member := &models.TeamMember{
		ID:         5,
		Name:       "Broken Config",
		PayoutType: models.PayoutType("hourly"),
		Currency:   "EUR",
	}
	_, err := ComputeLine(member, AggregatedBasis{}, testRate(t, "0.92"))
	if err == nil {
		t.Fatal("expected error for unknown payout type")
	}
	if !utils.IsClientError(err) {
		t.Errorf("expected client error; got %v", err)
	}
}
