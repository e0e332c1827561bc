package workflow

import (
	"encoding/json"
	"fmt"

	"bitbucket.org/mmdatafocus/payouts_backend/fx"
	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/shopspring/decimal"
)

// PreviewLine is one member's computed payout before persistence.
type PreviewLine struct {
	TeamMemberId      int             `json:"team_member_id"`
	BasisWebappAmount decimal.Decimal `json:"basis_webapp_amount"`
	BasisManualAmount decimal.Decimal `json:"basis_manual_amount"`
	BonusAmount       decimal.Decimal `json:"bonus_amount"`
	AdjustmentsAmount decimal.Decimal `json:"adjustments_amount"`
	BasisTotal        decimal.Decimal `json:"basis_total"`
	PayoutAmount      decimal.Decimal `json:"payout_amount"`
	AmountEur         decimal.Decimal `json:"amount_eur"`
	AmountUsd         decimal.Decimal `json:"amount_usd"`
	Currency          string          `json:"currency"`
	BreakdownJson     string          `json:"breakdown_json"`
}

// breakdown is the reproducible serialization of every input that contributed
// to the payout amount, sufficient to re-derive it without re-querying the
// original sources.
type breakdown struct {
	Webapp          decimal.Decimal `json:"webapp"`
	Manual          decimal.Decimal `json:"manual"`
	Bonus           decimal.Decimal `json:"bonus"`
	Adjustments     decimal.Decimal `json:"adjustments"`
	BasisTotal      decimal.Decimal `json:"basis_total"`
	PayoutType      string          `json:"payout_type"`
	PayoutParameter decimal.Decimal `json:"payout_parameter"`
	FxRate          decimal.Decimal `json:"fx_rate"`
	FxBase          string          `json:"fx_base"`
	FxQuote         string          `json:"fx_quote"`
	FxAsOf          string          `json:"fx_as_of"`
	FxSource        string          `json:"fx_source"`
}

// ComputeLine prices one member's payout. Pure: all I/O (rate, roster,
// config) is the caller's responsibility.
//
// percentage: payout = round2(basis_total * percentage)
// flat fee:   payout = round2(flat fee), independent of the basis total
//
// The rate is a USD-base quote (EUR per USD), so the USD amount is the EUR
// amount divided by the rate. Both stored amounts represent the same economic
// value under the resolved rate; Currency records which one is authoritative
// for payment instructions.
func ComputeLine(member *models.TeamMember, agg AggregatedBasis, rate fx.Rate) (PreviewLine, error) {

	if err := member.ValidatePayoutConfig(); err != nil {
		return PreviewLine{}, err
	}
	if !rate.Rate.IsPositive() {
		return PreviewLine{}, fmt.Errorf("fx rate %s is not positive", rate.Rate)
	}

	var payoutEur decimal.Decimal
	var parameter decimal.Decimal
	switch member.PayoutType {
	case models.PayoutTypePercentage:
		parameter = member.PayoutPercentage
		payoutEur = utils.Round2(agg.Total.Mul(member.PayoutPercentage))
	case models.PayoutTypeFlatFee:
		parameter = member.PayoutFlatFee
		payoutEur = utils.Round2(member.PayoutFlatFee)
	}

	amountUsd := utils.Round2(payoutEur.Div(rate.Rate))

	b := breakdown{
		Webapp:          agg.Webapp,
		Manual:          agg.Manual,
		Bonus:           agg.Bonus,
		Adjustments:     agg.Adjustments,
		BasisTotal:      agg.Total,
		PayoutType:      string(member.PayoutType),
		PayoutParameter: parameter,
		FxRate:          rate.Rate,
		FxBase:          rate.BaseCurrency,
		FxQuote:         rate.QuoteCurrency,
		FxAsOf:          rate.AsOf,
		FxSource:        string(rate.Source),
	}
	breakdownJson, err := json.Marshal(b)
	if err != nil {
		return PreviewLine{}, err
	}

	return PreviewLine{
		TeamMemberId:      member.ID,
		BasisWebappAmount: agg.Webapp,
		BasisManualAmount: agg.Manual,
		BonusAmount:       agg.Bonus,
		AdjustmentsAmount: agg.Adjustments,
		BasisTotal:        agg.Total,
		PayoutAmount:      payoutEur,
		AmountEur:         payoutEur,
		AmountUsd:         amountUsd,
		Currency:          member.Currency,
		BreakdownJson:     string(breakdownJson),
	}, nil
}
