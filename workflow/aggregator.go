package workflow

import (
	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/shopspring/decimal"
)

// AggregatedBasis is one team member's basis rolled up for a month.
// Fines are stored negative, so Adjustments can be negative.
type AggregatedBasis struct {
	Webapp      decimal.Decimal `json:"webapp"`
	Manual      decimal.Decimal `json:"manual"`
	Bonus       decimal.Decimal `json:"bonus"`
	Adjustments decimal.Decimal `json:"adjustments"`
	Total       decimal.Decimal `json:"total"`
}

// AggregateBasis groups the month's basis records by team member. Every
// roster member appears in the output, with a zero aggregate when the month
// holds no records for them; a member with no activity still gets a payout
// line. Each field is rounded once at the end, and the total is the
// re-rounded sum of the four rounded components.
func AggregateBasis(members []*models.TeamMember, records []*models.BasisRecord) map[int]AggregatedBasis {

	sums := make(map[int]*AggregatedBasis, len(members))
	for _, member := range members {
		sums[member.ID] = &AggregatedBasis{
			Webapp:      decimal.Zero,
			Manual:      decimal.Zero,
			Bonus:       decimal.Zero,
			Adjustments: decimal.Zero,
		}
	}

	for _, record := range records {
		agg, ok := sums[record.TeamMemberId]
		if !ok {
			// Record for a member no longer on the roster; skipped.
			continue
		}
		switch record.BasisType {
		case models.BasisTypeWebapp:
			agg.Webapp = agg.Webapp.Add(record.AmountEur)
		case models.BasisTypeManual:
			agg.Manual = agg.Manual.Add(record.AmountEur)
		case models.BasisTypeBonus:
			agg.Bonus = agg.Bonus.Add(record.AmountEur)
		case models.BasisTypeFine:
			agg.Adjustments = agg.Adjustments.Add(record.AmountEur)
		}
	}

	result := make(map[int]AggregatedBasis, len(sums))
	for memberId, agg := range sums {
		rounded := AggregatedBasis{
			Webapp:      utils.Round2(agg.Webapp),
			Manual:      utils.Round2(agg.Manual),
			Bonus:       utils.Round2(agg.Bonus),
			Adjustments: utils.Round2(agg.Adjustments),
		}
		rounded.Total = utils.Round2Sum(rounded.Webapp, rounded.Manual, rounded.Bonus, rounded.Adjustments)
		result[memberId] = rounded
	}
	return result
}
