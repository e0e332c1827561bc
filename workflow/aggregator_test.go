package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/payouts_backend/models"
	"github.com/shopspring/decimal"
)

func basisRecord(t *testing.T, memberId int, basisType models.BasisType, amountEur string) *models.BasisRecord {
	t.Helper()
	return &models.BasisRecord{
		TeamMemberId: memberId,
		BasisType:    basisType,
		AmountEur:    mustDecimal(t, amountEur),
	}
}

func TestAggregateBasisBucketsByType(t *testing.T) {
	members := []*models.TeamMember{{ID: 1}}
	records := []*models.BasisRecord{
		basisRecord(t, 1, models.BasisTypeWebapp, "600.00"),
		basisRecord(t, 1, models.BasisTypeWebapp, "150.50"),
		basisRecord(t, 1, models.BasisTypeManual, "200.00"),
		basisRecord(t, 1, models.BasisTypeBonus, "75.00"),
		basisRecord(t, 1, models.BasisTypeFine, "-25.00"),
	}

	aggs := AggregateBasis(members, records)
	agg, ok := aggs[1]
	if !ok {
		t.Fatal("member 1 missing from aggregates")
	}

	cases := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"webapp", agg.Webapp, "750.5"},
		{"manual", agg.Manual, "200"},
		{"bonus", agg.Bonus, "75"},
		{"adjustments", agg.Adjustments, "-25"},
		{"total", agg.Total, "1000.5"},
	}
	for _, c := range cases {
		if c.got.String() != c.want {
			t.Errorf("%s = %s; want %s", c.name, c.got, c.want)
		}
	}
}

func TestAggregateBasisRosterMemberWithoutRecords(t *testing.T) {
	members := []*models.TeamMember{{ID: 1}, {ID: 2}}
	records := []*models.BasisRecord{
		basisRecord(t, 1, models.BasisTypeWebapp, "100.00"),
	}

	aggs := AggregateBasis(members, records)
	agg, ok := aggs[2]
	if !ok {
		t.Fatal("idle roster member must still appear in aggregates")
	}
	if !agg.Total.IsZero() {
		t.Errorf("idle member total = %s; want 0", agg.Total)
	}
}

func TestAggregateBasisSkipsOffRosterRecords(t *testing.T) {
	members := []*models.TeamMember{{ID: 1}}
	records := []*models.BasisRecord{
		basisRecord(t, 1, models.BasisTypeWebapp, "100.00"),
		basisRecord(t, 99, models.BasisTypeWebapp, "9999.00"),
	}

	aggs := AggregateBasis(members, records)
	if len(aggs) != 1 {
		t.Fatalf("len(aggs) = %d; want 1", len(aggs))
	}
	if got := aggs[1].Total.String(); got != "100" {
		t.Errorf("total = %s; want 100", got)
	}
}

// Sub-cent inputs must round once per component, and the total must equal the
// re-rounded sum of the rounded components so recomputation is stable.
func TestAggregateBasisRoundingClosure(t *testing.T) {
	members := []*models.TeamMember{{ID: 1}}
	records := []*models.BasisRecord{
		basisRecord(t, 1, models.BasisTypeWebapp, "10.005"),
		basisRecord(t, 1, models.BasisTypeManual, "20.004"),
		basisRecord(t, 1, models.BasisTypeBonus, "0.995"),
	}

	agg := AggregateBasis(members, records)[1]

	if got := agg.Webapp.String(); got != "10.01" {
		t.Errorf("webapp = %s; want 10.01", got)
	}
	if got := agg.Manual.String(); got != "20" {
		t.Errorf("manual = %s; want 20", got)
	}
	if got := agg.Bonus.String(); got != "1" {
		t.Errorf("bonus = %s; want 1", got)
	}

	sum := agg.Webapp.Add(agg.Manual).Add(agg.Bonus).Add(agg.Adjustments)
	if !agg.Total.Equal(sum.Round(2)) {
		t.Errorf("total %s != round2(sum of rounded components) %s", agg.Total, sum.Round(2))
	}
}
