package reports

import (
	"bytes"
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type PayoutLineRow struct {
	TeamMemberId      int             `json:"TeamMemberId"`
	TeamMemberName    *string         `json:"TeamMemberName,omitempty"`
	Department        *string         `json:"Department,omitempty"`
	BasisWebappAmount decimal.Decimal `json:"BasisWebappAmount"`
	BasisManualAmount decimal.Decimal `json:"BasisManualAmount"`
	BonusAmount       decimal.Decimal `json:"BonusAmount"`
	AdjustmentsAmount decimal.Decimal `json:"AdjustmentsAmount"`
	BasisTotal        decimal.Decimal `json:"BasisTotal"`
	AmountEur         decimal.Decimal `json:"AmountEur"`
	AmountUsd         decimal.Decimal `json:"AmountUsd"`
}

// GetPayoutRunReport lists a run's lines with member names resolved, ordered
// the way the payout sheet is read, by department then member name.
func GetPayoutRunReport(ctx context.Context, runId int) ([]*PayoutLineRow, error) {

	sql := `
SELECT
    pl.team_member_id,
    tm.name AS team_member_name,
    tm.department,
    pl.basis_webapp_amount,
    pl.basis_manual_amount,
    pl.bonus_amount,
    pl.adjustments_amount,
    pl.basis_total,
    pl.amount_eur,
    pl.amount_usd
FROM
    payout_lines pl
        LEFT JOIN
    team_members tm ON tm.id = pl.team_member_id
WHERE
    pl.run_id = @runId
ORDER BY tm.department , tm.name;
`

	var records []*PayoutLineRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"runId": runId,
	}).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func (r PayoutLineRow) GetCellValues() []interface{} {
	return []interface{}{
		utils.DereferencePtr(r.TeamMemberName, ""),
		utils.DereferencePtr(r.Department, ""),
		r.BasisWebappAmount,
		r.BasisManualAmount,
		r.BonusAmount,
		r.AdjustmentsAmount,
		r.BasisTotal,
		r.AmountEur,
		r.AmountUsd,
	}
}

var payoutSheetHeadings = []string{
	"Team Member", "Department", "Webapp", "Manual", "Bonus",
	"Adjustments", "Basis Total", "Payout EUR", "Payout USD",
}

// BuildPayoutExcel renders the run's lines as an XLSX workbook and returns
// the serialized bytes so the handler can stream or upload them.
func BuildPayoutExcel(ctx context.Context, monthKey string, rows []*PayoutLineRow) ([]byte, error) {

	f := excelize.NewFile()
	sheetName := "Payouts " + monthKey
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	col := 'A'
	for _, h := range payoutSheetHeadings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	totalEur := decimal.Zero
	totalUsd := decimal.Zero
	rowNo := 2
	for _, r := range rows {
		col := 'A'
		for _, value := range r.GetCellValues() {
			if d, ok := value.(decimal.Decimal); ok {
				value = d.String()
			}
			f.SetCellValue(sheetName, string(col)+fmt.Sprint(rowNo), value)
			col++
		}
		totalEur = totalEur.Add(r.AmountEur)
		totalUsd = totalUsd.Add(r.AmountUsd)
		rowNo++
	}

	f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), "Total")
	f.SetCellValue(sheetName, "H"+fmt.Sprint(rowNo), totalEur.String())
	f.SetCellValue(sheetName, "I"+fmt.Sprint(rowNo), totalUsd.String())

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportPayoutExcel builds the workbook and uploads it to the report bucket.
// Returns the gs:// URL of the uploaded object.
func ExportPayoutExcel(ctx context.Context, monthKey string, runId int) (string, error) {

	rows, err := GetPayoutRunReport(ctx, runId)
	if err != nil {
		return "", err
	}
	content, err := BuildPayoutExcel(ctx, monthKey, rows)
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("payoutReports/payouts-%s.xlsx", monthKey)
	return utils.UploadReportToGCS(ctx, objectName, bytes.NewReader(content),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}
