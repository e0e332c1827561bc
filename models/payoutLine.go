package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"github.com/shopspring/decimal"
)

// PayoutLine is one team member's computed payout within a run, unique per
// (run_id, team_member_id). Repeated computations upsert in place, never
// duplicate.
type PayoutLine struct {
	ID                int             `gorm:"primary_key" json:"id"`
	RunId             int             `gorm:"not null;index:uniq_run_member,unique" json:"run_id"`
	TeamMemberId      int             `gorm:"not null;index:uniq_run_member,unique" json:"team_member_id"`
	BasisWebappAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"basis_webapp_amount"`
	BasisManualAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"basis_manual_amount"`
	BonusAmount       decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"bonus_amount"`
	AdjustmentsAmount decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"adjustments_amount"`
	BasisTotal        decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"basis_total"`
	PayoutAmount      decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"payout_amount"`
	AmountEur         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount_eur"`
	AmountUsd         decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount_usd"`
	Currency          string          `gorm:"size:3;not null;default:'EUR'" json:"currency"`
	BreakdownJson     string          `gorm:"type:text" json:"breakdown_json"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// auditFields is the string representation compared when diffing upserts.
func (l *PayoutLine) auditFields() map[string]string {
	return map[string]string{
		"basis_webapp_amount": l.BasisWebappAmount.String(),
		"basis_manual_amount": l.BasisManualAmount.String(),
		"bonus_amount":        l.BonusAmount.String(),
		"adjustments_amount":  l.AdjustmentsAmount.String(),
		"basis_total":         l.BasisTotal.String(),
		"payout_amount":       l.PayoutAmount.String(),
		"amount_eur":          l.AmountEur.String(),
		"amount_usd":          l.AmountUsd.String(),
		"currency":            l.Currency,
		"breakdown_json":      l.BreakdownJson,
	}
}

// DiffPayoutLineFields diffs two line states for audit emission. The
// breakdown JSON participates: it carries the FX provenance (rate, as-of,
// source), which can move while every rounded amount stays equal.
func DiffPayoutLineFields(oldLine, newLine *PayoutLine) []FieldChange {
	return DiffAuditFields(oldLine.auditFields(), newLine.auditFields())
}

func GetPayoutLinesByRun(ctx context.Context, runId int) ([]*PayoutLine, error) {

	db := config.GetDB()
	var results []*PayoutLine
	err := db.WithContext(ctx).
		Where("run_id = ?", runId).
		Order("team_member_id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
