package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/fx"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BasisRecord is one contribution to a team member's monthly payout basis.
// Records are never mutated after creation, except for the PNL-actuals
// accumulator field which is updated additively via ApplyPnlActualDelta.
type BasisRecord struct {
	ID           int             `gorm:"primary_key" json:"id"`
	TeamMemberId int             `gorm:"index:idx_basis_member_month;not null" json:"team_member_id"`
	MonthId      int             `gorm:"index:idx_basis_member_month;not null" json:"month_id"`
	BasisType    BasisType       `gorm:"size:20;not null" json:"basis_type"`
	AmountEur    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount_eur"`
	AmountUsd    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"amount_usd"`
	PnlActual    decimal.Decimal `gorm:"type:decimal(20,2);default:0" json:"pnl_actual"`
	Notes        string          `gorm:"size:500" json:"notes"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBasisRecord struct {
	TeamMemberId int             `json:"team_member_id" binding:"required"`
	MonthId      int             `json:"month_id" binding:"required"`
	BasisType    string          `json:"basis_type" binding:"required"`
	AmountEur    decimal.Decimal `json:"amount_eur"`
	AmountUsd    decimal.Decimal `json:"amount_usd"`
	Notes        string          `json:"notes"`
}

// validateBasisSign enforces the per-type sign rule: bonuses never go
// negative, fines never go positive. Webapp and manual activity may carry
// either sign (a loss-making month is a negative basis).
func validateBasisSign(basisType BasisType, amountEur, amountUsd decimal.Decimal) error {
	switch basisType {
	case BasisTypeBonus:
		if amountEur.IsNegative() || amountUsd.IsNegative() {
			return utils.NewClientError("bonus amounts must not be negative")
		}
	case BasisTypeFine:
		if amountEur.IsPositive() || amountUsd.IsPositive() {
			return utils.NewClientError("fine amounts must not be positive")
		}
	}
	return nil
}

func (input *NewBasisRecord) validate(ctx context.Context) (BasisType, error) {
	basisType, err := ParseBasisType(input.BasisType)
	if err != nil {
		return "", err
	}
	if err := validateBasisSign(basisType, input.AmountEur, input.AmountUsd); err != nil {
		return "", err
	}
	if err := utils.ValidateResourceId[Month](ctx, input.MonthId); err != nil {
		return "", utils.NewClientError("MonthId not found")
	}
	if err := utils.ValidateResourceId[TeamMember](ctx, input.TeamMemberId); err != nil {
		return "", utils.NewClientError("TeamMemberId not found")
	}
	return basisType, nil
}

// CreateBasisRecord is the external-ingestion write path (webapp/manual
// amounts). Amounts are stored rounded to 2 decimals.
func CreateBasisRecord(ctx context.Context, input *NewBasisRecord) (*BasisRecord, error) {

	db := config.GetDB()

	basisType, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	record := BasisRecord{
		TeamMemberId: input.TeamMemberId,
		MonthId:      input.MonthId,
		BasisType:    basisType,
		AmountEur:    utils.Round2(input.AmountEur),
		AmountUsd:    utils.Round2(input.AmountUsd),
		Notes:        input.Notes,
	}

	err = db.WithContext(ctx).Create(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

type NewAdjustment struct {
	MonthId        int             `json:"month_id" binding:"required"`
	TeamMemberId   int             `json:"team_member_id" binding:"required"`
	AdjustmentType string          `json:"type" binding:"required"`
	AmountEur      decimal.Decimal `json:"amount_eur" binding:"required"`
	Notes          string          `json:"notes"`
}

// RecordAdjustment records a manual bonus or fine as a basis record.
// Sign normalization: a fine is stored negative in both currencies, a bonus
// positive. The submitted amount must be strictly positive either way.
// The FX rate comes from the resolver; when only the fixed default rate was
// available, the record's notes carry the fallback provenance so the line is
// reviewable later.
func RecordAdjustment(ctx context.Context, resolver fx.Resolver, input *NewAdjustment) (*BasisRecord, error) {

	db := config.GetDB()

	adjustmentType, err := ParseAdjustmentType(input.AdjustmentType)
	if err != nil {
		return nil, err
	}
	if !input.AmountEur.IsPositive() {
		return nil, utils.NewClientError("amount_eur must be positive")
	}
	if err := utils.ValidateResourceId[Month](ctx, input.MonthId); err != nil {
		return nil, utils.NewClientError("MonthId not found")
	}
	if err := utils.ValidateResourceId[TeamMember](ctx, input.TeamMemberId); err != nil {
		return nil, utils.NewClientError("TeamMemberId not found")
	}

	rate := fx.Fallback()
	if resolver != nil {
		if resolved, rerr := resolver.Resolve(ctx); rerr == nil {
			rate = resolved
		}
	}

	amountEur := utils.Round2(input.AmountEur)
	amountUsd := utils.Round2(amountEur.Div(rate.Rate))

	basisType := BasisTypeBonus
	if adjustmentType == AdjustmentTypeFine {
		basisType = BasisTypeFine
		amountEur = amountEur.Neg()
		amountUsd = amountUsd.Neg()
	}

	notes := input.Notes
	if rate.IsDefault() {
		if notes != "" {
			notes += " "
		}
		notes += fmt.Sprintf("[fx fallback rate %s as of %s]", rate.Rate, rate.AsOf)
	}

	record := BasisRecord{
		TeamMemberId: input.TeamMemberId,
		MonthId:      input.MonthId,
		BasisType:    basisType,
		AmountEur:    amountEur,
		AmountUsd:    amountUsd,
		Notes:        notes,
	}

	err = db.WithContext(ctx).Create(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ApplyPnlActualDelta additively updates the accumulator field:
// new value = round2(current + delta). This is the only post-creation
// mutation a basis record allows, and it deliberately differs from the
// replace semantics used by the payout-line upserts.
func ApplyPnlActualDelta(ctx context.Context, recordId int, delta decimal.Decimal) (*BasisRecord, error) {

	db := config.GetDB()

	var record *BasisRecord
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current BasisRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, recordId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		newValue := utils.Round2(current.PnlActual.Add(delta))
		if err := tx.Model(&current).Update("pnl_actual", newValue).Error; err != nil {
			return err
		}
		current.PnlActual = newValue
		record = &current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func GetBasisRecordsByMonth(ctx context.Context, monthId int) ([]*BasisRecord, error) {

	db := config.GetDB()
	var results []*BasisRecord
	err := db.WithContext(ctx).
		Where("month_id = ?", monthId).
		Order("team_member_id, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
