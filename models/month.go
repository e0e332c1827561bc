package models

import (
	"context"
	"regexp"
	"time"

	"bitbucket.org/mmdatafocus/payouts_backend/config"
	"bitbucket.org/mmdatafocus/payouts_backend/utils"
)

// Month is the per-month container activity records and payout runs hang off.
// Immutable once a payout run references it.
type Month struct {
	ID        int       `gorm:"primary_key" json:"id"`
	MonthKey  string    `gorm:"size:7;not null;uniqueIndex" json:"month_key"`
	MonthName string    `gorm:"size:50;not null" json:"month_name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewMonth struct {
	MonthKey  string `json:"month_key" binding:"required"`
	MonthName string `json:"month_name" binding:"required"`
}

var monthKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

func (input *NewMonth) validate(ctx context.Context) error {
	if !monthKeyPattern.MatchString(input.MonthKey) {
		return utils.NewClientError("month_key must look like 2024-07")
	}
	count, err := utils.ResourceCountWhere[Month](ctx, "month_key = ?", input.MonthKey)
	if err != nil {
		return err
	}
	if count > 0 {
		return utils.NewClientError("month " + input.MonthKey + " already exists")
	}
	return nil
}

func CreateMonth(ctx context.Context, input *NewMonth) (*Month, error) {

	db := config.GetDB()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	month := Month{
		MonthKey:  input.MonthKey,
		MonthName: input.MonthName,
	}

	err := db.WithContext(ctx).Create(&month).Error
	if err != nil {
		return nil, err
	}
	return &month, nil
}

func GetMonth(ctx context.Context, id int) (*Month, error) {
	return utils.FetchSingleModel[Month](ctx, id)
}

func GetMonths(ctx context.Context) ([]*Month, error) {

	db := config.GetDB()
	var results []*Month
	err := db.WithContext(ctx).Order("month_key desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
